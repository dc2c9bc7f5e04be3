package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kfoerderer/gridcontrol-bems-sub001/config"
	"github.com/kfoerderer/gridcontrol-bems-sub001/core/model"
	"github.com/kfoerderer/gridcontrol-bems-sub001/infra/journal"
	"github.com/kfoerderer/gridcontrol-bems-sub001/pkg/export"
)

var (
	exportFormat string
	exportQuery  journal.Query
	exportKind   string
)

var journalCmd = &cobra.Command{
	Use:   "journal",
	Short: "Inspect the publication journal",
}

var journalExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export journal entries as CSV or JSON",
	RunE:  runJournalExport,
}

func init() {
	f := journalExportCmd.Flags()
	f.StringVar(&exportFormat, "format", "csv", "output format (csv, json)")
	f.Int64Var(&exportQuery.From, "from", 0, "first epoch second")
	f.Int64Var(&exportQuery.To, "to", 0, "last epoch second, 0 for no limit")
	f.StringVar(&exportKind, "kind", "", "publication kind (initial, update)")
	f.StringVar(&exportQuery.Outcome, "outcome", "", "outcome filter")
	f.IntVar(&exportQuery.Limit, "limit", 0, "newest entries only, 0 for all")
	journalCmd.AddCommand(journalExportCmd)
	rootCmd.AddCommand(journalCmd)
}

func runJournalExport(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	store, err := journal.Open(cfg.Journal)
	if err != nil {
		return err
	}
	defer store.Close()
	q := exportQuery
	q.Kind = model.PublicationKind(exportKind)
	entries, err := store.Query(background(cmd), q)
	if err != nil {
		return err
	}
	switch exportFormat {
	case "csv":
		return export.WriteCSV(cmd.OutOrStdout(), entries)
	case "json":
		return export.WriteJSON(cmd.OutOrStdout(), entries)
	default:
		return fmt.Errorf("unknown format %q", exportFormat)
	}
}
