package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kfoerderer/gridcontrol-bems-sub001/config"
	"github.com/kfoerderer/gridcontrol-bems-sub001/infra/state"
)

var stateCmd = &cobra.Command{
	Use:   "state",
	Short: "Inspect the persisted scheduler state",
}

var stateShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the persisted state as JSON",
	RunE:  runStateShow,
}

func init() {
	stateCmd.AddCommand(stateShowCmd)
	rootCmd.AddCommand(stateCmd)
}

func runStateShow(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	store, err := state.Open(cfg.State)
	if err != nil {
		return err
	}
	defer store.Close()
	st, err := store.Load(background(cmd))
	if err != nil {
		return fmt.Errorf("load state: %w", err)
	}
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(st)
}
