// Package cmd implements the gems command line.
package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/kfoerderer/gridcontrol-bems-sub001/app"
	"github.com/kfoerderer/gridcontrol-bems-sub001/config"
	"github.com/kfoerderer/gridcontrol-bems-sub001/infra/logger"
)

var (
	cfgPath  string
	logLevel string
)

var rootCmd = &cobra.Command{
	Use:   "gems",
	Short: "Energy management gateway",
	RunE:  run,
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the gateway until interrupted",
	RunE:  run,
}

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Validate the configuration and print the resolved setup",
	Args:  cobra.NoArgs,
	RunE:  check,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "config.yaml", "configuration file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "minimum log level (debug, info, warn, error)")
	rootCmd.PersistentPreRunE = func(*cobra.Command, []string) error {
		if logLevel == "" {
			return nil
		}
		return os.Setenv("LOG_LEVEL", logLevel)
	}
	rootCmd.AddCommand(runCmd, checkCmd)
}

// Execute runs the CLI.
func Execute() error { return rootCmd.Execute() }

func run(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(background(cmd), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	svc, err := app.New(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := svc.Close(); err != nil {
			logger.New("main").Errorf("service close: %v", err)
		}
	}()
	return svc.Run(ctx)
}

func check(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "clock:       %s\n", cfg.Clock.Mode)
	fmt.Fprintf(out, "slot length: %ds\n", cfg.Scheduler.SlotLength)
	fmt.Fprintf(out, "state:       %s\n", cfg.State.Type)
	fmt.Fprintf(out, "journal:     %s\n", cfg.Journal.Backend)
	fmt.Fprintf(out, "optimizers:  %s\n", moduleTypes(cfg.Components.Optimizers))
	fmt.Fprintf(out, "forecasters: %s\n", moduleTypes(cfg.Components.Forecasters))
	if cfg.Operator.DebugFMS {
		fmt.Fprintln(out, "fms:         debug channel")
	} else {
		fmt.Fprintf(out, "fms:         %s (site %s)\n", cfg.Operator.FMS.BaseURL, cfg.Operator.FMS.Site)
	}
	return nil
}

func moduleTypes(cfgs []config.PluginConfig) string {
	if len(cfgs) == 0 {
		return "-"
	}
	names := make([]string, len(cfgs))
	for i, c := range cfgs {
		names[i] = c.Type
	}
	return strings.Join(names, ", ")
}

func background(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
