package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/kfoerderer/gridcontrol-bems-sub001/core/clock"
)

var cronCount int

var cronCmd = &cobra.Command{
	Use:   "cron",
	Short: "Inspect cron expressions",
}

var cronNextCmd = &cobra.Command{
	Use:   "next <expression>",
	Short: "Print the next fire times of an expression such as \"0 30 8\"",
	Args:  cobra.ExactArgs(1),
	RunE:  runCronNext,
}

func init() {
	cronNextCmd.Flags().IntVarP(&cronCount, "count", "n", 3, "number of fire times")
	cronCmd.AddCommand(cronNextCmd)
	rootCmd.AddCommand(cronCmd)
}

func runCronNext(cmd *cobra.Command, args []string) error {
	spec, err := clock.ParseCronSpec(args[0])
	if err != nil {
		return err
	}
	t := time.Now()
	for i := 0; i < cronCount; i++ {
		next, err := spec.Next(t)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), next.Format(time.RFC3339))
		t = next
	}
	return nil
}
