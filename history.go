package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"factorlab/report"
)

var historyLimit int

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recent runs from the sqlite run log",
	RunE:  runHistory,
}

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "number of runs to show")
}

func runHistory(cmd *cobra.Command, args []string) error {
	a, err := setup()
	if err != nil {
		return err
	}
	defer a.close()

	if a.store == nil {
		return fmt.Errorf("no run log configured: set storage.path or pass --db")
	}
	runs, err := a.store.RecentRuns(cmd.Context(), historyLimit)
	if err != nil {
		return err
	}
	return report.WriteHistory(cmd.OutOrStdout(), runs)
}
