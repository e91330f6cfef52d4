package main

import (
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/clearline/invoice-agent/internal/anomaly"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Inspect vendor amount history",
	Long:  "Commands for viewing and resetting the rolling invoice amount window kept per vendor.",
}

// initScorer opens the configured history backend wrapped in a Scorer, the
// same read path the pipeline uses.
func initScorer() (*anomaly.Scorer, anomaly.HistoryStore, error) {
	history, err := initHistory()
	if err != nil {
		return nil, nil, err
	}
	scorer := anomaly.NewScorer(history, anomaly.Config{
		Window:     cfg.Anomaly.Window,
		MinSamples: cfg.Anomaly.MinSamples,
		RejectOver: cfg.Anomaly.RejectOver,
	})
	return scorer, history, nil
}

var historyShowCmd = &cobra.Command{
	Use:   "show <vendor-id>",
	Short: "Show the recorded amounts for a vendor, newest first",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate("history"); err != nil {
			return err
		}
		scorer, history, err := initScorer()
		if err != nil {
			return err
		}
		defer closeHistory(history)

		amounts, err := scorer.History(ctx, args[0])
		if err != nil {
			return eris.Wrapf(err, "load history for %s", args[0])
		}

		if len(amounts) == 0 {
			fmt.Printf("no history for vendor %s\n", args[0])
			return nil
		}
		for _, a := range amounts {
			fmt.Printf("%.2f\n", a)
		}
		fmt.Printf("%d samples\n", len(amounts))
		return nil
	},
}

var historyResetCmd = &cobra.Command{
	Use:   "reset <vendor-id>",
	Short: "Delete the recorded amounts for a vendor",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate("history"); err != nil {
			return err
		}
		scorer, history, err := initScorer()
		if err != nil {
			return err
		}
		defer closeHistory(history)

		if err := scorer.Reset(ctx, args[0]); err != nil {
			return eris.Wrapf(err, "reset history for %s", args[0])
		}
		fmt.Printf("history reset for vendor %s\n", args[0])
		return nil
	},
}

func closeHistory(h anomaly.HistoryStore) {
	if c, ok := h.(*anomaly.RedisStore); ok {
		_ = c.Close()
	}
}

func init() {
	historyCmd.AddCommand(historyShowCmd)
	historyCmd.AddCommand(historyResetCmd)
	rootCmd.AddCommand(historyCmd)
}
