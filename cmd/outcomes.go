package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/clearline/invoice-agent/internal/model"
	"github.com/clearline/invoice-agent/internal/store"
)

var outcomesCmd = &cobra.Command{
	Use:   "outcomes",
	Short: "Inspect recorded pipeline outcomes",
	Long:  "Commands for listing, viewing, and summarizing processed invoices.",
}

// -- outcomes list --

var outcomesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recorded outcomes",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate("outcomes"); err != nil {
			return err
		}
		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return err
		}

		disposition, _ := cmd.Flags().GetString("disposition")
		vendor, _ := cmd.Flags().GetString("vendor")
		limit, _ := cmd.Flags().GetInt("limit")

		filter := store.OutcomeFilter{
			Disposition: model.Disposition(disposition),
			VendorID:    vendor,
			Limit:       limit,
		}

		outcomes, err := st.ListOutcomes(ctx, filter)
		if err != nil {
			return eris.Wrap(err, "outcomes list")
		}

		if len(outcomes) == 0 {
			fmt.Fprintln(os.Stderr, "No outcomes found.")
			return nil
		}

		formatOutcomesList(os.Stdout, outcomes)
		return nil
	},
}

// -- outcomes show --

var outcomesShowCmd = &cobra.Command{
	Use:   "show <outcome-id>",
	Short: "Show full details of an outcome",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate("outcomes"); err != nil {
			return err
		}
		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return err
		}

		outcome, err := st.GetOutcome(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "outcomes show")
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(outcome)
	},
}

// -- outcomes summary --

var outcomesSummaryCmd = &cobra.Command{
	Use:   "summary",
	Short: "Show aggregate outcome counts",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate("outcomes"); err != nil {
			return err
		}
		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return err
		}

		summary, err := st.Summarize(ctx)
		if err != nil {
			return eris.Wrap(err, "outcomes summary")
		}

		fmt.Printf("total:    %d\nposted:   %d\nrejected: %d\n",
			summary.Total, summary.Posted, summary.Rejected)
		return nil
	},
}

func formatOutcomesList(w io.Writer, outcomes []model.PipelineOutcome) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tINVOICE\tVENDOR\tAMOUNT\tDISPOSITION\tSCORE\tCREATED")
	for _, o := range outcomes {
		score := "-"
		if o.Score != nil {
			score = fmt.Sprintf("%.2f", o.Score.ZScore)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%.2f\t%s\t%s\t%s\n",
			o.ID, o.InvoiceNumber, o.VendorID, o.Amount,
			o.Disposition, score, o.CreatedAt.Format("2006-01-02 15:04"))
	}
	tw.Flush()
}

func init() {
	outcomesListCmd.Flags().String("disposition", "", "filter by disposition (POSTED, REJECTED)")
	outcomesListCmd.Flags().String("vendor", "", "filter by vendor ID")
	outcomesListCmd.Flags().Int("limit", 50, "max number of outcomes to display")

	outcomesCmd.AddCommand(outcomesListCmd)
	outcomesCmd.AddCommand(outcomesShowCmd)
	outcomesCmd.AddCommand(outcomesSummaryCmd)
	rootCmd.AddCommand(outcomesCmd)
}
