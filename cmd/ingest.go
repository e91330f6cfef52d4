package main

import (
	"encoding/json"
	"io"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/clearline/invoice-agent/internal/model"
	"github.com/clearline/invoice-agent/internal/pipeline"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest <file>",
	Short: "Ingest a single X12 810 invoice document",
	Long:  "Reads one EDI document from a file (or stdin when the argument is \"-\"), runs it through the full pipeline, and prints the outcome as JSON.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initPipeline(ctx, "ingest")
		if err != nil {
			return err
		}
		defer env.Close()

		source := args[0]
		var text []byte
		if source == "-" {
			source = "stdin"
			text, err = io.ReadAll(os.Stdin)
		} else {
			text, err = os.ReadFile(source)
		}
		if err != nil {
			return eris.Wrapf(err, "read document %s", source)
		}

		outcome := env.Pipeline.Process(ctx, pipeline.Document{
			Source: source,
			Text:   string(text),
		})

		zap.L().Info("document processed",
			zap.String("source", source),
			zap.String("invoice", outcome.InvoiceNumber),
			zap.String("disposition", string(outcome.Disposition)),
		)

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(outcome); err != nil {
			return eris.Wrap(err, "encode outcome")
		}

		if failOnReject && outcome.Disposition == model.DispositionRejected {
			return eris.Errorf("invoice %s rejected", outcome.InvoiceNumber)
		}
		return nil
	},
}

var failOnReject bool

func init() {
	ingestCmd.Flags().BoolVar(&failOnReject, "fail-on-reject", false, "exit non-zero when the invoice is rejected")
	rootCmd.AddCommand(ingestCmd)
}
