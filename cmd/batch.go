package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"sync/atomic"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/clearline/invoice-agent/internal/model"
	"github.com/clearline/invoice-agent/internal/pipeline"
)

var (
	batchPattern   string
	batchRecursive bool
	batchPreview   bool
	batchDryRun    bool
	batchWorkers   int
)

var batchCmd = &cobra.Command{
	Use:   "batch <path>...",
	Short: "Ingest a batch of EDI documents",
	Long:  "Resolves files, directories, and glob patterns to EDI documents and runs each through the pipeline concurrently. Per-document rejections do not fail the batch.",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		files, err := resolveFiles(args, batchPattern, batchRecursive)
		if err != nil {
			return err
		}
		if len(files) == 0 {
			return eris.Errorf("no documents matched %v", args)
		}

		if batchPreview {
			for _, f := range files {
				fmt.Println(f)
			}
			fmt.Printf("%d documents matched\n", len(files))
			return nil
		}

		if batchDryRun {
			cfg.ERP.DryRun = true
		}

		env, err := initPipeline(ctx, "batch")
		if err != nil {
			return err
		}
		defer env.Close()

		workers := cfg.Batch.Workers
		if batchWorkers > 0 {
			workers = batchWorkers
		}

		return processBatch(ctx, files, workers, func(ctx context.Context, doc pipeline.Document) *model.PipelineOutcome {
			return env.Pipeline.Process(ctx, doc)
		})
	},
}

func init() {
	batchCmd.Flags().StringVar(&batchPattern, "pattern", "*.edi", "filename pattern applied when a path is a directory")
	batchCmd.Flags().BoolVar(&batchRecursive, "recursive", false, "walk directories recursively")
	batchCmd.Flags().BoolVar(&batchPreview, "preview", false, "list matched documents without processing")
	batchCmd.Flags().BoolVar(&batchDryRun, "dry-run", false, "do not post to the ERP, fabricate posting references")
	batchCmd.Flags().IntVar(&batchWorkers, "workers", 0, "concurrent workers (default from config)")
	rootCmd.AddCommand(batchCmd)
}

// resolveFiles expands each argument into document paths. A directory
// is matched against pattern, a glob is expanded, a plain file is taken
// as-is. The result is sorted and de-duplicated.
func resolveFiles(args []string, pattern string, recursive bool) ([]string, error) {
	seen := make(map[string]struct{})
	var files []string
	add := func(path string) {
		if _, ok := seen[path]; ok {
			return
		}
		seen[path] = struct{}{}
		files = append(files, path)
	}

	for _, arg := range args {
		info, err := os.Stat(arg)
		switch {
		case err == nil && info.IsDir():
			if recursive {
				walkErr := filepath.WalkDir(arg, func(path string, d os.DirEntry, err error) error {
					if err != nil {
						return err
					}
					if d.IsDir() {
						return nil
					}
					if ok, _ := filepath.Match(pattern, d.Name()); ok {
						add(path)
					}
					return nil
				})
				if walkErr != nil {
					return nil, eris.Wrapf(walkErr, "walk %s", arg)
				}
			} else {
				matches, err := filepath.Glob(filepath.Join(arg, pattern))
				if err != nil {
					return nil, eris.Wrapf(err, "glob %s", arg)
				}
				for _, m := range matches {
					add(m)
				}
			}
		case err == nil:
			add(arg)
		default:
			// Not a file or directory: try it as a glob.
			matches, globErr := filepath.Glob(arg)
			if globErr != nil {
				return nil, eris.Wrapf(globErr, "glob %s", arg)
			}
			for _, m := range matches {
				add(m)
			}
		}
	}

	sort.Strings(files)
	return files, nil
}

// statusLine renders one document's result: disposition, invoice number,
// posting reference or rejection reason, and the anomaly score when one
// was computed.
func statusLine(file string, outcome *model.PipelineOutcome) string {
	score := "-"
	if outcome.Score != nil {
		score = fmt.Sprintf("%.2f", outcome.Score.ZScore)
	}
	if outcome.Disposition == model.DispositionPosted {
		return fmt.Sprintf("[POSTED]   %s | %s | ref=%s | z=%s", file, outcome.InvoiceNumber, outcome.PostingRef, score)
	}
	reason := ""
	if failures := outcome.Failures(); len(failures) > 0 {
		reason = failures[0].Message
	}
	return fmt.Sprintf("[REJECTED] %s | %s | %s | z=%s", file, outcome.InvoiceNumber, reason, score)
}

// processFunc runs one document through the pipeline.
type processFunc func(ctx context.Context, doc pipeline.Document) *model.PipelineOutcome

// processBatch reads and processes documents concurrently. A rejected
// invoice is a normal outcome; only unreadable files fail the batch.
func processBatch(ctx context.Context, files []string, workers int, process processFunc) error {
	zap.L().Info("processing batch",
		zap.Int("documents", len(files)),
		zap.Int("workers", workers),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	var posted, rejected atomic.Int64

	for _, file := range files {
		g.Go(func() error {
			text, err := os.ReadFile(file)
			if err != nil {
				return eris.Wrapf(err, "read document %s", file)
			}

			outcome := process(gctx, pipeline.Document{Source: file, Text: string(text)})

			if outcome.Disposition == model.DispositionPosted {
				posted.Add(1)
			} else {
				rejected.Add(1)
			}
			fmt.Println(statusLine(file, outcome))
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return eris.Wrap(err, "batch processing")
	}

	fmt.Printf("\n%d documents: %d posted, %d rejected\n", len(files), posted.Load(), rejected.Load())

	zap.L().Info("batch complete",
		zap.Int64("posted", posted.Load()),
		zap.Int64("rejected", rejected.Load()),
	)
	return nil
}
