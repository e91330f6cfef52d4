package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/clearline/invoice-agent/internal/anomaly"
	"github.com/clearline/invoice-agent/internal/enrich"
	"github.com/clearline/invoice-agent/internal/pipeline"
	"github.com/clearline/invoice-agent/internal/store"
	"github.com/clearline/invoice-agent/internal/validate"
	"github.com/clearline/invoice-agent/pkg/erp"
)

// pipelineEnv holds the initialized store, history backend, and pipeline
// shared by the ingest/batch/serve commands.
type pipelineEnv struct {
	Store    store.Store
	History  anomaly.HistoryStore
	Scorer   *anomaly.Scorer
	Pipeline *pipeline.Pipeline
}

// Close releases resources held by the pipeline environment.
func (pe *pipelineEnv) Close() {
	closeHistory(pe.History)
	if pe.Store != nil {
		_ = pe.Store.Close()
	}
}

func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = "invoice-agent.db"
		}
		return store.NewSQLite(dsn)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL)
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

func initHistory() (anomaly.HistoryStore, error) {
	if cfg.Redis.URL == "" {
		zap.L().Debug("INVOICE_REDIS_URL not set, using in-memory vendor history")
		return anomaly.NewMemoryStore(), nil
	}
	return anomaly.NewRedisStore(cfg.Redis.URL)
}

func initPoster() erp.Client {
	if cfg.ERP.DryRun {
		zap.L().Info("erp dry-run mode, bills will not be posted")
		return erp.NewDryRun()
	}
	return erp.NewClient(cfg.ERP.BaseURL,
		erp.WithTimeout(time.Duration(cfg.ERP.TimeoutSecs)*time.Second))
}

// initPipeline sets up the outcome store, vendor history backend, ERP
// client, and builds the Pipeline for the given mode. Callers should
// defer env.Close().
func initPipeline(ctx context.Context, mode string) (*pipelineEnv, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}

	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}

	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	history, err := initHistory()
	if err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "init vendor history")
	}

	scorer := anomaly.NewScorer(history, anomaly.Config{
		Window:     cfg.Anomaly.Window,
		MinSamples: cfg.Anomaly.MinSamples,
		RejectOver: cfg.Anomaly.RejectOver,
	})

	p := pipeline.New(
		validate.New(validate.WithTolerance(cfg.Validation.Tolerance)),
		scorer,
		enrich.NewSafe(enrich.NewHeuristic()),
		initPoster(),
		st,
	)

	return &pipelineEnv{Store: st, History: history, Scorer: scorer, Pipeline: p}, nil
}
