package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/clearline/invoice-agent/internal/model"
	"github.com/clearline/invoice-agent/internal/pipeline"
	"github.com/clearline/invoice-agent/internal/store"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP ingestion and status API",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initPipeline(ctx, "serve")
		if err != nil {
			return err
		}
		defer env.Close()

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           newRouter(env),
			ReadHeaderTimeout: 5 * time.Second,
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}

func newRouter(env *pipelineEnv) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Get("/outcomes", func(w http.ResponseWriter, req *http.Request) {
		filter := store.OutcomeFilter{
			Disposition: model.Disposition(req.URL.Query().Get("disposition")),
			VendorID:    req.URL.Query().Get("vendor"),
			Limit:       50,
		}
		outcomes, err := env.Store.ListOutcomes(req.Context(), filter)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, outcomes)
	})

	r.Get("/outcomes/summary", func(w http.ResponseWriter, req *http.Request) {
		summary, err := env.Store.Summarize(req.Context())
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, summary)
	})

	r.Get("/vendors/{id}/history", func(w http.ResponseWriter, req *http.Request) {
		vendorID := chi.URLParam(req, "id")
		amounts, err := env.Scorer.History(req.Context(), vendorID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"vendor_id": vendorID,
			"amounts":   amounts,
			"samples":   len(amounts),
		})
	})

	r.Post("/ingest", func(w http.ResponseWriter, req *http.Request) {
		text, err := io.ReadAll(http.MaxBytesReader(w, req.Body, 1<<20))
		if err != nil {
			writeError(w, http.StatusBadRequest, eris.Wrap(err, "read body"))
			return
		}
		if len(text) == 0 {
			writeError(w, http.StatusBadRequest, eris.New("empty document"))
			return
		}

		source := req.Header.Get("X-Document-Source")
		if source == "" {
			source = "http"
		}

		outcome := env.Pipeline.Process(req.Context(), pipeline.Document{
			Source: source,
			Text:   string(text),
		})

		status := http.StatusOK
		if outcome.Disposition == model.DispositionRejected {
			status = http.StatusUnprocessableEntity
		}
		writeJSON(w, status, outcome)
	})

	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Warn("write response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
