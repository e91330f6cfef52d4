package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clearline/invoice-agent/internal/anomaly"
	"github.com/clearline/invoice-agent/internal/enrich"
	"github.com/clearline/invoice-agent/internal/model"
	"github.com/clearline/invoice-agent/internal/pipeline"
	"github.com/clearline/invoice-agent/internal/store"
	"github.com/clearline/invoice-agent/internal/validate"
	"github.com/clearline/invoice-agent/pkg/erp"
)

const serveDoc = "ST*810*0001~BIG*20240115*INV2001~N1*RI*ACME SUPPLY*92*ACME~IT1*1*2*EA*50~TDS*10000~CTT*1~"

func newTestEnv(t *testing.T) *pipelineEnv {
	t.Helper()

	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "serve.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	require.NoError(t, st.Migrate(context.Background()))

	history := anomaly.NewMemoryStore()
	scorer := anomaly.NewScorer(history, anomaly.Config{})

	p := pipeline.New(
		validate.New(),
		scorer,
		enrich.NewSafe(enrich.NewHeuristic()),
		erp.NewDryRun(),
		st,
	)

	return &pipelineEnv{Store: st, History: history, Scorer: scorer, Pipeline: p}
}

func TestServeHealthz(t *testing.T) {
	router := newRouter(newTestEnv(t))

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Header().Get("Content-Type"), "application/json")

	var body map[string]string
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
}

func TestServeIngestPosted(t *testing.T) {
	router := newRouter(newTestEnv(t))

	req := httptest.NewRequest(http.MethodPost, "/ingest", strings.NewReader(serveDoc))
	req.Header.Set("X-Document-Source", "edge-gateway")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)

	var outcome model.PipelineOutcome
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &outcome))
	assert.Equal(t, model.DispositionPosted, outcome.Disposition)
	assert.Equal(t, "INV2001", outcome.InvoiceNumber)
	assert.Equal(t, "edge-gateway", outcome.Source)
	assert.True(t, strings.HasPrefix(outcome.PostingRef, "DEMO-"))
}

func TestServeIngestRejected(t *testing.T) {
	router := newRouter(newTestEnv(t))

	// Declared TDS disagrees with the single line.
	doc := "BIG*20240115*INV2002~N1*RI*ACME~IT1*1*1*EA*50~TDS*10000~CTT*1~"
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/ingest", strings.NewReader(doc)))

	assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)

	var outcome model.PipelineOutcome
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &outcome))
	assert.Equal(t, model.DispositionRejected, outcome.Disposition)
}

func TestServeIngestEmptyBody(t *testing.T) {
	router := newRouter(newTestEnv(t))

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/ingest", strings.NewReader("")))

	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestServeOutcomesAndSummary(t *testing.T) {
	env := newTestEnv(t)
	router := newRouter(env)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/ingest", strings.NewReader(serveDoc)))
	require.Equal(t, http.StatusOK, rr.Code)

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/outcomes?vendor=ACME", nil))
	assert.Equal(t, http.StatusOK, rr.Code)

	var outcomes []model.PipelineOutcome
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &outcomes))
	require.Len(t, outcomes, 1)
	assert.Equal(t, "INV2001", outcomes[0].InvoiceNumber)

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/outcomes/summary", nil))
	assert.Equal(t, http.StatusOK, rr.Code)

	var summary store.Summary
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &summary))
	assert.Equal(t, 1, summary.Total)
	assert.Equal(t, 1, summary.Posted)
}

func TestServeVendorHistory(t *testing.T) {
	env := newTestEnv(t)
	router := newRouter(env)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/ingest", strings.NewReader(serveDoc)))
	require.Equal(t, http.StatusOK, rr.Code)

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/vendors/ACME/history", nil))
	assert.Equal(t, http.StatusOK, rr.Code)

	var body struct {
		VendorID string    `json:"vendor_id"`
		Amounts  []float64 `json:"amounts"`
		Samples  int       `json:"samples"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, "ACME", body.VendorID)
	assert.Equal(t, []float64{100}, body.Amounts)
	assert.Equal(t, 1, body.Samples)
}
