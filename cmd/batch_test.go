package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clearline/invoice-agent/internal/model"
	"github.com/clearline/invoice-agent/internal/pipeline"
)

func writeDoc(t *testing.T, dir, name string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte("BIG*20240101*INV1~TDS*100~"), 0o644))
	return path
}

func TestResolveFiles_Directory(t *testing.T) {
	dir := t.TempDir()
	a := writeDoc(t, dir, "a.edi")
	b := writeDoc(t, dir, "b.edi")
	writeDoc(t, dir, "notes.txt")

	files, err := resolveFiles([]string{dir}, "*.edi", false)
	require.NoError(t, err)
	assert.Equal(t, []string{a, b}, files)
}

func TestResolveFiles_Recursive(t *testing.T) {
	dir := t.TempDir()
	a := writeDoc(t, dir, "a.edi")
	nested := writeDoc(t, dir, "sub/deep/c.edi")
	writeDoc(t, dir, "sub/skip.txt")

	files, err := resolveFiles([]string{dir}, "*.edi", true)
	require.NoError(t, err)
	assert.Equal(t, []string{a, nested}, files)

	// Non-recursive misses the nested file.
	flat, err := resolveFiles([]string{dir}, "*.edi", false)
	require.NoError(t, err)
	assert.Equal(t, []string{a}, flat)
}

func TestResolveFiles_GlobAndDedupe(t *testing.T) {
	dir := t.TempDir()
	a := writeDoc(t, dir, "a.edi")

	files, err := resolveFiles([]string{a, filepath.Join(dir, "*.edi")}, "*.edi", false)
	require.NoError(t, err)
	assert.Equal(t, []string{a}, files, "explicit path and glob match collapse to one entry")
}

func TestResolveFiles_NoMatches(t *testing.T) {
	dir := t.TempDir()
	files, err := resolveFiles([]string{filepath.Join(dir, "*.edi")}, "*.edi", false)
	require.NoError(t, err)
	assert.Empty(t, files)
}

func TestProcessBatch_CountsAndRejectionsDoNotFail(t *testing.T) {
	dir := t.TempDir()
	a := writeDoc(t, dir, "a.edi")
	b := writeDoc(t, dir, "b.edi")
	c := writeDoc(t, dir, "c.edi")

	outcomes := map[string]*model.PipelineOutcome{
		a: {
			InvoiceNumber: "INV1",
			Disposition:   model.DispositionPosted,
			PostingRef:    "bill-1",
			Score:         &model.ScoreResult{ZScore: 0.75, Samples: 6},
		},
		b: {
			InvoiceNumber: "INV2",
			Disposition:   model.DispositionRejected,
			Validation: model.ValidationResult{
				Verdict:  model.VerdictFailed,
				Failures: []model.RuleFailure{{Code: "TOTALS_MISMATCH", Message: "totals mismatch"}},
			},
		},
		c: {
			InvoiceNumber: "INV3",
			Disposition:   model.DispositionPosted,
			PostingRef:    "bill-3",
			Score:         &model.ScoreResult{ZScore: -1.20, Samples: 8},
		},
	}

	err := processBatch(context.Background(), []string{a, b, c}, 2, func(_ context.Context, doc pipeline.Document) *model.PipelineOutcome {
		o := *outcomes[doc.Source]
		o.Source = doc.Source
		o.CreatedAt = time.Now().UTC()
		return &o
	})
	assert.NoError(t, err, "rejected documents are normal outcomes")

	// Every status line carries the reference and anomaly score.
	assert.Contains(t, statusLine(a, outcomes[a]), "ref=bill-1 | z=0.75")
	assert.Contains(t, statusLine(b, outcomes[b]), "totals mismatch | z=-")
	assert.Contains(t, statusLine(c, outcomes[c]), "ref=bill-3 | z=-1.20")
}

func TestStatusLine(t *testing.T) {
	posted := &model.PipelineOutcome{
		InvoiceNumber: "INV7",
		Disposition:   model.DispositionPosted,
		PostingRef:    "bill-7",
		Score:         &model.ScoreResult{ZScore: 1.25, Samples: 6},
	}
	line := statusLine("a.edi", posted)
	assert.Contains(t, line, "[POSTED]")
	assert.Contains(t, line, "INV7")
	assert.Contains(t, line, "ref=bill-7")
	assert.Contains(t, line, "z=1.25")

	rejected := &model.PipelineOutcome{
		InvoiceNumber: "INV8",
		Disposition:   model.DispositionRejected,
		Validation: model.ValidationResult{
			Verdict:  model.VerdictFailed,
			Failures: []model.RuleFailure{{Code: "ERP_POST", Message: "posting failed: status 503"}},
		},
		Score: &model.ScoreResult{ZScore: -0.5},
	}
	line = statusLine("b.edi", rejected)
	assert.Contains(t, line, "[REJECTED]")
	assert.Contains(t, line, "posting failed: status 503")
	assert.Contains(t, line, "z=-0.50", "posting-failure rejections keep their computed score")

	// Validation rejections have no score; the slot shows a dash.
	line = statusLine("c.edi", &model.PipelineOutcome{
		InvoiceNumber: "INV9",
		Disposition:   model.DispositionRejected,
	})
	assert.Contains(t, line, "z=-")
	assert.NotContains(t, line, "z=-0")
}

func TestProcessBatch_UnreadableFileFails(t *testing.T) {
	dir := t.TempDir()
	a := writeDoc(t, dir, "a.edi")
	missing := filepath.Join(dir, "gone.edi")

	err := processBatch(context.Background(), []string{a, missing}, 1, func(_ context.Context, doc pipeline.Document) *model.PipelineOutcome {
		return &model.PipelineOutcome{Source: doc.Source, Disposition: model.DispositionPosted}
	})
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "gone.edi")
}
