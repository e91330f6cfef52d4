// Package pipeline sequences the invoice processing stages for one document:
// tokenize, build, validate, score, enrich, post. Parse and validation
// failures short-circuit into a REJECTED outcome; scoring and posting only
// run for invoices that passed validation.
package pipeline

import (
	"context"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/clearline/invoice-agent/internal/anomaly"
	"github.com/clearline/invoice-agent/internal/enrich"
	"github.com/clearline/invoice-agent/internal/model"
	"github.com/clearline/invoice-agent/internal/store"
	"github.com/clearline/invoice-agent/internal/validate"
	"github.com/clearline/invoice-agent/internal/x12"
)

// Failure codes for stages outside the validator. They share the outcome's
// explanation list so a REJECTED record is self-contained.
const (
	CodeParseError       = "PARSE_ERROR"
	CodePostingFailed    = "ERP_POST"
	CodeAnomalyThreshold = "ANOMALY_THRESHOLD"
)

// Document is one raw EDI document plus a source label for the outcome record.
type Document struct {
	Source string
	Text   string
}

// Poster is the downstream posting collaborator.
type Poster interface {
	PostVendorBill(ctx context.Context, inv *model.Invoice) (string, error)
}

// Pipeline orchestrates per-document processing. Safe for concurrent use by
// batch workers; per-vendor ordering is handled inside the scorer.
type Pipeline struct {
	validator *validate.Validator
	scorer    *anomaly.Scorer
	enricher  enrich.Enricher
	poster    Poster
	outcomes  store.Store
}

// New creates a Pipeline. The outcome store may be nil (outcomes are then
// only returned, not recorded).
func New(
	validator *validate.Validator,
	scorer *anomaly.Scorer,
	enricher enrich.Enricher,
	poster Poster,
	outcomes store.Store,
) *Pipeline {
	return &Pipeline{
		validator: validator,
		scorer:    scorer,
		enricher:  enricher,
		poster:    poster,
		outcomes:  outcomes,
	}
}

// Process runs one document through the pipeline and returns its outcome.
// It never returns an error: every failure mode is folded into a REJECTED
// outcome so one bad document cannot abort a batch.
func (p *Pipeline) Process(ctx context.Context, doc Document) *model.PipelineOutcome {
	log := zap.L().With(zap.String("source", doc.Source))

	outcome := &model.PipelineOutcome{
		ID:        uuid.New().String(),
		Source:    doc.Source,
		CreatedAt: time.Now().UTC(),
	}

	inv, err := parseDocument(doc.Text)
	if err != nil {
		log.Info("pipeline: document rejected at parse stage", zap.Error(err))
		outcome.Disposition = model.DispositionRejected
		outcome.Validation = model.ValidationResult{
			Verdict:  model.VerdictFailed,
			Failures: []model.RuleFailure{{Code: CodeParseError, Message: err.Error()}},
		}
		p.record(ctx, log, outcome)
		return outcome
	}

	outcome.InvoiceNumber = inv.InvoiceNumber
	outcome.VendorID = inv.VendorID
	outcome.Amount = inv.Total
	log = log.With(zap.String("invoice_number", inv.InvoiceNumber), zap.String("vendor_id", inv.VendorID))

	// Enrichment is additive only; it must never change the disposition.
	enrichment := p.enricher.Enrich(ctx, inv.VendorID)
	outcome.Enrichment = &enrichment
	enrich.ApplyGLAccounts(inv, enrichment)

	// Validation is a hard gate: a FAILED invoice never reaches the scorer
	// or the poster.
	outcome.Validation = p.validator.Validate(inv)
	if !outcome.Validation.Passed() {
		log.Info("pipeline: document rejected by validation",
			zap.Int("failures", len(outcome.Validation.Failures)),
		)
		outcome.Disposition = model.DispositionRejected
		p.record(ctx, log, outcome)
		return outcome
	}

	score := p.scorer.Score(ctx, inv.VendorID, inv.Total)
	outcome.Score = &score

	if p.scorer.Exceeds(score) {
		log.Warn("pipeline: document rejected by anomaly threshold",
			zap.Float64("z_score", score.ZScore),
		)
		outcome.Disposition = model.DispositionRejected
		outcome.Validation = model.ValidationResult{
			Verdict: model.VerdictFailed,
			Failures: []model.RuleFailure{{
				Code:    CodeAnomalyThreshold,
				Message: thresholdMessage(score.ZScore),
			}},
		}
		p.record(ctx, log, outcome)
		return outcome
	}

	ref, err := p.poster.PostVendorBill(ctx, inv)
	if err != nil {
		// Validation passed but the downstream rejected the bill: the
		// outcome is REJECTED with a posting explanation, not a crash.
		log.Warn("pipeline: posting failed", zap.Error(err))
		outcome.Disposition = model.DispositionRejected
		outcome.Validation = model.ValidationResult{
			Verdict:  model.VerdictFailed,
			Failures: []model.RuleFailure{{Code: CodePostingFailed, Message: err.Error()}},
		}
		p.record(ctx, log, outcome)
		return outcome
	}

	outcome.Disposition = model.DispositionPosted
	outcome.PostingRef = ref
	log.Info("pipeline: document posted",
		zap.String("posting_ref", ref),
		zap.Float64("z_score", score.ZScore),
	)
	p.record(ctx, log, outcome)
	return outcome
}

func parseDocument(text string) (*model.Invoice, error) {
	tok, err := x12.NewTokenizer(text)
	if err != nil {
		return nil, err
	}
	return x12.Build(tok)
}

func (p *Pipeline) record(ctx context.Context, log *zap.Logger, outcome *model.PipelineOutcome) {
	if p.outcomes == nil {
		return
	}
	if err := p.outcomes.RecordOutcome(ctx, outcome); err != nil {
		// Recording is bookkeeping; losing one record must not fail the document.
		log.Warn("pipeline: failed to record outcome", zap.Error(err))
	}
}

func thresholdMessage(z float64) string {
	return "anomaly score " + formatScore(z) + " exceeds configured rejection threshold"
}

func formatScore(z float64) string {
	return strconv.FormatFloat(z, 'f', 2, 64)
}
