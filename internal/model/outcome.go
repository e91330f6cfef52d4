package model

import "time"

// Disposition is the final classification of a processed document.
type Disposition string

const (
	DispositionPosted   Disposition = "POSTED"
	DispositionRejected Disposition = "REJECTED"
)

// Verdict is the validator's pass/fail result.
type Verdict string

const (
	VerdictPassed Verdict = "PASSED"
	VerdictFailed Verdict = "FAILED"
)

// RuleFailure is one failed validation rule with a self-contained message.
type RuleFailure struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ValidationResult holds the verdict plus every collected failure, in rule
// order. Failures is empty iff Verdict is PASSED.
type ValidationResult struct {
	Verdict  Verdict       `json:"verdict"`
	Failures []RuleFailure `json:"failures,omitempty"`
}

// Passed reports whether validation succeeded.
func (vr ValidationResult) Passed() bool {
	return vr.Verdict == VerdictPassed
}

// ScoreResult is the anomaly scorer's output for one invoice.
type ScoreResult struct {
	ZScore  float64 `json:"z_score"`
	Samples int     `json:"samples"` // history size the score was computed against
}

// Enrichment is additive vendor metadata. Never affects disposition.
type Enrichment struct {
	Website      string `json:"website,omitempty"`
	Category     string `json:"category,omitempty"`
	GLSuggestion string `json:"gl_suggestion,omitempty"`
}

// PipelineOutcome is the immutable per-document result record.
type PipelineOutcome struct {
	ID            string           `json:"id"`
	Source        string           `json:"source,omitempty"` // file path or caller-supplied label
	InvoiceNumber string           `json:"invoice_number"`
	VendorID      string           `json:"vendor_id,omitempty"`
	Amount        float64          `json:"amount"`
	Disposition   Disposition      `json:"disposition"`
	Validation    ValidationResult `json:"validation"`
	Score         *ScoreResult     `json:"score,omitempty"`
	Enrichment    *Enrichment      `json:"enrichment,omitempty"`
	PostingRef    string           `json:"posting_ref,omitempty"`
	CreatedAt     time.Time        `json:"created_at"`
}

// Failures flattens the outcome's explanation list. Parse and posting
// failures are folded in as rule-style entries by the orchestrator, so this
// is the complete reason set for a REJECTED outcome.
func (o *PipelineOutcome) Failures() []RuleFailure {
	return o.Validation.Failures
}
