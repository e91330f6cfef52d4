// Package store persists pipeline outcomes so batch runs, the CLI, and the
// status API share one record of what happened to each document.
package store

import (
	"context"

	"github.com/clearline/invoice-agent/internal/model"
)

// OutcomeFilter specifies criteria for listing outcomes.
type OutcomeFilter struct {
	Disposition model.Disposition `json:"disposition,omitempty"`
	VendorID    string            `json:"vendor_id,omitempty"`
	Limit       int               `json:"limit,omitempty"`
	Offset      int               `json:"offset,omitempty"`
}

// Summary holds aggregate outcome counts.
type Summary struct {
	Total    int `json:"total"`
	Posted   int `json:"posted"`
	Rejected int `json:"rejected"`
}

// Store defines the persistence interface for pipeline outcomes.
type Store interface {
	RecordOutcome(ctx context.Context, outcome *model.PipelineOutcome) error
	GetOutcome(ctx context.Context, id string) (*model.PipelineOutcome, error)
	ListOutcomes(ctx context.Context, filter OutcomeFilter) ([]model.PipelineOutcome, error)
	Summarize(ctx context.Context) (*Summary, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
