// Package enrich attaches additive vendor metadata to pipeline outcomes.
// Enrichment is display-only: lookup failures degrade to a default
// suggestion and never affect a document's disposition.
package enrich

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/clearline/invoice-agent/internal/model"
)

// DefaultGLSuggestion is used when nothing better is known about a vendor.
const DefaultGLSuggestion = "6200 - COGS"

// Enricher resolves vendor metadata.
type Enricher interface {
	Enrich(ctx context.Context, vendorID string) model.Enrichment
}

// heuristics maps known vendor substrings to curated metadata. Lookup is
// case-insensitive substring match on the vendor id.
var heuristics = map[string]model.Enrichment{
	"ACME": {
		Website:      "https://acme.example",
		Category:     "office",
		GLSuggestion: "6100 - Office Supplies",
	},
}

// Heuristic is a local, dependency-free Enricher.
type Heuristic struct{}

// NewHeuristic creates the default Enricher.
func NewHeuristic() Heuristic {
	return Heuristic{}
}

// Enrich returns curated metadata for known vendors and a default GL
// suggestion otherwise. Never fails.
func (Heuristic) Enrich(_ context.Context, vendorID string) model.Enrichment {
	if vendorID == "" {
		return model.Enrichment{GLSuggestion: DefaultGLSuggestion}
	}
	upper := strings.ToUpper(vendorID)
	for key, e := range heuristics {
		if strings.Contains(upper, key) {
			return e
		}
	}
	return model.Enrichment{GLSuggestion: DefaultGLSuggestion}
}

// Safe wraps any Enricher so panics and empty results degrade to the
// default enrichment instead of propagating into the pipeline.
type Safe struct {
	inner Enricher
}

// NewSafe wraps an Enricher with the swallow-failures policy.
func NewSafe(inner Enricher) Safe {
	return Safe{inner: inner}
}

func (s Safe) Enrich(ctx context.Context, vendorID string) (out model.Enrichment) {
	defer func() {
		if r := recover(); r != nil {
			zap.L().Warn("enrich: lookup panicked, using default",
				zap.String("vendor_id", vendorID),
				zap.Any("panic", r),
			)
			out = model.Enrichment{GLSuggestion: DefaultGLSuggestion}
		}
	}()
	out = s.inner.Enrich(ctx, vendorID)
	if out.GLSuggestion == "" {
		out.GLSuggestion = DefaultGLSuggestion
	}
	return out
}

// ApplyGLAccounts fills each line's GL account from the enrichment
// suggestion when the line has none.
func ApplyGLAccounts(inv *model.Invoice, e model.Enrichment) {
	gl := e.GLSuggestion
	if gl == "" {
		gl = DefaultGLSuggestion
	}
	for i := range inv.Lines {
		if inv.Lines[i].GLAccount == "" {
			inv.Lines[i].GLAccount = gl
		}
	}
}
