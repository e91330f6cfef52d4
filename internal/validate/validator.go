// Package validate applies business-correctness rules to a built invoice.
// Rules are independent predicate+message pairs evaluated in a fixed order;
// every applicable rule runs so the result carries the complete failure set.
package validate

import (
	"fmt"
	"math"

	"github.com/clearline/invoice-agent/internal/model"
)

// Stable rule codes. Downstream systems key on these, so they never change
// between runs.
const (
	CodeMissingInvoiceNumber = "MISSING_INVOICE_NUMBER"
	CodeMissingInvoiceDate   = "MISSING_INVOICE_DATE"
	CodeMissingVendor        = "MISSING_VENDOR"
	CodeNoLineItems          = "NO_LINE_ITEMS"
	CodeNegativeQuantity     = "NEGATIVE_QUANTITY"
	CodeNegativePrice        = "NEGATIVE_PRICE"
	CodeLineCountMismatch    = "LINE_COUNT_MISMATCH"
	CodeMissingTotal         = "MISSING_TOTAL"
	CodeTotalsMismatch       = "TOTALS_MISMATCH"
)

// DefaultTolerance is the absolute tolerance for totals arithmetic. It
// absorbs float rounding on per-line extended amounts and is deliberately
// non-zero.
const DefaultTolerance = 0.01

// Rule is one validation check. Check returns failure messages; an empty
// slice means the rule passed.
type Rule struct {
	Code  string
	Check func(inv *model.Invoice) []string
}

// Validator evaluates its rule set against invoices.
type Validator struct {
	rules     []Rule
	tolerance float64
}

// Option configures a Validator.
type Option func(*Validator)

// WithTolerance overrides the totals-arithmetic tolerance.
func WithTolerance(tol float64) Option {
	return func(v *Validator) {
		if tol > 0 {
			v.tolerance = tol
		}
	}
}

// WithExtraRules appends rules after the built-in set.
func WithExtraRules(rules ...Rule) Option {
	return func(v *Validator) {
		v.rules = append(v.rules, rules...)
	}
}

// New creates a Validator with the built-in ordered rule set.
func New(opts ...Option) *Validator {
	v := &Validator{tolerance: DefaultTolerance}
	v.rules = []Rule{
		{Code: CodeMissingInvoiceNumber, Check: checkInvoiceNumber},
		{Code: CodeMissingInvoiceDate, Check: checkInvoiceDate},
		{Code: CodeMissingVendor, Check: checkVendor},
		{Code: CodeNoLineItems, Check: checkHasLines},
		{Code: CodeNegativeQuantity, Check: checkQuantities},
		{Code: CodeNegativePrice, Check: checkPrices},
		{Code: CodeLineCountMismatch, Check: checkLineCount},
		{Code: CodeMissingTotal, Check: checkHasTotal},
		{Code: CodeTotalsMismatch, Check: v.checkTotals},
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Validate runs every rule and collects all failures in rule order.
func (v *Validator) Validate(inv *model.Invoice) model.ValidationResult {
	var failures []model.RuleFailure
	for _, r := range v.rules {
		for _, msg := range r.Check(inv) {
			failures = append(failures, model.RuleFailure{Code: r.Code, Message: msg})
		}
	}
	if len(failures) > 0 {
		return model.ValidationResult{Verdict: model.VerdictFailed, Failures: failures}
	}
	return model.ValidationResult{Verdict: model.VerdictPassed}
}

// Tolerance returns the configured totals tolerance.
func (v *Validator) Tolerance() float64 {
	return v.tolerance
}

func checkInvoiceNumber(inv *model.Invoice) []string {
	if inv.InvoiceNumber == "" {
		return []string{"invoice number is empty (BIG02)"}
	}
	return nil
}

func checkInvoiceDate(inv *model.Invoice) []string {
	if inv.InvoiceDate == "" {
		return []string{"invoice date missing or unparseable (BIG01)"}
	}
	return nil
}

func checkVendor(inv *model.Invoice) []string {
	if inv.VendorID == "" {
		return []string{"vendor identifier is empty (no N1*RI remit-to party)"}
	}
	return nil
}

func checkHasLines(inv *model.Invoice) []string {
	if len(inv.Lines) == 0 {
		return []string{"no line items (IT1)"}
	}
	return nil
}

func checkQuantities(inv *model.Invoice) []string {
	var msgs []string
	for _, ln := range inv.Lines {
		if ln.Quantity < 0 {
			msgs = append(msgs, fmt.Sprintf("line %d has negative quantity %g", ln.LineNo, ln.Quantity))
		}
	}
	return msgs
}

func checkPrices(inv *model.Invoice) []string {
	var msgs []string
	for _, ln := range inv.Lines {
		if ln.UnitPrice < 0 {
			msgs = append(msgs, fmt.Sprintf("line %d has negative unit price %g", ln.LineNo, ln.UnitPrice))
		}
	}
	return msgs
}

func checkLineCount(inv *model.Invoice) []string {
	if inv.HasLineCount && inv.LineCount != len(inv.Lines) {
		return []string{fmt.Sprintf("line count mismatch: CTT=%d vs actual=%d", inv.LineCount, len(inv.Lines))}
	}
	return nil
}

func checkHasTotal(inv *model.Invoice) []string {
	if !inv.HasTotal {
		return []string{"declared invoice total missing or unparseable (TDS01)"}
	}
	return nil
}

func (v *Validator) checkTotals(inv *model.Invoice) []string {
	if !inv.HasTotal {
		return nil // MISSING_TOTAL already covers this
	}
	computed := inv.ComputedTotal()
	if math.Abs(computed-inv.Total) > v.tolerance {
		return []string{fmt.Sprintf("totals mismatch: lines+tax+charges=%.2f vs declared TDS=%.2f", computed, inv.Total)}
	}
	return nil
}
