// Package x12 tokenizes raw EDI X12 text and assembles 810 invoice
// documents. Parsing is split in two: the Tokenizer produces RawSegments and
// the Builder folds them into a typed Invoice. Neither performs business
// validation.
package x12

import (
	"errors"
	"fmt"
)

// Sentinel errors for the parse-stage taxonomy. All of them are fatal to a
// single document and converted to a REJECTED outcome by the orchestrator.
var (
	// ErrMalformedEnvelope means no segment delimiter could be determined
	// from the document.
	ErrMalformedEnvelope = errors.New("x12: malformed envelope: no segment delimiter determined")

	// ErrMissingInvoiceSegment means the document has no BIG segment.
	ErrMissingInvoiceSegment = errors.New("x12: missing required BIG invoice segment")

	// ErrMissingTotalsSegment means the document has no TDS segment.
	ErrMissingTotalsSegment = errors.New("x12: missing required TDS totals segment")
)

// TruncatedSegmentError reports a segment whose tag implies a fixed minimal
// shape but which carries fewer elements.
type TruncatedSegmentError struct {
	Tag  string
	Got  int
	Want int
}

func (e *TruncatedSegmentError) Error() string {
	return fmt.Sprintf("x12: truncated %s segment: %d elements, need at least %d", e.Tag, e.Got, e.Want)
}

// DuplicateLineNumberError reports two IT1 segments declaring the same line
// number.
type DuplicateLineNumberError struct {
	LineNo int
}

func (e *DuplicateLineNumberError) Error() string {
	return fmt.Sprintf("x12: duplicate line number %d", e.LineNo)
}
