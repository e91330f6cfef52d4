package x12

import (
	"io"
	"regexp"
	"strings"

	"github.com/clearline/invoice-agent/internal/model"
)

// Default X12 delimiters, used when the envelope does not declare its own.
const (
	DefaultElementSep   = '*'
	DefaultSegmentTerm  = '~'
	isaElementSepOffset = 3 // ISA is fixed-width; the element separator follows the tag
)

// minElements lists tags whose segments imply a fixed minimal shape. A
// shorter segment is truncated, not merely sparse.
var minElements = map[string]int{
	"BIG": 2, // date + invoice number
	"IT1": 4, // line no, qty, uom, price
	"TDS": 1, // amount
	"CTT": 1, // line count
}

// segmentPattern extracts segments from documents whose terminator was
// stripped or mangled in transit.
var segmentPattern = regexp.MustCompile(`[A-Z0-9]{2,3}\*[^~\n\r]*`)

// Tokenizer yields the RawSegments of one document in order. It is lazy
// (element splitting happens per Next call) and restartable via Reset.
type Tokenizer struct {
	raw     []string
	elemSep string
	pos     int
}

// NewTokenizer splits raw document text into segment strings. The element
// separator is read from the ISA header when present, otherwise '*'. Segment
// boundaries are '~', falling back to newlines, then to pattern extraction.
// Returns ErrMalformedEnvelope when no segments can be recovered.
func NewTokenizer(text string) (*Tokenizer, error) {
	t := strings.TrimSpace(strings.ReplaceAll(strings.ReplaceAll(text, "\r\n", "\n"), "\r", "\n"))
	if t == "" {
		return nil, ErrMalformedEnvelope
	}

	elemSep := string(DefaultElementSep)
	if strings.HasPrefix(t, "ISA") && len(t) > isaElementSepOffset {
		elemSep = string(t[isaElementSepOffset])
	}

	var raw []string
	if strings.ContainsRune(t, DefaultSegmentTerm) {
		raw = splitNonEmpty(t, string(DefaultSegmentTerm))
	} else {
		raw = splitNonEmpty(t, "\n")
	}

	// Too few segments usually means the terminator was lost or the segments
	// share a line with transport garbage; recover by pattern extraction when
	// the document uses the default element separator.
	if len(raw) <= 2 && elemSep == string(DefaultElementSep) {
		if extracted := segmentPattern.FindAllString(t, -1); len(extracted) > 0 {
			raw = raw[:0]
			for _, s := range extracted {
				raw = append(raw, strings.TrimSpace(s))
			}
		}
	}

	if len(raw) == 0 || !strings.Contains(raw[0], elemSep) {
		return nil, ErrMalformedEnvelope
	}

	return &Tokenizer{raw: raw, elemSep: elemSep}, nil
}

func splitNonEmpty(s, sep string) []string {
	parts := strings.Split(s, sep)
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Next returns the next segment, io.EOF when exhausted, or a
// *TruncatedSegmentError when a fixed-shape segment is short.
func (t *Tokenizer) Next() (model.RawSegment, error) {
	if t.pos >= len(t.raw) {
		return model.RawSegment{}, io.EOF
	}
	seg := t.parse(t.raw[t.pos])
	t.pos++

	if want, ok := minElements[seg.Tag]; ok && len(seg.Elements) < want {
		return model.RawSegment{}, &TruncatedSegmentError{Tag: seg.Tag, Got: len(seg.Elements), Want: want}
	}
	return seg, nil
}

// Reset rewinds the tokenizer to the first segment.
func (t *Tokenizer) Reset() {
	t.pos = 0
}

// Len returns the total number of segments in the document.
func (t *Tokenizer) Len() int {
	return len(t.raw)
}

// All collects every remaining segment, stopping at the first error.
func (t *Tokenizer) All() ([]model.RawSegment, error) {
	var segs []model.RawSegment
	for {
		seg, err := t.Next()
		if err == io.EOF {
			return segs, nil
		}
		if err != nil {
			return segs, err
		}
		segs = append(segs, seg)
	}
}

func (t *Tokenizer) parse(raw string) model.RawSegment {
	parts := strings.Split(raw, t.elemSep)
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return model.RawSegment{Tag: parts[0], Elements: parts[1:]}
}
