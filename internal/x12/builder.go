package x12

import (
	"io"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/clearline/invoice-agent/internal/model"
)

// segmentHandler applies one segment to the invoice under construction.
type segmentHandler func(b *builderState, seg model.RawSegment) error

// handlers dispatches segments by tag. Tags without an entry are skipped,
// which keeps the builder forward-compatible with segments we do not map.
var handlers = map[string]segmentHandler{
	"ISA": handleISA,
	"GS":  handleGS,
	"ST":  handleST,
	"BIG": handleBIG,
	"N1":  handleN1,
	"ITD": handleITD,
	"IT1": handleIT1,
	"TXI": handleTXI,
	"SAC": handleSAC,
	"TDS": handleTDS,
	"CTT": handleCTT,
}

type builderState struct {
	inv     model.Invoice
	sawBIG  bool
	sawTDS  bool
	lineNos map[int]bool
}

// Build consumes the tokenizer and assembles a typed Invoice. Tokenizer
// errors propagate; a document without BIG or TDS fails with the
// corresponding missing-segment error.
func Build(tok *Tokenizer) (*model.Invoice, error) {
	b := &builderState{lineNos: make(map[int]bool)}
	b.inv.Currency = "USD"

	for {
		seg, err := tok.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		h, ok := handlers[seg.Tag]
		if !ok {
			continue
		}
		if err := h(b, seg); err != nil {
			return nil, err
		}
	}

	if !b.sawBIG {
		return nil, ErrMissingInvoiceSegment
	}
	if !b.sawTDS {
		return nil, ErrMissingTotalsSegment
	}
	return &b.inv, nil
}

func handleISA(b *builderState, seg model.RawSegment) error {
	b.inv.Meta.SenderID = seg.Element(5)
	b.inv.Meta.ReceiverID = seg.Element(7)
	b.inv.Meta.InterchangeControl = seg.Element(12)
	return nil
}

func handleGS(b *builderState, seg model.RawSegment) error {
	b.inv.Meta.GroupControl = seg.Element(5)
	return nil
}

func handleST(b *builderState, seg model.RawSegment) error {
	b.inv.Meta.TransactionControl = seg.Element(1)
	return nil
}

func handleBIG(b *builderState, seg model.RawSegment) error {
	b.sawBIG = true
	if raw := seg.Element(0); raw != "" {
		if d, err := time.Parse("20060102", raw); err == nil {
			b.inv.InvoiceDate = d.Format("2006-01-02")
		}
	}
	b.inv.InvoiceNumber = seg.Element(1)
	b.inv.PONumber = seg.Element(2)
	return nil
}

func handleN1(b *builderState, seg model.RawSegment) error {
	if len(seg.Elements) < 4 {
		return nil
	}
	switch seg.Element(0) {
	case "RE": // bill-to party
		b.inv.BillToID = seg.Element(3)
	case "RI": // remit-to party is the vendor of record
		b.inv.VendorID = seg.Element(3)
		b.inv.VendorName = seg.Element(1)
	}
	return nil
}

func handleITD(b *builderState, seg model.RawSegment) error {
	days := seg.Element(6)
	if days == "" {
		days = seg.Element(7)
	}
	if days == "" {
		days = "30"
	}
	b.inv.Terms = "NET" + days
	return nil
}

func handleIT1(b *builderState, seg model.RawSegment) error {
	lineNo := len(b.inv.Lines) + 1
	if n, err := strconv.Atoi(seg.Element(0)); err == nil && n > 0 {
		lineNo = n
	}
	if b.lineNos[lineNo] {
		return &DuplicateLineNumberError{LineNo: lineNo}
	}
	b.lineNos[lineNo] = true

	ln := model.LineItem{
		LineNo:    lineNo,
		Quantity:  parseFloat(seg.Element(1)),
		UOM:       seg.Element(2),
		UnitPrice: parseFloat(seg.Element(3)),
		ItemID:    seg.Element(6),
	}
	if ln.UOM == "" {
		ln.UOM = "EA"
	}
	ln.Extended = round2(ln.Quantity * ln.UnitPrice)
	if ln.ItemID != "" {
		ln.Description = "Item " + ln.ItemID
	} else {
		ln.Description = "Item " + strconv.Itoa(lineNo)
	}
	b.inv.Lines = append(b.inv.Lines, ln)
	return nil
}

// handleTXI records a tax amount. TXI02 is commonly N2 (implied cents): a
// bare integer string is divided by 100.
func handleTXI(b *builderState, seg model.RawSegment) error {
	raw := strings.TrimSpace(seg.Element(1))
	if raw == "" {
		return nil
	}
	amt, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return nil // unparseable tax amounts are dropped, not fatal
	}
	if isDigits(raw) {
		amt /= 100
	}
	b.inv.Taxes = append(b.inv.Taxes, model.TaxEntry{Type: seg.Element(0), Amount: round2(amt)})
	return nil
}

// handleSAC records an allowance/charge. SAC01 'A' is an allowance and
// reduces the total, so it is stored negative. SAC05 carries plain dollars.
func handleSAC(b *builderState, seg model.RawSegment) error {
	raw := seg.Element(4)
	if raw == "" {
		return nil
	}
	amt, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return nil
	}
	kind := strings.ToUpper(seg.Element(0))
	if kind == "" {
		kind = "C"
	}
	if kind == "A" {
		amt = -amt
	}
	b.inv.Charges = append(b.inv.Charges, model.ChargeEntry{Type: kind, Amount: round2(amt)})
	return nil
}

// handleTDS records the declared invoice total. TDS01 usually carries N2
// implied cents; whole-number or large values are treated as cents.
func handleTDS(b *builderState, seg model.RawSegment) error {
	b.sawTDS = true
	raw, err := strconv.ParseFloat(seg.Element(0), 64)
	if err != nil {
		return nil
	}
	total := raw
	if raw == math.Trunc(raw) || raw > 100 {
		total = raw / 100
	}
	b.inv.Total = round2(total)
	b.inv.HasTotal = true
	return nil
}

func handleCTT(b *builderState, seg model.RawSegment) error {
	n, err := strconv.Atoi(seg.Element(0))
	if err != nil {
		return nil
	}
	b.inv.LineCount = n
	b.inv.HasLineCount = true
	return nil
}

func parseFloat(s string) float64 {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return f
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func round2(f float64) float64 {
	return math.Round(f*100) / 100
}
