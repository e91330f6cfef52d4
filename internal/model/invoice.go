package model

// RawSegment is a single tokenized X12 segment: a tag plus its ordered
// elements. Immutable once produced by the tokenizer.
type RawSegment struct {
	Tag      string   `json:"tag"`
	Elements []string `json:"elements"`
}

// Element returns the i-th element (zero-based, tag excluded) or "" when the
// segment is too short. X12 segments routinely omit trailing elements, so
// positional access must not panic.
func (s RawSegment) Element(i int) string {
	if i < 0 || i >= len(s.Elements) {
		return ""
	}
	return s.Elements[i]
}

// EnvelopeMeta holds interchange-level identifiers from ISA/GS/ST segments.
type EnvelopeMeta struct {
	InterchangeControl string `json:"interchange_control,omitempty"`
	SenderID           string `json:"sender_id,omitempty"`
	ReceiverID         string `json:"receiver_id,omitempty"`
	GroupControl       string `json:"group_control,omitempty"`
	TransactionControl string `json:"transaction_control,omitempty"`
}

// LineItem is one IT1 detail line of an invoice.
type LineItem struct {
	LineNo      int     `json:"line_no"`
	ItemID      string  `json:"item_id,omitempty"`
	Description string  `json:"description"`
	Quantity    float64 `json:"qty"`
	UOM         string  `json:"uom"`
	UnitPrice   float64 `json:"unit_price"`
	Extended    float64 `json:"ext_price"`
	GLAccount   string  `json:"gl_account,omitempty"`
}

// TaxEntry is a TXI tax amount.
type TaxEntry struct {
	Type   string  `json:"type"`
	Amount float64 `json:"amount"`
}

// ChargeEntry is a SAC allowance or charge. Allowances carry a negative
// amount so totals arithmetic can sum entries directly.
type ChargeEntry struct {
	Type   string  `json:"type"`
	Amount float64 `json:"amount"`
}

// Invoice is the typed representation of one 810 document.
type Invoice struct {
	Meta          EnvelopeMeta  `json:"meta"`
	InvoiceNumber string        `json:"invoice_number"`
	InvoiceDate   string        `json:"invoice_date,omitempty"` // ISO yyyy-mm-dd
	PONumber      string        `json:"po_number,omitempty"`
	Terms         string        `json:"terms,omitempty"`
	VendorID      string        `json:"vendor_id,omitempty"` // N1*RI remit-to
	VendorName    string        `json:"vendor_name,omitempty"`
	BillToID      string        `json:"bill_to_id,omitempty"`
	Currency      string        `json:"currency,omitempty"`
	Lines         []LineItem    `json:"lines"`
	Taxes         []TaxEntry    `json:"tax,omitempty"`
	Charges       []ChargeEntry `json:"charges,omitempty"`

	// Declared totals from TDS/CTT, compared against computed values by the
	// validator rather than trusted.
	Total        float64 `json:"invoice_total"`
	HasTotal     bool    `json:"-"`
	LineCount    int     `json:"line_count"`
	HasLineCount bool    `json:"-"`
}

// LineSum returns the sum of line extended amounts.
func (inv *Invoice) LineSum() float64 {
	var sum float64
	for _, ln := range inv.Lines {
		sum += ln.Extended
	}
	return sum
}

// ComputedTotal returns lines + taxes + charges, the value TDS is expected
// to declare.
func (inv *Invoice) ComputedTotal() float64 {
	sum := inv.LineSum()
	for _, t := range inv.Taxes {
		sum += t.Amount
	}
	for _, c := range inv.Charges {
		sum += c.Amount
	}
	return sum
}
