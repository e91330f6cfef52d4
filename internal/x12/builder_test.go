package x12

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildFrom(t *testing.T, doc string) *Tokenizer {
	t.Helper()
	tok, err := NewTokenizer(doc)
	require.NoError(t, err)
	return tok
}

func TestBuildFullDocument(t *testing.T) {
	tok, err := NewTokenizer(sampleDoc)
	require.NoError(t, err)

	inv, err := Build(tok)
	require.NoError(t, err)

	assert.Equal(t, "INV1001", inv.InvoiceNumber)
	assert.Equal(t, "2024-01-01", inv.InvoiceDate)
	assert.Equal(t, "PO123", inv.PONumber)
	assert.Equal(t, "ACME", inv.VendorID)
	assert.Equal(t, "ACME SUPPLY", inv.VendorName)
	assert.Equal(t, "000000001", inv.Meta.InterchangeControl)
	assert.Equal(t, "0001", inv.Meta.TransactionControl)

	require.Len(t, inv.Lines, 1)
	assert.Equal(t, 1, inv.Lines[0].LineNo)
	assert.Equal(t, 10.0, inv.Lines[0].Quantity)
	assert.Equal(t, 50.0, inv.Lines[0].Extended)
	assert.Equal(t, "ITEM-A", inv.Lines[0].ItemID)

	assert.True(t, inv.HasTotal)
	assert.Equal(t, 50.0, inv.Total, "TDS*5000 is implied cents")
	assert.True(t, inv.HasLineCount)
	assert.Equal(t, 1, inv.LineCount)
}

func TestBuildMissingInvoiceSegment(t *testing.T) {
	tok := buildFrom(t, "ST*810*0001~IT1*1*1*EA*2.00~TDS*200~")
	_, err := Build(tok)
	assert.ErrorIs(t, err, ErrMissingInvoiceSegment)
}

func TestBuildMissingTotalsSegment(t *testing.T) {
	tok := buildFrom(t, "BIG*20240101*INV1~IT1*1*1*EA*2.00~")
	_, err := Build(tok)
	assert.ErrorIs(t, err, ErrMissingTotalsSegment)
}

func TestBuildDuplicateLineNumber(t *testing.T) {
	tok := buildFrom(t, "BIG*20240101*INV1~IT1*3*1*EA*2.00~IT1*3*2*EA*4.00~TDS*1000~")
	_, err := Build(tok)

	var dup *DuplicateLineNumberError
	require.ErrorAs(t, err, &dup)
	assert.Equal(t, 3, dup.LineNo)
}

func TestBuildLineNumbersByEncounterOrder(t *testing.T) {
	// IT1-01 absent: line numbers are assigned 1..n in encounter order.
	tok := buildFrom(t, "BIG*20240101*INV1~IT1**2*EA*1.00~IT1**3*EA*1.00~TDS*500~")
	inv, err := Build(tok)
	require.NoError(t, err)

	require.Len(t, inv.Lines, 2)
	assert.Equal(t, 1, inv.Lines[0].LineNo)
	assert.Equal(t, 2, inv.Lines[1].LineNo)
}

func TestBuildUnknownSegmentsSkipped(t *testing.T) {
	doc := "BIG*20240101*INV1~REF*DP*00001~DTM*011*20240102~PID*F****WIDGET~IT1*1*1*EA*2.00~TDS*200~"
	tok := buildFrom(t, doc)

	inv, err := Build(tok)
	require.NoError(t, err)
	assert.Equal(t, "INV1", inv.InvoiceNumber)
	assert.Len(t, inv.Lines, 1)
}

func TestBuildTaxImpliedCents(t *testing.T) {
	tok := buildFrom(t, "BIG*20240101*INV1~IT1*1*1*EA*2.00~TXI*ST*150~TDS*350~")
	inv, err := Build(tok)
	require.NoError(t, err)

	require.Len(t, inv.Taxes, 1)
	assert.Equal(t, "ST", inv.Taxes[0].Type)
	assert.Equal(t, 1.50, inv.Taxes[0].Amount)
}

func TestBuildTaxDecimalKeptAsIs(t *testing.T) {
	tok := buildFrom(t, "BIG*20240101*INV1~IT1*1*1*EA*2.00~TXI*ST*1.50~TDS*350~")
	inv, err := Build(tok)
	require.NoError(t, err)

	require.Len(t, inv.Taxes, 1)
	assert.Equal(t, 1.50, inv.Taxes[0].Amount)
}

func TestBuildAllowanceSubtracts(t *testing.T) {
	tok := buildFrom(t, "BIG*20240101*INV1~IT1*1*1*EA*10.00~SAC*A****2.50~SAC*C****1.00~TDS*850~")
	inv, err := Build(tok)
	require.NoError(t, err)

	require.Len(t, inv.Charges, 2)
	assert.Equal(t, -2.50, inv.Charges[0].Amount)
	assert.Equal(t, 1.00, inv.Charges[1].Amount)
	assert.InDelta(t, 8.50, inv.ComputedTotal(), 0.001)
}

func TestBuildTDSHeuristic(t *testing.T) {
	tests := []struct {
		name string
		tds  string
		want float64
	}{
		{"implied cents integer", "45050", 450.50},
		{"small decimal kept", "45.5", 45.5},
		{"whole dollars treated as cents", "500", 5.00},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tok := buildFrom(t, "BIG*20240101*INV1~IT1*1*1*EA*2.00~TDS*"+tt.tds+"~")
			inv, err := Build(tok)
			require.NoError(t, err)
			assert.InDelta(t, tt.want, inv.Total, 0.001)
		})
	}
}

func TestBuildInvalidDateLeftEmpty(t *testing.T) {
	tok := buildFrom(t, "BIG*2024-BAD*INV1~IT1*1*1*EA*2.00~TDS*200~")
	inv, err := Build(tok)
	require.NoError(t, err)
	assert.Empty(t, inv.InvoiceDate)
}

func TestBuildTerms(t *testing.T) {
	tok := buildFrom(t, "BIG*20240101*INV1~ITD*01*3*****45~IT1*1*1*EA*2.00~TDS*200~")
	inv, err := Build(tok)
	require.NoError(t, err)
	assert.Equal(t, "NET45", inv.Terms)
}
