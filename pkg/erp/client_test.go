package erp

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clearline/invoice-agent/internal/model"
)

func testInvoice() *model.Invoice {
	return &model.Invoice{
		InvoiceNumber: "INV1002",
		InvoiceDate:   "2024-01-01",
		VendorID:      "ACME",
		Lines: []model.LineItem{
			{LineNo: 1, Description: "Item ITEM-A", Quantity: 10, UnitPrice: 5, Extended: 50, GLAccount: "6401"},
		},
	}
}

func TestPostVendorBill(t *testing.T) {
	var got billPayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/vendor-bills", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		json.NewEncoder(w).Encode(map[string]string{"id": "bill-123"})
	}))
	defer srv.Close()

	ref, err := NewClient(srv.URL).PostVendorBill(context.Background(), testInvoice())
	require.NoError(t, err)
	assert.Equal(t, "bill-123", ref)

	assert.Equal(t, "ACME", got.VendorID)
	assert.Equal(t, "INV1002", got.InvoiceNumber)
	assert.Equal(t, "USD", got.Currency, "currency defaults to USD")
	require.Len(t, got.Lines, 1)
	assert.Equal(t, "6401", got.Lines[0].GLAccount)
}

func TestPostVendorBillUnknownVendor(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var got billPayload
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		assert.Equal(t, "UNKNOWN", got.VendorID)
		json.NewEncoder(w).Encode(map[string]string{"id": "bill-1"})
	}))
	defer srv.Close()

	inv := testInvoice()
	inv.VendorID = ""
	_, err := NewClient(srv.URL).PostVendorBill(context.Background(), inv)
	require.NoError(t, err)
}

func TestPostVendorBillRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "duplicate bill", http.StatusConflict)
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL).PostVendorBill(context.Background(), testInvoice())
	var pf *PostingFailedError
	require.ErrorAs(t, err, &pf)
	assert.Equal(t, "INV1002", pf.InvoiceNumber)
	assert.Equal(t, http.StatusConflict, pf.StatusCode)
}

func TestPostVendorBillRetriesTransient(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			http.Error(w, "busy", http.StatusServiceUnavailable)
			return
		}
		json.NewEncoder(w).Encode(map[string]string{"id": "bill-2"})
	}))
	defer srv.Close()

	ref, err := NewClient(srv.URL).PostVendorBill(context.Background(), testInvoice())
	require.NoError(t, err)
	assert.Equal(t, "bill-2", ref)
	assert.Equal(t, int32(2), calls.Load())
}

func TestPostVendorBillNoRetryOnBadRequest(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "bad bill", http.StatusBadRequest)
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL).PostVendorBill(context.Background(), testInvoice())
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load(), "4xx is not retried")
}

func TestPostVendorBillMissingID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("{}"))
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL).PostVendorBill(context.Background(), testInvoice())
	var pf *PostingFailedError
	require.ErrorAs(t, err, &pf)
	assert.Contains(t, pf.Reason, "missing bill id")
}

func TestDryRunReference(t *testing.T) {
	ref, err := NewDryRun().PostVendorBill(context.Background(), testInvoice())
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(ref, "DEMO-"), "got %q", ref)
}
