// Package erp provides a client for the downstream vendor-bill posting API.
package erp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rotisserie/eris"

	"github.com/clearline/invoice-agent/internal/model"
)

// Client defines the posting operations the pipeline depends on.
type Client interface {
	// PostVendorBill submits an invoice and returns the ERP's opaque
	// reference for the created bill.
	PostVendorBill(ctx context.Context, inv *model.Invoice) (string, error)
}

// PostingFailedError reports a rejected or failed posting attempt. The
// pipeline converts it into a REJECTED outcome with an explanation.
type PostingFailedError struct {
	InvoiceNumber string
	StatusCode    int
	Reason        string
}

func (e *PostingFailedError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("erp: posting %s failed: status %d: %s", e.InvoiceNumber, e.StatusCode, e.Reason)
	}
	return fmt.Sprintf("erp: posting %s failed: %s", e.InvoiceNumber, e.Reason)
}

// billPayload is the /vendor-bills request body.
type billPayload struct {
	VendorID      string        `json:"vendor_id"`
	InvoiceNumber string        `json:"invoice_number"`
	InvoiceDate   string        `json:"invoice_date"`
	Currency      string        `json:"currency"`
	Lines         []linePayload `json:"lines"`
}

type linePayload struct {
	Description string  `json:"description"`
	Qty         float64 `json:"qty"`
	UnitPrice   float64 `json:"unit_price"`
	GLAccount   string  `json:"gl_account"`
}

// Option configures the HTTP client.
type Option func(*httpClient)

// WithBaseURL sets a custom base URL (for testing).
func WithBaseURL(url string) Option {
	return func(c *httpClient) {
		c.baseURL = url
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

// WithTimeout bounds each posting attempt.
func WithTimeout(d time.Duration) Option {
	return func(c *httpClient) {
		c.http.Timeout = d
	}
}

type httpClient struct {
	baseURL string
	http    *http.Client
}

// NewClient creates an HTTP posting client.
func NewClient(baseURL string, opts ...Option) Client {
	c := &httpClient{
		baseURL: baseURL,
		http: &http.Client{
			Timeout: 15 * time.Second,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// retryableStatusCode returns true if the HTTP status code should trigger a retry.
func retryableStatusCode(code int) bool {
	return code == http.StatusTooManyRequests ||
		code == http.StatusInternalServerError ||
		code == http.StatusBadGateway ||
		code == http.StatusServiceUnavailable
}

func (c *httpClient) PostVendorBill(ctx context.Context, inv *model.Invoice) (string, error) {
	vendorID := inv.VendorID
	if vendorID == "" {
		vendorID = "UNKNOWN"
	}
	currency := inv.Currency
	if currency == "" {
		currency = "USD"
	}

	payload := billPayload{
		VendorID:      vendorID,
		InvoiceNumber: inv.InvoiceNumber,
		InvoiceDate:   inv.InvoiceDate,
		Currency:      currency,
	}
	for _, ln := range inv.Lines {
		payload.Lines = append(payload.Lines, linePayload{
			Description: ln.Description,
			Qty:         ln.Quantity,
			UnitPrice:   ln.UnitPrice,
			GLAccount:   ln.GLAccount,
		})
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", eris.Wrap(err, "erp: marshal bill")
	}

	const maxAttempts = 3
	backoff := 1 * time.Second

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		ref, statusCode, err := c.post(ctx, body)
		if err == nil {
			return ref, nil
		}
		lastErr = err

		if !retryableStatusCode(statusCode) || attempt >= maxAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return "", &PostingFailedError{InvoiceNumber: inv.InvoiceNumber, Reason: ctx.Err().Error()}
		case <-time.After(backoff):
		}
		backoff *= 2
	}

	var pf *PostingFailedError
	if errors.As(lastErr, &pf) {
		pf.InvoiceNumber = inv.InvoiceNumber
		return "", pf
	}
	return "", &PostingFailedError{InvoiceNumber: inv.InvoiceNumber, Reason: lastErr.Error()}
}

func (c *httpClient) post(ctx context.Context, body []byte) (string, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/vendor-bills", bytes.NewReader(body))
	if err != nil {
		return "", 0, eris.Wrap(err, "erp: build request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return "", resp.StatusCode, &PostingFailedError{
			StatusCode: resp.StatusCode,
			Reason:     http.StatusText(resp.StatusCode),
		}
	}

	var out struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", resp.StatusCode, eris.Wrap(err, "erp: decode response")
	}
	if out.ID == "" {
		return "", resp.StatusCode, &PostingFailedError{Reason: "response missing bill id"}
	}
	return out.ID, resp.StatusCode, nil
}
