// Package anomaly maintains per-vendor rolling invoice-amount history and
// scores new amounts as standardized deviations from that history.
package anomaly

import (
	"context"
	"sync"
)

// HistoryStore persists a bounded, ordered sequence of recent invoice
// amounts per vendor, newest first.
type HistoryStore interface {
	// Load returns up to the most recent amounts for a vendor, newest first.
	// An unknown vendor yields an empty slice, not an error.
	Load(ctx context.Context, vendorID string) ([]float64, error)

	// Append records a new amount and trims the history to capacity,
	// evicting the oldest entries.
	Append(ctx context.Context, vendorID string, amount float64, capacity int) error

	// Reset drops all history for a vendor.
	Reset(ctx context.Context, vendorID string) error
}

// MemoryStore is an in-process HistoryStore. It backs tests and serves as
// the degraded fallback when no durable store is configured.
type MemoryStore struct {
	mu      sync.RWMutex
	history map[string][]float64
}

// NewMemoryStore creates an empty in-memory history store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{history: make(map[string][]float64)}
}

func (m *MemoryStore) Load(_ context.Context, vendorID string) ([]float64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	h := m.history[vendorID]
	out := make([]float64, len(h))
	copy(out, h)
	return out, nil
}

func (m *MemoryStore) Append(_ context.Context, vendorID string, amount float64, capacity int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	h := append([]float64{amount}, m.history[vendorID]...)
	if capacity > 0 && len(h) > capacity {
		h = h[:capacity]
	}
	m.history[vendorID] = h
	return nil
}

func (m *MemoryStore) Reset(_ context.Context, vendorID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.history, vendorID)
	return nil
}
