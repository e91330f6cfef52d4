package anomaly

import (
	"context"
	"math"
	"sync"

	"go.uber.org/zap"

	"github.com/clearline/invoice-agent/internal/model"
)

// Defaults for the rolling window. Both are configuration, not arithmetic
// baked into the scorer.
const (
	DefaultWindow     = 50
	DefaultMinSamples = 5
)

// Config tunes the scorer.
type Config struct {
	// Window is the per-vendor history capacity; oldest entries are evicted.
	Window int
	// MinSamples is the history size below which the score degrades to 0.
	MinSamples int
	// RejectOver, when > 0, turns |z| above the threshold into a rejection
	// rule applied after scoring. Zero disables it.
	RejectOver float64
}

func (c Config) withDefaults() Config {
	if c.Window <= 0 {
		c.Window = DefaultWindow
	}
	if c.MinSamples <= 0 {
		c.MinSamples = DefaultMinSamples
	}
	return c
}

// Scorer computes rolling z-scores of invoice amounts per vendor. Scoring
// never fails: store unavailability degrades to an empty history and a zero
// score. Updates for the same vendor are serialized so concurrent batch
// workers apply history appends in call order.
type Scorer struct {
	store HistoryStore
	cfg   Config

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewScorer creates a Scorer over the given history store.
func NewScorer(store HistoryStore, cfg Config) *Scorer {
	return &Scorer{
		store: store,
		cfg:   cfg.withDefaults(),
		locks: make(map[string]*sync.Mutex),
	}
}

// vendorLock returns the mutex serializing one vendor's read-modify-write.
// Cross-vendor scoring stays fully concurrent.
func (s *Scorer) vendorLock(vendorID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[vendorID]
	if !ok {
		l = &sync.Mutex{}
		s.locks[vendorID] = l
	}
	return l
}

// Score computes the z-score of amount against the vendor's history as it
// stood before this call, then appends the amount and trims to the window.
// Insufficient history or zero variance yields a zero score.
func (s *Scorer) Score(ctx context.Context, vendorID string, amount float64) model.ScoreResult {
	if vendorID == "" {
		vendorID = "UNKNOWN"
	}

	lock := s.vendorLock(vendorID)
	lock.Lock()
	defer lock.Unlock()

	history, err := s.store.Load(ctx, vendorID)
	if err != nil {
		// History store down: score neutrally rather than failing the document.
		zap.L().Warn("anomaly: history load failed, degrading to empty history",
			zap.String("vendor_id", vendorID),
			zap.Error(err),
		)
		history = nil
	}

	result := model.ScoreResult{Samples: len(history)}
	if len(history) >= s.cfg.MinSamples {
		mean, stdev := meanStdev(history)
		if stdev > 0 {
			result.ZScore = round2((amount - mean) / stdev)
		}
	}

	if err := s.store.Append(ctx, vendorID, amount, s.cfg.Window); err != nil {
		zap.L().Warn("anomaly: history append failed",
			zap.String("vendor_id", vendorID),
			zap.Error(err),
		)
	}

	return result
}

// Exceeds reports whether a score trips the configured hard threshold.
// Always false when the threshold is disabled.
func (s *Scorer) Exceeds(score model.ScoreResult) bool {
	return s.cfg.RejectOver > 0 && math.Abs(score.ZScore) > s.cfg.RejectOver
}

// History exposes the vendor's stored amounts, newest first.
func (s *Scorer) History(ctx context.Context, vendorID string) ([]float64, error) {
	return s.store.Load(ctx, vendorID)
}

// Reset drops a vendor's history.
func (s *Scorer) Reset(ctx context.Context, vendorID string) error {
	return s.store.Reset(ctx, vendorID)
}

// meanStdev returns the mean and population standard deviation.
func meanStdev(vals []float64) (float64, float64) {
	n := float64(len(vals))
	var sum float64
	for _, v := range vals {
		sum += v
	}
	mean := sum / n

	var sq float64
	for _, v := range vals {
		d := v - mean
		sq += d * d
	}
	return mean, math.Sqrt(sq / n)
}

func round2(f float64) float64 {
	return math.Round(f*100) / 100
}
