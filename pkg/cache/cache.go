// Package cache memoizes the full ledger table for a bounded time window.
package cache

import (
	"context"
	"sync"
	"time"

	"github.com/mcclellann/airbersih/pkg/metrics"
	"github.com/mcclellann/airbersih/pkg/models"
)

// Loader performs a fresh read of the full ledger table.
type Loader func(ctx context.Context) ([]models.LedgerRow, error)

// Snapshot holds the last table read and when it was taken. Callers must treat the
// returned rows as read-only.
type Snapshot struct {
	load Loader
	ttl  time.Duration
	now  func() time.Time

	mu          sync.Mutex
	rows        []models.LedgerRow
	lastRefresh time.Time
	valid       bool
}

type Option func(*Snapshot)

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Snapshot) { s.now = now }
}

// New returns an empty cache; the first Get always loads.
func New(load Loader, ttl time.Duration, opts ...Option) *Snapshot {
	s := &Snapshot{load: load, ttl: ttl, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Get returns the cached rows while they are younger than the TTL, otherwise reloads.
// A failed load leaves the cache as it was. The lock is held across the load so
// concurrent callers share one read.
func (s *Snapshot) Get(ctx context.Context) ([]models.LedgerRow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if s.valid && now.Sub(s.lastRefresh) < s.ttl {
		metrics.ObserveSnapshotLookup(true)
		return s.rows, nil
	}
	metrics.ObserveSnapshotLookup(false)

	rows, err := s.load(ctx)
	if err != nil {
		return nil, err
	}
	s.rows = rows
	s.lastRefresh = now
	s.valid = true
	return rows, nil
}

// Invalidate forces the next Get to reload regardless of the TTL.
func (s *Snapshot) Invalidate() {
	s.mu.Lock()
	s.valid = false
	s.mu.Unlock()
}

// LastRefresh reports when the cached rows were read; zero if never.
func (s *Snapshot) LastRefresh() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastRefresh
}
