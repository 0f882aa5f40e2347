package security

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// RateWindow is the trailing interval the per-client cap applies to.
const RateWindow = time.Minute

// RateStore keeps per-client request timestamps. Allow must prune, count and
// append as one atomic step for a given client.
type RateStore interface {
	Allow(ctx context.Context, clientID string, limit int, window time.Duration) (bool, error)
}

// RateLimiter enforces a sliding-window cap per client.
type RateLimiter struct {
	store RateStore
	limit int
}

func NewRateLimiter(store RateStore, perMinute int) *RateLimiter {
	if perMinute <= 0 {
		perMinute = 10
	}
	return &RateLimiter{store: store, limit: perMinute}
}

// Allow records a request for clientID and reports whether it is within the cap.
func (l *RateLimiter) Allow(ctx context.Context, clientID string) (bool, error) {
	ok, err := l.store.Allow(ctx, clientID, l.limit, RateWindow)
	if err != nil {
		return false, fmt.Errorf("rate store: %w", err)
	}
	return ok, nil
}

// sweepEvery controls how often idle clients are dropped from memory.
const sweepEvery = 1024

// MemoryRateStore is a single-process RateStore. Stale timestamps are pruned
// lazily when the client is checked; idle clients are swept periodically.
type MemoryRateStore struct {
	mu      sync.Mutex
	windows map[string][]time.Time
	calls   int
	now     func() time.Time
}

func NewMemoryRateStore() *MemoryRateStore {
	return &MemoryRateStore{
		windows: make(map[string][]time.Time),
		now:     time.Now,
	}
}

// WithClock swaps the time source. Tests only.
func (s *MemoryRateStore) WithClock(now func() time.Time) *MemoryRateStore {
	s.now = now
	return s
}

// Allow implements RateStore.
func (s *MemoryRateStore) Allow(_ context.Context, clientID string, limit int, window time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	hits := prune(s.windows[clientID], now, window)

	s.calls++
	if s.calls%sweepEvery == 0 {
		s.sweep(now, window)
	}

	if len(hits) >= limit {
		s.windows[clientID] = hits
		return false, nil
	}
	s.windows[clientID] = append(hits, now)
	return true, nil
}

// Clients returns how many clients currently hold a window.
func (s *MemoryRateStore) Clients() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.windows)
}

func (s *MemoryRateStore) sweep(now time.Time, window time.Duration) {
	for id, hits := range s.windows {
		if len(prune(hits, now, window)) == 0 {
			delete(s.windows, id)
		}
	}
}

// prune drops timestamps at or beyond the window. hits is ordered oldest first.
func prune(hits []time.Time, now time.Time, window time.Duration) []time.Time {
	i := 0
	for i < len(hits) && now.Sub(hits[i]) >= window {
		i++
	}
	return hits[i:]
}
