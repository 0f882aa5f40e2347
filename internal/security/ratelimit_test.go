package security_test

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rgdevment/sms-firewall/internal/security"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func TestRateLimiter_SlidingWindow(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	limiter := security.NewRateLimiter(security.NewMemoryRateStore().WithClock(clock.Now), 3)

	for i := 0; i < 3; i++ {
		ok, err := limiter.Allow(ctx, "+254712345678")
		require.NoError(t, err)
		assert.True(t, ok, "request %d", i+1)
		clock.Advance(10 * time.Second)
	}

	ok, err := limiter.Allow(ctx, "+254712345678")
	require.NoError(t, err)
	assert.False(t, ok, "fourth request inside the window")

	ok, _ = limiter.Allow(ctx, "+254798765432")
	assert.True(t, ok, "other clients have their own window")

	// The first request was at t=0; at t=60s it has left the window.
	clock.Advance(30 * time.Second)
	ok, _ = limiter.Allow(ctx, "+254712345678")
	assert.True(t, ok)

	ok, _ = limiter.Allow(ctx, "+254712345678")
	assert.False(t, ok)
}

func TestRateLimiter_DefaultLimit(t *testing.T) {
	ctx := context.Background()
	limiter := security.NewRateLimiter(security.NewMemoryRateStore(), 0)

	for i := 0; i < 10; i++ {
		ok, _ := limiter.Allow(ctx, "c")
		require.True(t, ok)
	}
	ok, _ := limiter.Allow(ctx, "c")
	assert.False(t, ok)
}

func TestRateLimiter_ConcurrentNeverExceedsCap(t *testing.T) {
	ctx := context.Background()
	limiter := security.NewRateLimiter(security.NewMemoryRateStore(), 5)

	var admitted atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 40; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if ok, _ := limiter.Allow(ctx, "burst"); ok {
				admitted.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(5), admitted.Load())
}

func TestMemoryRateStore_SweepsIdleClients(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	store := security.NewMemoryRateStore().WithClock(clock.Now)

	for i := 0; i < 1000; i++ {
		_, err := store.Allow(ctx, fmt.Sprintf("client-%d", i), 10, time.Minute)
		require.NoError(t, err)
	}
	assert.Equal(t, 1000, store.Clients())

	clock.Advance(2 * time.Minute)
	for i := 0; i < 24; i++ {
		_, _ = store.Allow(ctx, "active", 100, time.Minute)
	}
	assert.Equal(t, 1, store.Clients())
}
