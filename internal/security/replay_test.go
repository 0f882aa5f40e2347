package security_test

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rgdevment/sms-firewall/internal/security"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReplayGuard_FreshThenDuplicate(t *testing.T) {
	ctx := context.Background()
	guard := security.NewReplayGuard(security.NewMemoryNonceStore(100, time.Hour))

	v, err := guard.CheckAndRecord(ctx, "abc")
	require.NoError(t, err)
	assert.Equal(t, security.ReplayFresh, v)

	v, err = guard.CheckAndRecord(ctx, "abc")
	require.NoError(t, err)
	assert.Equal(t, security.ReplayDuplicate, v)

	v, err = guard.CheckAndRecord(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, security.ReplayNotApplicable, v)
}

func TestMemoryNonceStore_Bounded(t *testing.T) {
	ctx := context.Background()
	store := security.NewMemoryNonceStore(3, time.Hour)

	for i := 0; i < 10; i++ {
		fresh, err := store.Record(ctx, fmt.Sprintf("h%d", i))
		require.NoError(t, err)
		assert.True(t, fresh)
	}
	assert.Equal(t, 3, store.Len())

	// The newest entries survive eviction.
	fresh, _ := store.Record(ctx, "h9")
	assert.False(t, fresh)
	fresh, _ = store.Record(ctx, "h0")
	assert.True(t, fresh)
}

func TestMemoryNonceStore_ConcurrentSingleWinner(t *testing.T) {
	ctx := context.Background()
	store := security.NewMemoryNonceStore(100, time.Hour)

	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if fresh, _ := store.Record(ctx, "same"); fresh {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), wins.Load())
}

func TestNonceSource(t *testing.T) {
	assert.Equal(t, "id-1", security.NonceSource(url.Values{"id": {"id-1"}, "linkId": {"l"}}))
	assert.Equal(t, "link-9", security.NonceSource(url.Values{"linkId": {"link-9"}}))
	assert.Empty(t, security.NonceSource(url.Values{"text": {"hi"}}))
}

func TestHashNonce(t *testing.T) {
	h := security.HashNonce("abc")
	assert.Len(t, h, 64)
	assert.Equal(t, h, security.HashNonce("abc"))
	assert.NotEqual(t, h, security.HashNonce("abd"))
}

func TestParseTimestamp(t *testing.T) {
	cases := []struct {
		raw  string
		ok   bool
		want time.Time
	}{
		{"2026-03-01T12:00:00Z", true, time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)},
		{"2026-03-01 12:00:00", true, time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)},
		{"2026-03-01 12:00:00.250000", true, time.Date(2026, 3, 1, 12, 0, 0, 250000000, time.UTC)},
		{"yesterday", false, time.Time{}},
		{"", false, time.Time{}},
	}
	for _, tc := range cases {
		t.Run(tc.raw, func(t *testing.T) {
			got, ok := security.ParseTimestamp(tc.raw)
			assert.Equal(t, tc.ok, ok)
			if tc.ok {
				assert.True(t, tc.want.Equal(got), "got %s", got)
			}
		})
	}
}
