//go:build integration

package scylla_test

import (
	"context"
	"os"
	"sync"
	"testing"

	"github.com/rgdevment/sms-firewall/internal/domain"
	"github.com/rgdevment/sms-firewall/internal/platform/storage/scylla"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScylla_ConcurrentUpsert(t *testing.T) {
	host := os.Getenv("SCYLLA_HOST")
	if host == "" {
		t.Skip("SCYLLA_HOST not set, skipping scylla integration test")
	}
	keyspace := os.Getenv("SCYLLA_KEYSPACE")
	if keyspace == "" {
		keyspace = "sms_firewall_test"
	}

	ctx := context.Background()
	session, err := scylla.Connect(keyspace, host)
	require.NoError(t, err)
	require.NoError(t, scylla.Migrate(ctx, session))
	require.NoError(t, session.Query(`TRUNCATE blacklist`).Exec())

	repo := scylla.NewScyllaRepository(session)
	t.Cleanup(func() { repo.Close() })

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := repo.UpsertBlacklist(ctx, domain.EntityPhone, "+254712345678", true, "")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	e, err := repo.GetBlacklistEntry(ctx, domain.EntityPhone, "+254712345678")
	require.NoError(t, err)
	require.NotNil(t, e)
	assert.Equal(t, 8, e.HitCount)
	assert.True(t, e.AutoBlocked)
}
