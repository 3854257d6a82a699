package storage

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/account-sync/internal/types"
)

// setupTestRepository creates a snapshot repository backed by a test Redis
// instance.
func setupTestRepository(t *testing.T) (*SnapshotRepository, *SafeStore, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})

	store := NewSafeStore(NewRedisStoreFromClient(client), nil)
	keys := NewKeys("test")
	return NewSnapshotRepository(store, keys, nil), store, mr
}

func testSnapshot(accountID string) *types.AccountSnapshot {
	return &types.AccountSnapshot{
		AccountID: accountID,
		RawTrades: []types.TradeRecord{
			{Ticket: "1", Time: "2024-03-12 09:00:00", Profit: 10},
		},
		DailyResults: map[string]types.DailyResult{
			"2024-03-12": {Profit: 10, TradeCount: 1, Status: types.DayWin},
		},
		Balance:     types.BalanceInfo{Balance: 1000, Equity: 1010},
		LastUpdated: time.Now().UTC().Truncate(time.Millisecond),
	}
}

func TestSnapshotRepository_WriteRead(t *testing.T) {
	repo, _, _ := setupTestRepository(t)
	ctx := context.Background()

	t.Run("read before write misses", func(t *testing.T) {
		assert.Nil(t, repo.Read(ctx, "acct-1"))
	})

	t.Run("write then read round-trips", func(t *testing.T) {
		snapshot := testSnapshot("acct-1")
		require.NoError(t, repo.Write(ctx, "acct-1", snapshot))

		got := repo.Read(ctx, "acct-1")
		require.NotNil(t, got)
		assert.Equal(t, snapshot.AccountID, got.AccountID)
		assert.Equal(t, snapshot.RawTrades, got.RawTrades)
		assert.Equal(t, snapshot.DailyResults, got.DailyResults)
		assert.Equal(t, snapshot.Balance, got.Balance)
	})

	t.Run("write stamps both timing markers", func(t *testing.T) {
		require.NoError(t, repo.Write(ctx, "acct-1", testSnapshot("acct-1")))

		assert.False(t, repo.LastUpdateTime(ctx).IsZero())
		assert.False(t, repo.LastRefreshTime(ctx).IsZero())
	})

	t.Run("accounts are isolated", func(t *testing.T) {
		require.NoError(t, repo.Write(ctx, "acct-1", testSnapshot("acct-1")))
		require.NoError(t, repo.Write(ctx, "acct-2", testSnapshot("acct-2")))

		assert.Equal(t, "acct-1", repo.Read(ctx, "acct-1").AccountID)
		assert.Equal(t, "acct-2", repo.Read(ctx, "acct-2").AccountID)
	})
}

func TestSnapshotRepository_CorruptCache(t *testing.T) {
	repo, store, mr := setupTestRepository(t)
	ctx := context.Background()
	keys := NewKeys("test")

	t.Run("malformed json reads as a miss and is removed", func(t *testing.T) {
		mr.Set(keys.AccountData("acct-1"), "{not json")

		assert.Nil(t, repo.Read(ctx, "acct-1"))

		_, ok, _ := store.Get(ctx, keys.AccountData("acct-1"))
		assert.False(t, ok, "corrupt entry should have been deleted")
	})

	t.Run("snapshot under the wrong account key is discarded", func(t *testing.T) {
		require.NoError(t, repo.Write(ctx, "acct-2", testSnapshot("acct-2")))

		// Copy acct-2's snapshot under acct-1's key.
		raw, err := mr.Get(keys.AccountData("acct-2"))
		require.NoError(t, err)
		mr.Set(keys.AccountData("acct-1"), raw)

		assert.Nil(t, repo.Read(ctx, "acct-1"))
		assert.NotNil(t, repo.Read(ctx, "acct-2"))
	})
}

func TestSnapshotRepository_Clear(t *testing.T) {
	repo, _, _ := setupTestRepository(t)
	ctx := context.Background()

	t.Run("partial clear keeps the snapshot as a fallback", func(t *testing.T) {
		require.NoError(t, repo.Write(ctx, "acct-1", testSnapshot("acct-1")))

		repo.Clear(ctx, "acct-1", false)

		assert.NotNil(t, repo.Read(ctx, "acct-1"))
		assert.True(t, repo.LastUpdateTime(ctx).IsZero())
		assert.True(t, repo.LastRefreshTime(ctx).IsZero())
	})

	t.Run("full clear removes the snapshot too", func(t *testing.T) {
		require.NoError(t, repo.Write(ctx, "acct-1", testSnapshot("acct-1")))

		repo.Clear(ctx, "acct-1", true)

		assert.Nil(t, repo.Read(ctx, "acct-1"))
	})
}

func TestSnapshotRepository_IsStale(t *testing.T) {
	repo, _, mr := setupTestRepository(t)
	ctx := context.Background()
	keys := NewKeys("test")

	t.Run("missing marker is stale", func(t *testing.T) {
		assert.True(t, repo.IsStale(ctx, time.Minute))
	})

	t.Run("malformed marker is stale", func(t *testing.T) {
		mr.Set(keys.LastRefreshTime(), "not-a-number")
		assert.True(t, repo.IsStale(ctx, time.Minute))
	})

	t.Run("fresh write is not stale", func(t *testing.T) {
		require.NoError(t, repo.Write(ctx, "acct-1", testSnapshot("acct-1")))
		assert.False(t, repo.IsStale(ctx, time.Minute))
	})

	t.Run("old marker is stale", func(t *testing.T) {
		old := time.Now().Add(-time.Hour)
		mr.Set(keys.LastRefreshTime(), types.EpochMillis(old))
		assert.True(t, repo.IsStale(ctx, time.Minute))
	})
}
