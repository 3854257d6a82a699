package storage

import (
	"context"
	"encoding/json"
	"time"

	"github.com/account-sync/internal/errors"
	"github.com/account-sync/internal/logging"
	"github.com/account-sync/internal/types"
)

// SnapshotRepository owns the persisted per-account snapshots and the
// refresh-timing markers used for throttling and staleness checks. All
// writes are wholesale overwrites; partial updates never touch the store.
type SnapshotRepository struct {
	store  *SafeStore
	keys   Keys
	logger *logging.Logger
}

// NewSnapshotRepository creates a snapshot repository over the given store
func NewSnapshotRepository(store *SafeStore, keys Keys, logger *logging.Logger) *SnapshotRepository {
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}
	return &SnapshotRepository{
		store:  store,
		keys:   keys,
		logger: logger,
	}
}

// Read loads the cached snapshot for an account. It never fails upward: a
// missing key is a miss, and a malformed persisted value is logged as cache
// corruption, deleted, and reported as a miss as well.
func (r *SnapshotRepository) Read(ctx context.Context, accountID string) *types.AccountSnapshot {
	key := r.keys.AccountData(accountID)

	raw, ok, _ := r.store.Get(ctx, key)
	if !ok {
		return nil
	}

	var snapshot types.AccountSnapshot
	if err := json.Unmarshal([]byte(raw), &snapshot); err != nil {
		corrupt := errors.NewCacheCorruptError(key, err)
		r.logger.WithError(corrupt).WithField("accountId", accountID).Warn("discarding corrupt cached snapshot")
		_ = r.store.Remove(ctx, key)
		return nil
	}

	// A snapshot persisted under one account's key must belong to it.
	if snapshot.AccountID != accountID {
		corrupt := errors.NewCacheCorruptError(key, nil)
		r.logger.WithError(corrupt).WithFields(map[string]interface{}{
			"accountId": accountID,
			"cachedId":  snapshot.AccountID,
		}).Warn("cached snapshot belongs to a different account, discarding")
		_ = r.store.Remove(ctx, key)
		return nil
	}

	return &snapshot
}

// Write persists the snapshot wholesale and stamps the refresh-timing
// markers that drive throttling and staleness checks.
func (r *SnapshotRepository) Write(ctx context.Context, accountID string, snapshot *types.AccountSnapshot) error {
	data, err := json.Marshal(snapshot)
	if err != nil {
		return errors.NewInternalError("failed to serialize snapshot", err)
	}

	if err := r.store.Set(ctx, r.keys.AccountData(accountID), string(data)); err != nil {
		return errors.NewPersistenceUnavailableError("snapshot write", err)
	}

	now := types.EpochMillis(time.Now())
	_ = r.store.Set(ctx, r.keys.LastRefreshTime(), now)
	_ = r.store.Set(ctx, r.keys.LastUpdateTime(), now)

	return nil
}

// Clear invalidates cached state for an account. With full=false only the
// refresh-timing markers are removed, which forces the next staleness check
// to fail while keeping the trade data as a fallback. With full=true the
// snapshot itself is removed too.
func (r *SnapshotRepository) Clear(ctx context.Context, accountID string, full bool) {
	_ = r.store.Remove(ctx, r.keys.LastRefreshTime())
	_ = r.store.Remove(ctx, r.keys.LastUpdateTime())

	if full {
		_ = r.store.Remove(ctx, r.keys.AccountData(accountID))
	}
}

// LastUpdateTime returns the persisted throttling marker, or the zero time
// when none is stored or the value is malformed
func (r *SnapshotRepository) LastUpdateTime(ctx context.Context) time.Time {
	raw, ok, _ := r.store.Get(ctx, r.keys.LastUpdateTime())
	if !ok {
		return time.Time{}
	}
	return types.ParseEpochMillis(raw)
}

// LastRefreshTime returns the persisted staleness marker, or the zero time
// when none is stored or the value is malformed
func (r *SnapshotRepository) LastRefreshTime(ctx context.Context) time.Time {
	raw, ok, _ := r.store.Get(ctx, r.keys.LastRefreshTime())
	if !ok {
		return time.Time{}
	}
	return types.ParseEpochMillis(raw)
}

// IsStale reports whether the cached data has outlived the threshold. A
// missing or malformed marker counts as stale, which forces a refresh.
func (r *SnapshotRepository) IsStale(ctx context.Context, threshold time.Duration) bool {
	last := r.LastRefreshTime(ctx)
	if last.IsZero() {
		return true
	}
	return time.Since(last) > threshold
}
