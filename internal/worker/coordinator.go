// Package worker drives the periodic account data refresh: leadership
// among concurrent instances, throttling, the fetch-dedupe-cache-notify
// pipeline, and status broadcasting.
package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/account-sync/internal/adapter"
	"github.com/account-sync/internal/dedup"
	"github.com/account-sync/internal/errors"
	"github.com/account-sync/internal/logging"
	"github.com/account-sync/internal/metrics"
	"github.com/account-sync/internal/retry"
	"github.com/account-sync/internal/session"
	"github.com/account-sync/internal/storage"
	"github.com/account-sync/internal/types"
	"github.com/google/uuid"
)

// TradeArchiver receives deduplicated trades after each successful refresh.
// Failures are logged, never surfaced to the refresh pipeline.
type TradeArchiver interface {
	InsertTrades(ctx context.Context, accountID string, trades []types.TradeRecord) error
}

// UpdateCoordinator is the one-per-process refresh driver. It is an
// explicitly constructed object injected at application start; consumers
// hold a reference rather than reaching for a package global.
type UpdateCoordinator struct {
	source    adapter.AccountDataSource
	snapshots *storage.SnapshotRepository
	sessions  *session.Manager
	store     *storage.SafeStore
	keys      storage.Keys
	lease     *Lease
	publisher *StatusPublisher
	archive   TradeArchiver
	logger    *logging.Logger

	updateInterval     time.Duration
	throttleWindow     time.Duration
	initialDelay       time.Duration
	stalenessThreshold time.Duration

	mu           sync.Mutex
	updating     bool
	initialized  bool
	running      bool
	forceReload  bool
	lastUpdate   time.Time
	activeRange  types.DateRange
	snapshot     *types.AccountSnapshot
	lastMetrics  types.ProcessedMetrics
	stopCh       chan struct{}
	doneCh       chan struct{}
	toggleCh     chan bool
}

// Config holds configuration for an update coordinator
type Config struct {
	Source             adapter.AccountDataSource
	Snapshots          *storage.SnapshotRepository
	Sessions           *session.Manager
	Store              *storage.SafeStore
	Keys               storage.Keys
	Archive            TradeArchiver // optional
	Logger             *logging.Logger
	UpdateInterval     time.Duration
	ThrottleWindow     time.Duration
	InitialDelay       time.Duration
	StalenessThreshold time.Duration
	LeaseTTL           time.Duration
	InstanceID         string // defaults to a random id
	DateRange          types.DateRange
}

// NewUpdateCoordinator creates a coordinator. It registers itself on the
// session manager so an account switch forces the next refresh through the
// throttle.
func NewUpdateCoordinator(cfg *Config) (*UpdateCoordinator, error) {
	if cfg.Source == nil {
		return nil, fmt.Errorf("account data source cannot be nil")
	}
	if cfg.Snapshots == nil {
		return nil, fmt.Errorf("snapshot repository cannot be nil")
	}
	if cfg.Sessions == nil {
		return nil, fmt.Errorf("session manager cannot be nil")
	}
	if cfg.Store == nil {
		return nil, fmt.Errorf("store cannot be nil")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}

	updateInterval := cfg.UpdateInterval
	if updateInterval == 0 {
		updateInterval = 5 * time.Minute
	}
	throttleWindow := cfg.ThrottleWindow
	if throttleWindow == 0 {
		throttleWindow = 2 * time.Minute
	}
	if throttleWindow > updateInterval {
		return nil, fmt.Errorf("throttle window %v must not exceed update interval %v", throttleWindow, updateInterval)
	}
	initialDelay := cfg.InitialDelay
	if initialDelay == 0 {
		initialDelay = 3 * time.Second
	}
	stalenessThreshold := cfg.StalenessThreshold
	if stalenessThreshold == 0 {
		stalenessThreshold = 15 * time.Minute
	}
	leaseTTL := cfg.LeaseTTL
	if leaseTTL == 0 {
		leaseTTL = 2 * updateInterval
	}

	instanceID := cfg.InstanceID
	if instanceID == "" {
		instanceID = uuid.New().String()
	}

	activeRange := cfg.DateRange
	if activeRange.StartDate.IsZero() && activeRange.EndDate.IsZero() {
		now := time.Now().UTC()
		activeRange = types.DateRange{
			StartDate: now.AddDate(0, 0, -30),
			EndDate:   now,
			Label:     "last 30 days",
		}
	}

	c := &UpdateCoordinator{
		source:             cfg.Source,
		snapshots:          cfg.Snapshots,
		sessions:           cfg.Sessions,
		store:              cfg.Store,
		keys:               cfg.Keys,
		lease:              NewLease(cfg.Store, cfg.Keys, instanceID, leaseTTL),
		publisher:          NewStatusPublisher(),
		archive:            cfg.Archive,
		logger:             logger.WithField("instanceId", instanceID),
		updateInterval:     updateInterval,
		throttleWindow:     throttleWindow,
		initialDelay:       initialDelay,
		stalenessThreshold: stalenessThreshold,
		activeRange:        activeRange,
		toggleCh:           make(chan bool, 1),
	}

	cfg.Sessions.OnChange(func(accountID string) {
		c.mu.Lock()
		c.forceReload = true
		c.snapshot = nil
		c.mu.Unlock()
		c.logger.WithField("accountId", accountID).Info("account switch, next update will be forced")
	})

	return c, nil
}

// InstanceID returns the coordinator's instance id
func (c *UpdateCoordinator) InstanceID() string {
	return c.lease.InstanceID()
}

// Subscribe registers a status subscriber; the returned function removes it
func (c *UpdateCoordinator) Subscribe(fn Subscriber) func() {
	return c.publisher.Subscribe(fn)
}

// Status returns a copy of the current refresh status
func (c *UpdateCoordinator) Status() types.UpdateStatus {
	return c.publisher.Status()
}

// Metrics returns the most recently computed aggregate
func (c *UpdateCoordinator) Metrics() types.ProcessedMetrics {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastMetrics
}

// Snapshot returns the most recently loaded snapshot, or nil
func (c *UpdateCoordinator) Snapshot() *types.AccountSnapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshot
}

// SetDateRange changes the caller-visible date window and recomputes the
// aggregate from the in-memory snapshot. No fetch is triggered; the range
// only affects derivation.
func (c *UpdateCoordinator) SetDateRange(r types.DateRange) types.ProcessedMetrics {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.activeRange = r
	c.lastMetrics = metrics.Process(c.snapshot, r)
	return c.lastMetrics
}

// DateRange returns the active date window
func (c *UpdateCoordinator) DateRange() types.DateRange {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.activeRange
}

// StartAutoUpdate arms the periodic refresh. Idempotent: calling it while
// already started is a no-op. The first update runs after a short fixed
// delay so the caller's UI can mount, then the recurring timer takes over.
func (c *UpdateCoordinator) StartAutoUpdate(ctx context.Context) error {
	// A toggle-off from a previous run survives restarts.
	enabled := true
	if value, ok, _ := c.store.Get(ctx, c.keys.AutoUpdateEnabled()); ok && value == "false" {
		enabled = false
	}

	c.mu.Lock()
	if c.initialized {
		c.mu.Unlock()
		return nil
	}
	c.initialized = true
	c.running = enabled
	c.stopCh = make(chan struct{})
	c.doneCh = make(chan struct{})
	c.mu.Unlock()

	if enabled {
		c.lease.TryAcquire(ctx)
		_ = c.store.Set(ctx, c.keys.AutoUpdateEnabled(), "true")
	}

	c.publisher.Update(func(s *types.UpdateStatus) {
		s.AutoUpdateEnabled = enabled
	})

	c.logger.WithFields(map[string]interface{}{
		"updateInterval": c.updateInterval.String(),
		"initialDelay":   c.initialDelay.String(),
		"enabled":        enabled,
	}).Info("auto update scheduler started")

	go c.runLoop(ctx)

	return nil
}

// Stop gracefully stops the refresh loop
func (c *UpdateCoordinator) Stop(ctx context.Context) error {
	c.mu.Lock()
	if !c.initialized {
		c.mu.Unlock()
		return nil
	}
	c.initialized = false
	stopCh, doneCh := c.stopCh, c.doneCh
	c.mu.Unlock()

	close(stopCh)

	select {
	case <-doneCh:
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(30 * time.Second):
		return fmt.Errorf("stop timeout")
	}

	c.lease.Release(ctx)
	return nil
}

// ToggleAutoUpdate flips the auto-update axis. Disabling cancels the pending
// timer and relinquishes leadership; enabling re-claims leadership and arms
// a new timer. Manual updates keep working either way.
func (c *UpdateCoordinator) ToggleAutoUpdate(ctx context.Context) bool {
	c.mu.Lock()
	enable := !c.running
	c.running = enable
	c.mu.Unlock()

	if enable {
		c.lease.TryAcquire(ctx)
		_ = c.store.Set(ctx, c.keys.AutoUpdateEnabled(), "true")
	} else {
		c.lease.Release(ctx)
		_ = c.store.Set(ctx, c.keys.AutoUpdateEnabled(), "false")
	}

	c.publisher.Update(func(s *types.UpdateStatus) {
		s.AutoUpdateEnabled = enable
		if !enable {
			s.NextUpdateTime = nil
		}
	})

	select {
	case c.toggleCh <- enable:
	default:
	}

	c.logger.WithField("enabled", enable).Info("auto update toggled")
	return enable
}

// runLoop is the timer loop. The initial timer fires once after the mount
// delay; afterwards the recurring ticker drives scheduled refreshes.
func (c *UpdateCoordinator) runLoop(ctx context.Context) {
	c.mu.Lock()
	doneCh, stopCh := c.doneCh, c.stopCh
	c.mu.Unlock()
	defer close(doneCh)

	initial := time.NewTimer(c.initialDelay)
	defer initial.Stop()
	ticker := time.NewTicker(c.updateInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("context cancelled, stopping refresh loop")
			return
		case <-stopCh:
			c.logger.Info("stop signal received")
			return
		case <-initial.C:
			c.tick(ctx)
		case <-ticker.C:
			c.tick(ctx)
		case <-c.toggleCh:
			// Wake immediately on toggle so a re-enable does not wait out a
			// full disabled interval.
		}
	}
}

// tick runs one scheduled refresh attempt. A panic anywhere below must not
// crash the scheduler; it is converted into a status error.
func (c *UpdateCoordinator) tick(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("panic during scheduled update: %v", r)
			c.logger.WithError(err).Error("recovered panic in refresh tick")
			c.publisher.Update(func(s *types.UpdateStatus) {
				s.IsUpdating = false
				s.State = types.StateFailed
				s.Error = err.Error()
			})
			c.mu.Lock()
			c.updating = false
			c.mu.Unlock()
		}
	}()

	c.mu.Lock()
	enabled := c.running
	c.mu.Unlock()
	if !enabled {
		return
	}

	// Leadership is re-claimed on every tick; a crashed leader is superseded
	// once its claim expires rather than through explicit failover.
	if !c.lease.TryAcquire(ctx) {
		c.logger.WithField("holder", c.lease.Holder(ctx)).Debug("another instance holds the refresh lease")
		return
	}

	// Data older than the staleness threshold refreshes regardless of the
	// throttle window.
	c.PerformUpdate(ctx, c.snapshots.IsStale(ctx, c.stalenessThreshold))
}

// PerformUpdate runs one fetch-dedupe-cache-notify cycle. With force=false
// the call is silently skipped while another update is in flight or while
// the throttle window since the last successful update has not elapsed;
// both are deliberate no-ops, not failures. A pending forced reload from an
// account switch bypasses throttling once.
func (c *UpdateCoordinator) PerformUpdate(ctx context.Context, force bool) {
	c.mu.Lock()
	if c.updating {
		c.mu.Unlock()
		return
	}
	if c.forceReload {
		force = true
		c.forceReload = false
	}
	if !force && !c.throttleElapsedLocked(ctx) {
		c.mu.Unlock()
		return
	}
	c.updating = true
	activeRange := c.activeRange
	c.mu.Unlock()

	c.publisher.Update(func(s *types.UpdateStatus) {
		s.IsUpdating = true
		s.State = types.StateUpdating
		s.Error = ""
		s.Stale = false
	})

	accountID := c.sessions.Current(ctx)
	if accountID == "" {
		c.finishFailed(errors.NewNoActiveAccountError())
		return
	}

	payload, err := c.source.FetchAccountData(ctx, accountID)
	if err != nil {
		c.fallbackToCache(ctx, accountID, activeRange, err)
		return
	}

	result := dedup.Dedupe(payload.History)
	if result.DuplicateCount > 0 {
		c.logger.WithFields(map[string]interface{}{
			"accountId":  accountID,
			"duplicates": result.DuplicateCount,
		}).Debug("dropped duplicate trades")
	}

	now := time.Now().UTC()
	snapshot := &types.AccountSnapshot{
		AccountID:    accountID,
		RawTrades:    result.Unique,
		DailyResults: metrics.BuildDailyResults(result.Unique),
		Balance:      payload.BalanceInfo(),
		LastUpdated:  now,
	}

	if err := c.snapshots.Write(ctx, accountID, snapshot); err != nil {
		// Persistence failure degrades to memory-only; the refresh itself
		// still succeeded.
		c.logger.WithError(err).Warn("snapshot not persisted, continuing in memory")
	}

	c.archiveTrades(accountID, result.Unique)

	c.mu.Lock()
	c.snapshot = snapshot
	c.lastMetrics = metrics.Process(snapshot, activeRange)
	c.lastUpdate = now
	c.updating = false
	c.mu.Unlock()

	next := now.Add(c.updateInterval)
	c.publisher.Update(func(s *types.UpdateStatus) {
		s.IsUpdating = false
		s.State = types.StateSuccess
		s.Error = ""
		s.Stale = false
		s.UpdateCount++
		s.LastUpdate = &now
		s.NextUpdateTime = &next
	})

	c.logger.WithFields(map[string]interface{}{
		"accountId": accountID,
		"trades":    len(result.Unique),
	}).Info("account data refreshed")
}

// throttleElapsedLocked reports whether the throttle window since the last
// successful update has passed. The persisted marker covers updates made by
// other instances; the in-memory timestamp covers this one. Callers hold mu.
func (c *UpdateCoordinator) throttleElapsedLocked(ctx context.Context) bool {
	last := c.lastUpdate
	if persisted := c.snapshots.LastUpdateTime(ctx); persisted.After(last) {
		last = persisted
	}
	if last.IsZero() {
		return true
	}
	return time.Since(last) >= c.throttleWindow
}

// fallbackToCache handles a remote failure: the last cached snapshot is
// reused and marked stale rather than surfacing a hard error. Only when no
// cached snapshot exists does the attempt fail.
func (c *UpdateCoordinator) fallbackToCache(ctx context.Context, accountID string, activeRange types.DateRange, cause error) {
	cached := c.snapshots.Read(ctx, accountID)
	if cached == nil {
		c.finishFailed(errors.NewRemoteFetchError(accountID, cause))
		return
	}

	c.logger.WithError(cause).WithField("accountId", accountID).Warn("remote fetch failed, serving cached snapshot")

	c.mu.Lock()
	c.snapshot = cached
	c.lastMetrics = metrics.Process(cached, activeRange)
	c.updating = false
	c.mu.Unlock()

	next := time.Now().Add(c.updateInterval)
	c.publisher.Update(func(s *types.UpdateStatus) {
		s.IsUpdating = false
		s.State = types.StateSuccess
		s.Error = ""
		s.Stale = true
		s.NextUpdateTime = &next
	})
}

func (c *UpdateCoordinator) finishFailed(err error) {
	c.mu.Lock()
	c.updating = false
	c.mu.Unlock()

	c.logger.WithError(err).Error("update attempt failed")

	c.publisher.Update(func(s *types.UpdateStatus) {
		s.IsUpdating = false
		s.State = types.StateFailed
		s.Error = err.Error()
	})
}

// archiveTrades hands deduplicated trades to the archive without blocking
// the refresh pipeline. Transient archive failures are retried with backoff
// and ultimately only logged.
func (c *UpdateCoordinator) archiveTrades(accountID string, trades []types.TradeRecord) {
	if c.archive == nil || len(trades) == 0 {
		return
	}

	go func() {
		bgCtx := context.Background()
		err := retry.WithRetry(bgCtx, func(ctx context.Context, _ int) error {
			return c.archive.InsertTrades(ctx, accountID, trades)
		})
		if err != nil {
			c.logger.WithError(err).WithField("accountId", accountID).Warn("failed to archive trades")
		}
	}()
}
