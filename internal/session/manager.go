// Package session tracks which trading account is currently active.
package session

import (
	"context"
	"sync"

	"github.com/account-sync/internal/errors"
	"github.com/account-sync/internal/logging"
	"github.com/account-sync/internal/storage"
)

// ChangeListener is notified after the active account changes
type ChangeListener func(accountID string)

// Manager persists the active account choice and invalidates refresh-timing
// markers on every switch so the next staleness check forces a clean reload.
// It never fetches data itself; the update coordinator reacts to the change
// notification and triggers the next fetch.
type Manager struct {
	store     *storage.SafeStore
	keys      storage.Keys
	snapshots *storage.SnapshotRepository
	logger    *logging.Logger

	mu        sync.RWMutex
	current   string
	listeners []ChangeListener
}

// NewManager creates an account session manager
func NewManager(store *storage.SafeStore, keys storage.Keys, snapshots *storage.SnapshotRepository, logger *logging.Logger) *Manager {
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}
	return &Manager{
		store:     store,
		keys:      keys,
		snapshots: snapshots,
		logger:    logger,
	}
}

// OnChange registers a listener invoked after each successful account switch
func (m *Manager) OnChange(listener ChangeListener) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners = append(m.listeners, listener)
}

// Current resolves the active account id: the in-memory choice first, the
// persisted one second. Empty when no account has been selected.
func (m *Manager) Current(ctx context.Context) string {
	m.mu.RLock()
	current := m.current
	m.mu.RUnlock()

	if current != "" {
		return current
	}

	persisted, ok, _ := m.store.Get(ctx, m.keys.CurrentAccount())
	if !ok {
		return ""
	}

	m.mu.Lock()
	if m.current == "" {
		m.current = persisted
	}
	current = m.current
	m.mu.Unlock()

	return current
}

// SelectAccount makes accountID the active account. The id must be a member
// of the caller-supplied authorized list; selecting the already-active
// account is a no-op. On success the choice is persisted, the refresh-timing
// markers are cleared to force a reload, and change listeners fire. Only
// InvalidAccount and PersistenceUnavailable are returned as typed errors so
// UI layers can render a specific message.
func (m *Manager) SelectAccount(ctx context.Context, accountID string, authorized []string) error {
	if !contains(authorized, accountID) {
		return errors.NewInvalidAccountError(accountID)
	}

	m.mu.Lock()
	if m.current == accountID {
		m.mu.Unlock()
		return nil
	}
	m.current = accountID
	listeners := make([]ChangeListener, len(m.listeners))
	copy(listeners, m.listeners)
	m.mu.Unlock()

	if m.store.Available() {
		if err := m.store.Set(ctx, m.keys.CurrentAccount(), accountID); err != nil {
			return errors.NewPersistenceUnavailableError("account selection", err)
		}
	}

	// Clearing only the timing markers keeps the previous snapshot around as
	// a fallback while guaranteeing the next staleness check fails.
	m.snapshots.Clear(ctx, accountID, false)

	m.logger.WithField("accountId", accountID).Info("active account changed")

	for _, listener := range listeners {
		listener(accountID)
	}

	return nil
}

// ClearAccountData removes all cached state for an account, including the
// snapshot itself. Used on explicit "clear account data" requests.
func (m *Manager) ClearAccountData(ctx context.Context, accountID string) {
	m.snapshots.Clear(ctx, accountID, true)
}

func contains(list []string, value string) bool {
	for _, item := range list {
		if item == value {
			return true
		}
	}
	return false
}
