// Package storage provides persistent store implementations and the
// per-account snapshot repository built on top of them.
package storage

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/account-sync/internal/logging"
)

// Store is the generic key-value persistence boundary shared across engine
// instances. All writes are whole-value overwrites; last writer wins.
type Store interface {
	// Get returns the value for key and whether it was present
	Get(ctx context.Context, key string) (string, bool, error)
	// Set overwrites the value for key
	Set(ctx context.Context, key, value string) error
	// Remove deletes key; removing a missing key is not an error
	Remove(ctx context.Context, key string) error
	// Keys returns all stored keys with the given prefix
	Keys(ctx context.Context, prefix string) ([]string, error)
}

// MemoryStore is an in-process Store. It backs single-session operation and
// the degraded mode used when no persistent backend is reachable.
type MemoryStore struct {
	mu     sync.RWMutex
	values map[string]string
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{values: make(map[string]string)}
}

// Get returns the value for key
func (m *MemoryStore) Get(_ context.Context, key string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	value, ok := m.values[key]
	return value, ok, nil
}

// Set overwrites the value for key
func (m *MemoryStore) Set(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.values[key] = value
	return nil
}

// Remove deletes key
func (m *MemoryStore) Remove(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.values, key)
	return nil
}

// Keys returns all keys with the given prefix, sorted for determinism
func (m *MemoryStore) Keys(_ context.Context, prefix string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var keys []string
	for key := range m.values {
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

// SafeStore wraps a possibly-absent Store so that callers never have to
// branch on persistence availability: with no inner store every Get is a
// miss and every Set/Remove is a silent no-op. This is what keeps the engine
// functional in memory-only sessions and server-side contexts without a
// store.
type SafeStore struct {
	inner  Store
	logger *logging.Logger
}

// NewSafeStore wraps inner; inner may be nil
func NewSafeStore(inner Store, logger *logging.Logger) *SafeStore {
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}
	return &SafeStore{inner: inner, logger: logger}
}

// Available reports whether a backing store is present
func (s *SafeStore) Available() bool {
	return s.inner != nil
}

// Get returns the value for key, or a miss when no store is available
func (s *SafeStore) Get(ctx context.Context, key string) (string, bool, error) {
	if s.inner == nil {
		return "", false, nil
	}

	value, ok, err := s.inner.Get(ctx, key)
	if err != nil {
		s.logger.WithError(err).WithField("key", key).Warn("store get failed, treating as miss")
		return "", false, nil
	}
	return value, ok, nil
}

// Set overwrites the value for key; silently dropped when no store is available
func (s *SafeStore) Set(ctx context.Context, key, value string) error {
	if s.inner == nil {
		return nil
	}

	if err := s.inner.Set(ctx, key, value); err != nil {
		s.logger.WithError(err).WithField("key", key).Warn("store set failed, value not persisted")
		return err
	}
	return nil
}

// Remove deletes key; silently dropped when no store is available
func (s *SafeStore) Remove(ctx context.Context, key string) error {
	if s.inner == nil {
		return nil
	}

	if err := s.inner.Remove(ctx, key); err != nil {
		s.logger.WithError(err).WithField("key", key).Warn("store remove failed")
		return err
	}
	return nil
}

// Keys returns all keys with the given prefix; empty when no store is available
func (s *SafeStore) Keys(ctx context.Context, prefix string) ([]string, error) {
	if s.inner == nil {
		return nil, nil
	}

	keys, err := s.inner.Keys(ctx, prefix)
	if err != nil {
		s.logger.WithError(err).WithField("prefix", prefix).Warn("store keys failed")
		return nil, nil
	}
	return keys, nil
}
