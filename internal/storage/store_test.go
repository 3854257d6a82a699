package storage

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	t.Run("get on empty store misses", func(t *testing.T) {
		_, ok, err := store.Get(ctx, "missing")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("set then get", func(t *testing.T) {
		require.NoError(t, store.Set(ctx, "a", "1"))

		value, ok, err := store.Get(ctx, "a")
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, "1", value)
	})

	t.Run("set overwrites wholesale", func(t *testing.T) {
		require.NoError(t, store.Set(ctx, "a", "2"))

		value, _, _ := store.Get(ctx, "a")
		assert.Equal(t, "2", value)
	})

	t.Run("remove is idempotent", func(t *testing.T) {
		require.NoError(t, store.Remove(ctx, "a"))
		require.NoError(t, store.Remove(ctx, "a"))

		_, ok, _ := store.Get(ctx, "a")
		assert.False(t, ok)
	})

	t.Run("keys filters by prefix and sorts", func(t *testing.T) {
		require.NoError(t, store.Set(ctx, "dashboard.b", "1"))
		require.NoError(t, store.Set(ctx, "dashboard.a", "1"))
		require.NoError(t, store.Set(ctx, "other.c", "1"))

		keys, err := store.Keys(ctx, "dashboard.")
		require.NoError(t, err)
		assert.Equal(t, []string{"dashboard.a", "dashboard.b"}, keys)
	})
}

// failingStore errors on every operation.
type failingStore struct{}

var errStoreDown = errors.New("store down")

func (f *failingStore) Get(context.Context, string) (string, bool, error) {
	return "", false, errStoreDown
}
func (f *failingStore) Set(context.Context, string, string) error { return errStoreDown }
func (f *failingStore) Remove(context.Context, string) error      { return errStoreDown }
func (f *failingStore) Keys(context.Context, string) ([]string, error) {
	return nil, errStoreDown
}

func TestSafeStore(t *testing.T) {
	ctx := context.Background()

	t.Run("nil inner store", func(t *testing.T) {
		store := NewSafeStore(nil, nil)

		assert.False(t, store.Available())

		_, ok, err := store.Get(ctx, "a")
		require.NoError(t, err)
		assert.False(t, ok)

		assert.NoError(t, store.Set(ctx, "a", "1"))
		assert.NoError(t, store.Remove(ctx, "a"))

		keys, err := store.Keys(ctx, "a")
		require.NoError(t, err)
		assert.Empty(t, keys)
	})

	t.Run("working inner store passes through", func(t *testing.T) {
		store := NewSafeStore(NewMemoryStore(), nil)

		assert.True(t, store.Available())
		require.NoError(t, store.Set(ctx, "a", "1"))

		value, ok, err := store.Get(ctx, "a")
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, "1", value)
	})

	t.Run("failing reads degrade to misses", func(t *testing.T) {
		store := NewSafeStore(&failingStore{}, nil)

		_, ok, err := store.Get(ctx, "a")
		require.NoError(t, err)
		assert.False(t, ok)

		keys, err := store.Keys(ctx, "a")
		require.NoError(t, err)
		assert.Empty(t, keys)
	})

	t.Run("failing writes surface the error", func(t *testing.T) {
		store := NewSafeStore(&failingStore{}, nil)

		assert.Error(t, store.Set(ctx, "a", "1"))
		assert.Error(t, store.Remove(ctx, "a"))
	})
}
