package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errTransient = errors.New("transient failure")

func fastConfig(maxAttempts int) *Config {
	return &Config{
		MaxAttempts:  maxAttempts,
		InitialDelay: time.Millisecond,
		MaxDelay:     10 * time.Millisecond,
		Multiplier:   2.0,
	}
}

func TestWithBackoff(t *testing.T) {
	ctx := context.Background()

	t.Run("succeeds first try", func(t *testing.T) {
		calls := 0
		err := WithBackoff(ctx, fastConfig(3), func(ctx context.Context, attempt int) error {
			calls++
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, 1, calls)
	})

	t.Run("succeeds after transient failures", func(t *testing.T) {
		calls := 0
		err := WithBackoff(ctx, fastConfig(3), func(ctx context.Context, attempt int) error {
			calls++
			if calls < 3 {
				return errTransient
			}
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, 3, calls)
	})

	t.Run("exhausts attempts and wraps the last error", func(t *testing.T) {
		calls := 0
		err := WithBackoff(ctx, fastConfig(3), func(ctx context.Context, attempt int) error {
			calls++
			return errTransient
		})
		require.Error(t, err)
		assert.ErrorIs(t, err, errTransient)
		assert.Equal(t, 3, calls)
	})

	t.Run("attempt numbers are handed to fn", func(t *testing.T) {
		var attempts []int
		_ = WithBackoff(ctx, fastConfig(3), func(ctx context.Context, attempt int) error {
			attempts = append(attempts, attempt)
			return errTransient
		})
		assert.Equal(t, []int{1, 2, 3}, attempts)
	})

	t.Run("cancelled context stops retrying", func(t *testing.T) {
		cancelled, cancel := context.WithCancel(ctx)

		calls := 0
		err := WithBackoff(cancelled, fastConfig(5), func(ctx context.Context, attempt int) error {
			calls++
			cancel()
			return errTransient
		})
		require.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, 1, calls)
	})
}

func TestBackoffDelay(t *testing.T) {
	cfg := &Config{
		InitialDelay: time.Second,
		MaxDelay:     5 * time.Second,
		Multiplier:   2.0,
	}

	assert.Equal(t, time.Second, backoffDelay(cfg, 1))
	assert.Equal(t, 2*time.Second, backoffDelay(cfg, 2))
	assert.Equal(t, 4*time.Second, backoffDelay(cfg, 3))
	// Capped at MaxDelay from the fourth attempt on.
	assert.Equal(t, 5*time.Second, backoffDelay(cfg, 4))
}
