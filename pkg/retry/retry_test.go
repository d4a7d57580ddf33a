package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func fastConfig(attempts int) Config {
	return Config{MaxAttempts: attempts, InitialWait: time.Millisecond, MaxWait: 5 * time.Millisecond, Multiplier: 2}
}

func TestDo(t *testing.T) {
	t.Run("succeeds after retryable failures", func(t *testing.T) {
		calls := 0
		err := Do(context.Background(), fastConfig(3), func() error {
			calls++
			if calls < 3 {
				return Retryable(errors.New("flaky"))
			}
			return nil
		})
		assert.NoError(t, err)
		assert.Equal(t, 3, calls)
	})

	t.Run("stops on permanent error", func(t *testing.T) {
		calls := 0
		permanent := errors.New("permission denied")
		err := Do(context.Background(), fastConfig(5), func() error {
			calls++
			return permanent
		})
		assert.ErrorIs(t, err, permanent)
		assert.Equal(t, 1, calls)
	})

	t.Run("gives up after max attempts", func(t *testing.T) {
		calls := 0
		flaky := errors.New("flaky")
		err := Do(context.Background(), fastConfig(2), func() error {
			calls++
			return Retryable(flaky)
		})
		assert.ErrorIs(t, err, flaky)
		assert.Equal(t, flaky, Unwrap(err))
		assert.Equal(t, 2, calls)
	})

	t.Run("context canceled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		err := Do(ctx, fastConfig(0), func() error {
			return Retryable(errors.New("flaky"))
		})
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestDoWithResult(t *testing.T) {
	calls := 0
	n, err := DoWithResult(context.Background(), fastConfig(3), func() (int, error) {
		calls++
		if calls == 1 {
			return 0, Retryable(errors.New("flaky"))
		}
		return 42, nil
	})
	assert.NoError(t, err)
	assert.Equal(t, 42, n)
}

func TestRetryableNil(t *testing.T) {
	assert.Nil(t, Retryable(nil))
	assert.False(t, IsRetryable(errors.New("x")))
}
