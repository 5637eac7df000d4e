package reliability

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type nonRetryableErr struct{}

func (nonRetryableErr) Error() string     { return "permanent" }
func (nonRetryableErr) IsRetryable() bool { return false }

func TestExponentialBackoff(t *testing.T) {
	t.Run("delay grows with attempts and caps at max", func(t *testing.T) {
		policy := NewExponentialBackoff(100*time.Millisecond, 1*time.Second, 2.0, 10)
		policy.Jitter = false

		assert.Equal(t, 100*time.Millisecond, policy.NextDelay(0))
		assert.Equal(t, 200*time.Millisecond, policy.NextDelay(1))
		assert.Equal(t, 400*time.Millisecond, policy.NextDelay(2))
		assert.Equal(t, 1*time.Second, policy.NextDelay(8))
	})

	t.Run("gives up after max attempts", func(t *testing.T) {
		policy := NewExponentialBackoff(time.Millisecond, time.Second, 2.0, 3)

		ok, _ := policy.ShouldRetry(2, errors.New("transient"))
		assert.True(t, ok)
		ok, _ = policy.ShouldRetry(3, errors.New("transient"))
		assert.False(t, ok)
	})

	t.Run("negative max attempts retries unbounded", func(t *testing.T) {
		policy := NewExponentialBackoff(time.Millisecond, time.Second, 2.0, -1)

		ok, _ := policy.ShouldRetry(10000, errors.New("transient"))
		assert.True(t, ok)
	})

	t.Run("non-retryable error stops immediately", func(t *testing.T) {
		policy := NewExponentialBackoff(time.Millisecond, time.Second, 2.0, 5)

		ok, _ := policy.ShouldRetry(0, nonRetryableErr{})
		assert.False(t, ok)
	})
}

func TestRetry(t *testing.T) {
	t.Run("returns nil on eventual success", func(t *testing.T) {
		calls := 0
		err := Retry(context.Background(), NewFixedDelay(time.Millisecond, 5), func() error {
			calls++
			if calls < 3 {
				return errors.New("transient")
			}
			return nil
		})

		assert.NoError(t, err)
		assert.Equal(t, 3, calls)
	})

	t.Run("returns last error when policy gives up", func(t *testing.T) {
		lastErr := errors.New("still failing")
		err := Retry(context.Background(), NewFixedDelay(time.Millisecond, 2), func() error {
			return lastErr
		})

		assert.Equal(t, lastErr, err)
	})

	t.Run("respects context cancellation", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		err := Retry(ctx, NewFixedDelay(time.Hour, -1), func() error {
			return errors.New("transient")
		})

		assert.ErrorIs(t, err, context.Canceled)
	})
}
