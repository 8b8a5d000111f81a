package fulfillment_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/tavola/backend/internal/application/fulfillment"
	"github.com/tavola/backend/internal/domain/costing"
)

func TestRetryOnContention(t *testing.T) {
	ctx := context.Background()
	policy := fulfillment.RetryPolicy{MaxAttempts: 3, Delay: time.Millisecond}

	t.Run("retries contention until success", func(t *testing.T) {
		calls := 0
		err := fulfillment.RetryOnContention(ctx, policy, func(context.Context) error {
			calls++
			if calls < 3 {
				return &costing.LockContentionError{}
			}
			return nil
		})
		assert.NoError(t, err)
		assert.Equal(t, 3, calls)
	})

	t.Run("gives up after max attempts", func(t *testing.T) {
		calls := 0
		err := fulfillment.RetryOnContention(ctx, policy, func(context.Context) error {
			calls++
			return &costing.LockContentionError{}
		})
		assert.ErrorIs(t, err, costing.ErrLockContention)
		assert.Equal(t, 3, calls)
	})

	t.Run("does not retry a shortfall", func(t *testing.T) {
		calls := 0
		err := fulfillment.RetryOnContention(ctx, policy, func(context.Context) error {
			calls++
			return &costing.InsufficientStockError{}
		})
		assert.ErrorIs(t, err, costing.ErrInsufficientStock)
		assert.Equal(t, 1, calls)
	})

	t.Run("stops when the context is done", func(t *testing.T) {
		cancelled, cancel := context.WithCancel(ctx)
		cancel()
		calls := 0
		err := fulfillment.RetryOnContention(cancelled, fulfillment.RetryPolicy{MaxAttempts: 5, Delay: time.Hour}, func(context.Context) error {
			calls++
			return &costing.LockContentionError{}
		})
		assert.ErrorIs(t, err, costing.ErrLockContention)
		assert.Equal(t, 1, calls)
	})

	t.Run("zero attempts still calls once", func(t *testing.T) {
		calls := 0
		_ = fulfillment.RetryOnContention(ctx, fulfillment.RetryPolicy{}, func(context.Context) error {
			calls++
			return nil
		})
		assert.Equal(t, 1, calls)
	})
}
