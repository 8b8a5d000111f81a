package fulfillment

import (
	"context"
	"time"

	"github.com/tavola/backend/internal/domain/costing"
)

// RetryPolicy configures RetryOnContention
type RetryPolicy struct {
	MaxAttempts int           // total attempts including the first; values below 1 mean 1
	Delay       time.Duration // wait before attempt n is n*Delay
}

// DefaultRetryPolicy retries contended sales twice
var DefaultRetryPolicy = RetryPolicy{MaxAttempts: 3, Delay: 50 * time.Millisecond}

// RetryOnContention calls fn until it succeeds, fails with a non-retryable
// error, or the attempts run out. Only lock contention is retried; a stock
// shortfall will not go away by asking again.
func RetryOnContention(ctx context.Context, policy RetryPolicy, fn func(ctx context.Context) error) error {
	attempts := policy.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		err = fn(ctx)
		if err == nil || !costing.IsRetryable(err) || attempt == attempts {
			return err
		}
		select {
		case <-ctx.Done():
			return err
		case <-time.After(time.Duration(attempt) * policy.Delay):
		}
	}
	return err
}
