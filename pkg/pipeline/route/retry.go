package route

import (
	"context"
	"time"
)

// RetryPolicy is the single bounded retry rule for provider calls. One
// policy instance is applied uniformly at every retrieval call site, so the
// total retry budget is visible in one place instead of scattered
// "if zero results, try again" branches.
type RetryPolicy struct {
	MaxExtraAttempts int
	Backoff          time.Duration
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxExtraAttempts: 1,
		Backoff:          200 * time.Millisecond,
	}
}

// Do runs fn, retrying on error up to MaxExtraAttempts additional times.
// Context cancellation stops retrying immediately.
func (p RetryPolicy) Do(ctx context.Context, fn func() error) error {
	err := fn()
	for attempt := 0; err != nil && attempt < p.MaxExtraAttempts; attempt++ {
		if p.Backoff > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(p.Backoff):
			}
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		err = fn()
	}
	return err
}
