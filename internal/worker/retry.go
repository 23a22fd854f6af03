package worker

import (
	"context"
	"math/rand/v2"
	"time"
)

// retryPolicy controls exponential backoff for store writes that must not be lost.
type retryPolicy struct {
	MaxRetries int // 0 = single attempt
	BaseDelay  time.Duration
	MaxDelay   time.Duration
}

var completeRetry = retryPolicy{
	MaxRetries: 3,
	BaseDelay:  200 * time.Millisecond,
	MaxDelay:   2 * time.Second,
}

// withRetry runs fn until it succeeds, the retries run out, or ctx ends.
// Returns the number of attempts made and the last error.
func withRetry(ctx context.Context, p retryPolicy, fn func(context.Context) error) (attempts int, err error) {
	for attempt := 0; attempt <= p.MaxRetries; attempt++ {
		if err = fn(ctx); err == nil {
			return attempt + 1, nil
		}
		if attempt == p.MaxRetries {
			break
		}
		select {
		case <-ctx.Done():
			return attempt + 1, err
		case <-time.After(backoffWithJitter(p.BaseDelay, p.MaxDelay, attempt)):
		}
	}
	return p.MaxRetries + 1, err
}

// backoffWithJitter computes min(base * 2^attempt, max) with ±25% jitter.
func backoffWithJitter(base, max time.Duration, attempt int) time.Duration {
	if attempt > 30 {
		attempt = 30
	}
	delay := base << uint(attempt)
	if delay > max || delay <= 0 {
		delay = max
	}

	quarter := delay / 4
	if quarter > 0 {
		delay += time.Duration(rand.Int64N(int64(quarter*2))) - quarter
	}
	return delay
}
