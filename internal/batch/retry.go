package batch

import (
	"context"
	"errors"
	"time"
)

// Backoff returns the pause before the given retry attempt (1-based).
type Backoff func(attempt int) time.Duration

// Fixed waits the same delay before every retry.
func Fixed(delay time.Duration) Backoff {
	return func(int) time.Duration { return delay }
}

// Linear waits delay*attempt before each retry.
func Linear(delay time.Duration) Backoff {
	return func(attempt int) time.Duration {
		return delay * time.Duration(attempt)
	}
}

// RetryPolicy controls how a single unit of work is retried.
type RetryPolicy struct {
	// Retries is the number of attempts after the first one.
	Retries int

	// Backoff computes the wait before each retry (default: no wait).
	Backoff Backoff

	// Retryable reports whether an error is worth another attempt.
	// nil retries everything except context cancellation. Recovered panics
	// are never retried.
	Retryable func(error) bool

	// OnRetry is called before each retry with the attempt about to run.
	OnRetry func(attempt int, err error)
}

// Retry runs fn until it succeeds, the policy gives up, or ctx is done. It
// returns the last result, the number of attempts made and the last error.
func Retry[R any](ctx context.Context, policy RetryPolicy, fn func(ctx context.Context) (R, error)) (R, int, error) {
	var (
		result R
		err    error
	)
	if policy.Retries < 0 {
		policy.Retries = 0
	}
	attempts := 0
	for attempt := 0; attempt <= policy.Retries; attempt++ {
		if ctxErr := ctx.Err(); ctxErr != nil {
			if err == nil {
				err = ctxErr
			}
			return result, attempts, err
		}

		attempts++
		result, err = fn(ctx)
		if err == nil {
			return result, attempts, nil
		}
		if !policy.retryable(err) || attempt == policy.Retries {
			break
		}

		if policy.OnRetry != nil {
			policy.OnRetry(attempt+1, err)
		}

		if wait := policy.wait(attempt + 1); wait > 0 {
			timer := time.NewTimer(wait)
			select {
			case <-ctx.Done():
				timer.Stop()
				return result, attempts, err
			case <-timer.C:
			}
		}
	}
	return result, attempts, err
}

func (p RetryPolicy) retryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, ErrPanic) {
		return false
	}
	if p.Retryable == nil {
		return true
	}
	return p.Retryable(err)
}

func (p RetryPolicy) wait(attempt int) time.Duration {
	if p.Backoff == nil {
		return 0
	}
	return p.Backoff(attempt)
}
