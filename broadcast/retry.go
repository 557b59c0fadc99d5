package broadcast

import (
	"context"
	"time"
)

// Backoff returns the delay before the given 1-based attempt: no delay for
// the first, then doubling from 2s (0s, 2s, 4s, 8s, ...).
func Backoff(attempt int) time.Duration {
	if attempt <= 1 {
		return 0
	}
	return time.Duration(1<<(attempt-2)) * 2 * time.Second
}

// sleepFunc waits for d or until the context is done. Tests substitute a
// fake to make backoff timing deterministic.
type sleepFunc func(ctx context.Context, d time.Duration) error

func ctxSleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		if err := ctx.Err(); err != nil {
			return err
		}
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// retry runs fn up to attempts times, sleeping Backoff(attempt) before each
// try. fn reports whether its error is worth retrying; a non-retryable error
// stops immediately. Returns the number of attempts made and the last error.
func retry(ctx context.Context, attempts int, sleep sleepFunc, fn func(attempt int) (retryable bool, err error)) (int, error) {
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := sleep(ctx, Backoff(attempt)); err != nil {
			if lastErr != nil {
				return attempt - 1, lastErr
			}
			return attempt - 1, err
		}
		retryable, err := fn(attempt)
		if err == nil {
			return attempt, nil
		}
		lastErr = err
		if !retryable {
			return attempt, err
		}
	}
	return attempts, lastErr
}
