package util

import (
	"context"
	"errors"
	"time"
)

// Backoff is the wait between attempts. The delay doubles after every
// failed attempt up to Max. A zero Backoff retries immediately.
type Backoff struct {
	Initial time.Duration
	Max     time.Duration
}

func (b Backoff) next(d time.Duration) time.Duration {
	if d == 0 {
		return b.Initial
	}
	d *= 2
	if b.Max > 0 && d > b.Max {
		return b.Max
	}
	return d
}

// Retry calls fn up to maxTries times until it returns a nil error.
// If maxTries <= 0, it defaults to 1. Returns the last error if all attempts fail.
func Retry[T any](maxTries int, fn func() (T, error)) (T, error) {
	return RetryWithContext(context.Background(), maxTries, Backoff{}, func(context.Context) (T, error) {
		return fn()
	})
}

// RetryErr is Retry for functions without a result.
func RetryErr(maxTries int, fn func() error) error {
	return RetryErrWithContext(context.Background(), maxTries, Backoff{}, func(context.Context) error {
		return fn()
	})
}

// RetryErrWithContext is RetryWithContext for functions without a result.
func RetryErrWithContext(ctx context.Context, maxTries int, backoff Backoff, fn func(context.Context) error) error {
	_, err := RetryWithContext(ctx, maxTries, backoff, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

// RetryWithContext calls fn up to maxTries times until it returns a nil
// error, waiting per backoff between attempts. If maxTries <= 0, it
// defaults to 1. Context errors, from ctx or from fn, end the loop at once.
func RetryWithContext[T any](ctx context.Context, maxTries int, backoff Backoff, fn func(context.Context) (T, error)) (T, error) {
	if maxTries <= 0 {
		maxTries = 1
	}
	var (
		zero    T
		lastErr error
		delay   time.Duration
	)
	for i := 0; i < maxTries; i++ {
		if i > 0 {
			delay = backoff.next(delay)
			if delay > 0 {
				timer := time.NewTimer(delay)
				select {
				case <-ctx.Done():
					timer.Stop()
					return zero, ctx.Err()
				case <-timer.C:
				}
			}
		}
		if ctx.Err() != nil {
			return zero, ctx.Err()
		}
		result, err := fn(ctx)
		if err == nil {
			return result, nil
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return zero, err
		}
		lastErr = err
	}
	return zero, lastErr
}
