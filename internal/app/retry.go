package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jpillora/backoff"

	"smcbot/internal/ports"
)

// RetryPolicy bounds every gateway call: each attempt gets its own timeout and
// transient failures are retried with jittered exponential backoff.
type RetryPolicy struct {
	MaxRetries  int           // Retries after the first attempt
	BaseDelay   time.Duration // First backoff delay
	MaxDelay    time.Duration // Backoff ceiling
	CallTimeout time.Duration // Per-attempt deadline; zero disables it
}

// DefaultRetryPolicy returns 3 retries from 500ms with a 10s call timeout.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries:  3,
		BaseDelay:   500 * time.Millisecond,
		MaxDelay:    10 * time.Second,
		CallTimeout: 10 * time.Second,
	}
}

// retry runs fn under p. Permanent errors return immediately; both they and
// exhausted transient errors are wrapped in ports.ErrExecution.
func retry[T any](ctx context.Context, p RetryPolicy, logger ports.Logger, op string, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	b := &backoff.Backoff{
		Min:    p.BaseDelay,
		Max:    p.MaxDelay,
		Factor: 2,
		Jitter: true,
	}

	var lastErr error
	for attempt := 0; attempt <= p.MaxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, fmt.Errorf("%s: %w: %w", op, ports.ErrContextCanceled, err)
		}

		v, err := callWithTimeout(ctx, p.CallTimeout, fn)
		if err == nil {
			if attempt > 0 {
				logger.Info(ctx, op+": succeeded after retry", map[string]interface{}{"attempt": attempt + 1})
			}
			return v, nil
		}
		lastErr = err

		if !ports.IsTransient(err) {
			return zero, fmt.Errorf("%s: %w: %w", op, ports.ErrExecution, err)
		}
		if attempt == p.MaxRetries {
			break
		}

		delay := b.Duration()
		logger.Warn(ctx, op+": transient failure, retrying", map[string]interface{}{
			"attempt": attempt + 1,
			"delay":   delay.String(),
			"error":   err.Error(),
		})
		select {
		case <-ctx.Done():
			return zero, fmt.Errorf("%s: %w: %w", op, ports.ErrContextCanceled, ctx.Err())
		case <-time.After(delay):
		}
	}

	return zero, fmt.Errorf("%s: retries exhausted: %w: %w", op, ports.ErrExecution, lastErr)
}

func callWithTimeout[T any](ctx context.Context, timeout time.Duration, fn func(ctx context.Context) (T, error)) (T, error) {
	if timeout <= 0 {
		return fn(ctx)
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	v, err := fn(callCtx)
	if err != nil && errors.Is(callCtx.Err(), context.DeadlineExceeded) && !errors.Is(err, ports.ErrTimeout) {
		err = fmt.Errorf("%w: %w", ports.ErrTimeout, err)
	}
	return v, err
}
