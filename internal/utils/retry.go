package utils

import (
	"context"
	"errors"
	"time"
)

// ErrRetryExhausted is returned when the attempt ceiling is reached without
// a successful outcome. Callers decide whether exhaustion is fatal or a
// degrading warning.
var ErrRetryExhausted = errors.New("retry attempts exhausted")

// RetryPolicy bounds a retry loop: MaxAttempts includes the first execution,
// Interval is the initial wait between attempts and BackoffFactor multiplies
// it after each failed attempt. No wait may run unboundedly.
type RetryPolicy struct {
	MaxAttempts   int
	Interval      time.Duration
	BackoffFactor float64
}

// Retry runs fn until it succeeds, fails with a non-retryable error, the
// context is cancelled, or the policy's attempt ceiling is reached. The
// last error is returned on exhaustion.
func Retry[T any](
	ctx context.Context, policy RetryPolicy, retryable func(error) bool, fn func(ctx context.Context) (T, error),
) (T, error) {
	var (
		result T
		err    error
	)
	backoff := policy.Interval
	for attempt := 1; attempt <= policy.MaxAttempts; attempt++ {
		result, err = fn(ctx)
		if err == nil {
			return result, nil
		}
		if !retryable(err) || attempt == policy.MaxAttempts {
			return result, err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return result, ctxErr
		}
		Sleep(backoff)
		backoff = time.Duration(float64(backoff) * policy.BackoffFactor)
	}
	return result, err
}

// Poll repeatedly invokes check until it reports done, fails, or the policy's
// attempt ceiling is reached, in which case ErrRetryExhausted is returned.
func Poll(ctx context.Context, policy RetryPolicy, check func(ctx context.Context) (bool, error)) error {
	backoff := policy.Interval
	for attempt := 1; attempt <= policy.MaxAttempts; attempt++ {
		done, err := check(ctx)
		if err != nil {
			return err
		}
		if done {
			return nil
		}
		if attempt == policy.MaxAttempts {
			break
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		Sleep(backoff)
		backoff = time.Duration(float64(backoff) * policy.BackoffFactor)
	}
	return ErrRetryExhausted
}
