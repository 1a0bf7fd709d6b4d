package utils

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noSleep(t *testing.T) {
	t.Helper()
	SetSleepFunc(func(d time.Duration) {})
	t.Cleanup(ResetSleepFunc)
}

func TestRetrySucceedsAfterTransientFailures(t *testing.T) {
	noSleep(t)
	policy := RetryPolicy{MaxAttempts: 5, Interval: time.Millisecond, BackoffFactor: 2}
	transient := errors.New("transient")

	attempts := 0
	result, err := Retry(context.Background(), policy, func(err error) bool { return true },
		func(ctx context.Context) (int, error) {
			attempts++
			if attempts < 3 {
				return 0, transient
			}
			return 42, nil
		},
	)
	require.NoError(t, err)
	assert.Equal(t, 42, result)
	assert.Equal(t, 3, attempts)
}

func TestRetryStopsOnNonRetryableError(t *testing.T) {
	noSleep(t)
	policy := RetryPolicy{MaxAttempts: 5, Interval: time.Millisecond, BackoffFactor: 2}
	fatal := errors.New("fatal")

	attempts := 0
	_, err := Retry(context.Background(), policy, func(err error) bool { return false },
		func(ctx context.Context) (int, error) {
			attempts++
			return 0, fatal
		},
	)
	assert.ErrorIs(t, err, fatal)
	assert.Equal(t, 1, attempts, "a non-retryable error should not be retried")
}

func TestRetryExhaustsAttempts(t *testing.T) {
	noSleep(t)
	policy := RetryPolicy{MaxAttempts: 3, Interval: time.Millisecond, BackoffFactor: 2}
	transient := errors.New("transient")

	attempts := 0
	_, err := Retry(context.Background(), policy, func(err error) bool { return true },
		func(ctx context.Context) (int, error) {
			attempts++
			return 0, transient
		},
	)
	assert.ErrorIs(t, err, transient, "the last error should be returned on exhaustion")
	assert.Equal(t, 3, attempts)
}

func TestPollReturnsOnceDone(t *testing.T) {
	noSleep(t)
	policy := RetryPolicy{MaxAttempts: 10, Interval: time.Millisecond, BackoffFactor: 1}

	checks := 0
	err := Poll(context.Background(), policy, func(ctx context.Context) (bool, error) {
		checks++
		return checks == 4, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 4, checks)
}

func TestPollExhaustion(t *testing.T) {
	noSleep(t)
	policy := RetryPolicy{MaxAttempts: 3, Interval: time.Millisecond, BackoffFactor: 1}

	err := Poll(context.Background(), policy, func(ctx context.Context) (bool, error) {
		return false, nil
	})
	assert.ErrorIs(t, err, ErrRetryExhausted)
}

func TestPollPropagatesCheckError(t *testing.T) {
	noSleep(t)
	policy := RetryPolicy{MaxAttempts: 3, Interval: time.Millisecond, BackoffFactor: 1}
	boom := errors.New("boom")

	err := Poll(context.Background(), policy, func(ctx context.Context) (bool, error) {
		return false, boom
	})
	assert.ErrorIs(t, err, boom)
}
