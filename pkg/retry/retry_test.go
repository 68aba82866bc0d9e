package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastRetrier(attempts int) *Retrier {
	return New(Config{
		MaxAttempts:  attempts,
		InitialDelay: time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
		Multiplier:   2,
		Jitter:       0,
	})
}

func TestRetrier_RetryableSucceedsEventually(t *testing.T) {
	calls := 0
	err := fastRetrier(3).Do(context.Background(), func(context.Context) error {
		calls++
		if calls < 3 {
			return Retryable(errors.New("gateway busy"))
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestRetrier_PermanentStopsImmediately(t *testing.T) {
	calls := 0
	cause := errors.New("bad payload")
	err := fastRetrier(5).Do(context.Background(), func(context.Context) error {
		calls++
		return Permanent(cause)
	})

	assert.Equal(t, cause, err)
	assert.Equal(t, 1, calls)
}

func TestRetrier_UnmarkedErrorNotRetried(t *testing.T) {
	calls := 0
	err := fastRetrier(5).Do(context.Background(), func(context.Context) error {
		calls++
		return errors.New("plain failure")
	})

	assert.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestRetrier_ExhaustionReturnsUnwrappedError(t *testing.T) {
	calls := 0
	cause := errors.New("still down")
	err := fastRetrier(3).Do(context.Background(), func(context.Context) error {
		calls++
		return Retryable(cause)
	})

	assert.Equal(t, cause, err)
	assert.Equal(t, 3, calls)
}

func TestRetrier_ContextCancelStopsRetrying(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	err := fastRetrier(10).Do(ctx, func(context.Context) error {
		cancel()
		return Retryable(errors.New("slow"))
	})

	assert.Error(t, err)
}

func TestMarkers(t *testing.T) {
	assert.True(t, IsRetryable(Retryable(errors.New("x"))))
	assert.True(t, IsPermanent(Permanent(errors.New("x"))))
	assert.False(t, IsRetryable(errors.New("x")))
	assert.NoError(t, Retryable(nil))
	assert.NoError(t, Permanent(nil))
}

func TestBackoff_GrowsAndCaps(t *testing.T) {
	r := New(Config{
		MaxAttempts:  5,
		InitialDelay: 10 * time.Millisecond,
		MaxDelay:     40 * time.Millisecond,
		Multiplier:   2,
		Jitter:       0,
	})

	assert.Equal(t, 10*time.Millisecond, r.backoff(1))
	assert.Equal(t, 20*time.Millisecond, r.backoff(2))
	assert.Equal(t, 40*time.Millisecond, r.backoff(3))
	assert.Equal(t, 40*time.Millisecond, r.backoff(4))
}
