package retry

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errTransient = errors.New("transient")

// noopSleep returns immediately, for fast tests.
func noopSleep(_ context.Context, _ time.Duration) error {
	return nil
}

func testPolicy(maxAttempts int) Policy {
	return Policy{
		MaxAttempts: maxAttempts,
		BaseDelay:   time.Second,
		MaxDelay:    30 * time.Second,
		Retryable:   func(err error) bool { return errors.Is(err, errTransient) },
		sleepFunc:   noopSleep,
	}
}

func TestDoSucceedsFirstAttempt(t *testing.T) {
	calls := 0

	err := testPolicy(5).Do(context.Background(), slog.Default(), "list", func(context.Context) error {
		calls++
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestDoRecoversAfterTransientFailures(t *testing.T) {
	calls := 0

	err := testPolicy(5).Do(context.Background(), slog.Default(), "download", func(context.Context) error {
		calls++
		if calls < 5 {
			return errTransient
		}

		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 5, calls)
}

func TestDoExhaustsBudget(t *testing.T) {
	calls := 0

	err := testPolicy(3).Do(context.Background(), slog.Default(), "export", func(context.Context) error {
		calls++
		return errTransient
	})

	require.Error(t, err)
	assert.Equal(t, 3, calls)
	assert.ErrorIs(t, err, ErrExhausted)
	assert.ErrorIs(t, err, errTransient)
}

func TestDoNonRetryablePropagatesImmediately(t *testing.T) {
	permanent := errors.New("not found")
	calls := 0

	err := testPolicy(5).Do(context.Background(), slog.Default(), "get", func(context.Context) error {
		calls++
		return permanent
	})

	require.Error(t, err)
	assert.Equal(t, 1, calls)
	assert.ErrorIs(t, err, permanent)
	assert.NotErrorIs(t, err, ErrExhausted)
}

func TestDoNilRetryableNeverRetries(t *testing.T) {
	p := Policy{MaxAttempts: 5, BaseDelay: time.Second, MaxDelay: time.Minute, sleepFunc: noopSleep}
	calls := 0

	err := p.Do(context.Background(), slog.Default(), "op", func(context.Context) error {
		calls++
		return errTransient
	})

	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestDoRespectsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p := testPolicy(5)
	p.sleepFunc = func(ctx context.Context, _ time.Duration) error {
		cancel()
		return ctx.Err()
	}

	calls := 0

	err := p.Do(ctx, slog.Default(), "list", func(context.Context) error {
		calls++
		return errTransient
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}

func TestBackoffGrowsAndCaps(t *testing.T) {
	p := Policy{
		MaxAttempts: 10,
		BaseDelay:   time.Second,
		MaxDelay:    8 * time.Second,
	}

	// With ±25% jitter the backoff stays within [0.75x, 1.25x] of the
	// capped exponential value.
	for attempt, want := range []time.Duration{
		time.Second, 2 * time.Second, 4 * time.Second, 8 * time.Second, 8 * time.Second,
	} {
		got := p.backoff(attempt)
		assert.GreaterOrEqual(t, got, time.Duration(float64(want)*0.74), "attempt %d", attempt)
		assert.LessOrEqual(t, got, time.Duration(float64(want)*1.26), "attempt %d", attempt)
	}
}
