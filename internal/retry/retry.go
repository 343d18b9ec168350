// Package retry wraps single remote operations with bounded
// exponential-backoff retry. The policy is explicit: callers pass the
// operation in, and get back either its result or a terminal error after
// the attempt budget is spent. Non-retryable errors propagate immediately.
package retry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand/v2"
	"time"
)

// Backoff shape constants.
const (
	backoffFactor  = 2.0
	jitterFraction = 0.25
)

// ErrExhausted marks a terminal failure after the attempt budget is spent.
// Check with errors.Is; the last operation error is also wrapped.
var ErrExhausted = errors.New("retry: attempts exhausted")

// Policy configures bounded retry for a class of operations.
type Policy struct {
	// MaxAttempts is the total number of tries, including the first.
	MaxAttempts int
	// BaseDelay is the backoff before the second attempt.
	BaseDelay time.Duration
	// MaxDelay caps the backoff between attempts.
	MaxDelay time.Duration
	// Retryable classifies errors. Nil means nothing is retryable.
	Retryable func(error) bool

	// sleepFunc waits between attempts. Defaults to timeSleep.
	// Tests override this to avoid real delays.
	sleepFunc func(ctx context.Context, d time.Duration) error
}

// Do runs fn until it succeeds, fails non-retryably, or the attempt budget
// is exhausted. label identifies the operation in log lines.
func (p Policy) Do(ctx context.Context, logger *slog.Logger, label string, fn func(context.Context) error) error {
	if logger == nil {
		logger = slog.Default()
	}

	sleep := p.sleepFunc
	if sleep == nil {
		sleep = timeSleep
	}

	if p.MaxAttempts < 1 {
		p.MaxAttempts = 1
	}

	var lastErr error

	for attempt := 0; attempt < p.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("retry: %s canceled: %w", label, err)
		}

		lastErr = fn(ctx)
		if lastErr == nil {
			if attempt > 0 {
				logger.Info("operation succeeded after retry",
					slog.String("op", label),
					slog.Int("attempts", attempt+1),
				)
			}

			return nil
		}

		if p.Retryable == nil || !p.Retryable(lastErr) {
			return lastErr
		}

		// Last attempt: no point sleeping before reporting exhaustion.
		if attempt == p.MaxAttempts-1 {
			break
		}

		backoff := p.backoff(attempt)
		logger.Warn("retrying after transient error",
			slog.String("op", label),
			slog.Int("attempt", attempt+1),
			slog.Duration("backoff", backoff),
			slog.String("error", lastErr.Error()),
		)

		if sleepErr := sleep(ctx, backoff); sleepErr != nil {
			return fmt.Errorf("retry: %s canceled: %w", label, sleepErr)
		}
	}

	logger.Error("operation failed after retries",
		slog.String("op", label),
		slog.Int("attempts", p.MaxAttempts),
		slog.String("error", lastErr.Error()),
	)

	return fmt.Errorf("%w: %s after %d attempts: %w", ErrExhausted, label, p.MaxAttempts, lastErr)
}

// backoff computes exponential backoff with ±25% jitter, capped at MaxDelay.
func (p Policy) backoff(attempt int) time.Duration {
	d := float64(p.BaseDelay) * math.Pow(backoffFactor, float64(attempt))
	if d > float64(p.MaxDelay) {
		d = float64(p.MaxDelay)
	}

	jitter := d * jitterFraction * (rand.Float64()*2 - 1) //nolint:gosec // jitter does not need crypto rand
	d += jitter

	return time.Duration(d)
}

// timeSleep waits for the given duration or until the context is canceled.
func timeSleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
