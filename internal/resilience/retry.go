package resilience

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	apperrors "github.com/GriffinCanCode/hudreader/internal/errors"
	"github.com/GriffinCanCode/hudreader/internal/trace"
)

const (
	// A captured frame is stale after a few hundred milliseconds, so
	// capture gives up quickly and leaves the rest to the next tick.
	CaptureAttempts  = 3
	CaptureBaseDelay = 50 * time.Millisecond
	CaptureMaxDelay  = 200 * time.Millisecond

	// Control commands that must reach a slow consumer.
	OutputAttempts  = 6
	OutputBaseDelay = 20 * time.Millisecond
	OutputMaxDelay  = 500 * time.Millisecond

	defaultAttempts = 3
	defaultJitter   = 0.2
)

// Backoff describes how an operation is retried.
type Backoff struct {
	Name      string // log label
	Attempts  int    // total calls, including the first
	BaseDelay time.Duration
	MaxDelay  time.Duration
	Jitter    float64          // fraction of the delay randomized
	Retryable func(error) bool // nil means apperrors.IsRetryable
}

// CaptureBackoff retries capture failures marked retryable.
func CaptureBackoff() Backoff {
	return Backoff{
		Name:      "capture",
		Attempts:  CaptureAttempts,
		BaseDelay: CaptureBaseDelay,
		MaxDelay:  CaptureMaxDelay,
	}
}

// OutputBackoff retries while isFull reports the channel full.
func OutputBackoff(isFull func(error) bool) Backoff {
	return Backoff{
		Name:      "output",
		Attempts:  OutputAttempts,
		BaseDelay: OutputBaseDelay,
		MaxDelay:  OutputMaxDelay,
		Retryable: isFull,
	}
}

// Retry calls fn until it succeeds, returns a non-retryable error, or the
// attempts run out.
func Retry(ctx context.Context, b Backoff, fn func() error) error {
	_, err := Do(ctx, b, func() (struct{}, error) { return struct{}{}, fn() })
	return err
}

// Do is Retry for calls that produce a value. The error after the last
// attempt wraps the final failure.
func Do[T any](ctx context.Context, b Backoff, fn func() (T, error)) (T, error) {
	b = b.withDefaults()
	var zero T
	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, err
		}
		v, err := fn()
		if err == nil {
			return v, nil
		}
		if !b.Retryable(err) {
			return zero, err
		}
		if attempt >= b.Attempts {
			return zero, fmt.Errorf("%s: gave up after %d attempts: %w", b.Name, attempt, err)
		}

		wait := b.delay(attempt)
		trace.Logger(ctx).Debug("retrying", "op", b.Name, "attempt", attempt, "wait", wait, "error", err)
		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return zero, ctx.Err()
		case <-t.C:
		}
	}
}

// delay doubles from BaseDelay per attempt up to MaxDelay, then spreads
// the result by Jitter in both directions.
func (b Backoff) delay(attempt int) time.Duration {
	d := b.BaseDelay << min(attempt-1, 16)
	if d <= 0 || d > b.MaxDelay {
		d = b.MaxDelay
	}
	spread := float64(d) * b.Jitter * (2*rand.Float64() - 1)
	return d + time.Duration(spread)
}

func (b Backoff) withDefaults() Backoff {
	if b.Name == "" {
		b.Name = "retry"
	}
	if b.Attempts <= 0 {
		b.Attempts = defaultAttempts
	}
	if b.BaseDelay <= 0 {
		b.BaseDelay = 10 * time.Millisecond
	}
	if b.MaxDelay < b.BaseDelay {
		b.MaxDelay = b.BaseDelay
	}
	if b.Jitter <= 0 {
		b.Jitter = defaultJitter
	}
	if b.Retryable == nil {
		b.Retryable = apperrors.IsRetryable
	}
	return b
}
