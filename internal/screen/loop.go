package screen

import (
	"context"
	"errors"
	"time"

	"github.com/GriffinCanCode/hudreader/internal/frame"
	"github.com/GriffinCanCode/hudreader/internal/resilience"
	"github.com/GriffinCanCode/hudreader/internal/trace"
)

// Publisher receives captured frames. *frame.Feed implements it.
type Publisher interface {
	Publish(width, height, stride int, pix []byte)
}

type capture struct {
	f       frame.RawFrame
	changed bool
}

// Loop captures at rate Hz and publishes changed frames until ctx is done.
// Transient failures are retried; persistent ones open a breaker and are
// skipped until it half-opens.
func Loop(ctx context.Context, c Capturer, pub Publisher, rate float64) error {
	if rate <= 0 {
		rate = DefaultRate
	}
	ticker := time.NewTicker(time.Duration(float64(time.Second) / rate))
	defer ticker.Stop()

	log := trace.Logger(ctx)
	breaker := resilience.New(resilience.CaptureConfig())
	backoff := resilience.CaptureBackoff()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}

		shot, err := resilience.Guard(breaker, func() (capture, error) {
			return resilience.Do(ctx, backoff, func() (capture, error) {
				f, changed, err := c.Capture(ctx)
				return capture{f, changed}, err
			})
		})
		switch {
		case errors.Is(err, resilience.ErrOpen):
			continue
		case ctx.Err() != nil:
			return nil
		case err != nil:
			log.Warn("screen capture failed", "error", err)
			continue
		}
		if shot.changed {
			pub.Publish(shot.f.Width, shot.f.Height, shot.f.Stride, shot.f.Pix)
		}
	}
}
