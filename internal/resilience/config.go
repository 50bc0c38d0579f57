package resilience

import "time"

const (
	fallbackThreshold         = 5
	fallbackResetTimeout      = 30 * time.Second
	fallbackHalfOpenSuccesses = 1

	// Opening the engine breaker stops the pipeline, so one good frame is
	// enough to trust a recovering engine again.
	EngineThreshold    = 5
	EngineResetTimeout = 30 * time.Second

	// Capture tools fail in bursts. Back off briefly and try again soon.
	CaptureThreshold    = 3
	CaptureResetTimeout = 5 * time.Second
)

// Config tunes a Breaker.
type Config struct {
	Name              string        // log and stats label
	Threshold         int           // consecutive failures that open it
	ResetTimeout      time.Duration // time spent open before a trial call
	HalfOpenSuccesses int           // half-open successes that close it
}

// EngineConfig returns settings for the recognition engine. threshold
// overrides EngineThreshold when positive.
func EngineConfig(threshold int) Config {
	if threshold <= 0 {
		threshold = EngineThreshold
	}
	return Config{Name: "engine", Threshold: threshold, ResetTimeout: EngineResetTimeout, HalfOpenSuccesses: 1}
}

// CaptureConfig returns settings for screen capture backends.
func CaptureConfig() Config {
	return Config{Name: "capture", Threshold: CaptureThreshold, ResetTimeout: CaptureResetTimeout, HalfOpenSuccesses: 1}
}

func (c Config) withDefaults() Config {
	if c.Name == "" {
		c.Name = "default"
	}
	if c.Threshold <= 0 {
		c.Threshold = fallbackThreshold
	}
	if c.ResetTimeout <= 0 {
		c.ResetTimeout = fallbackResetTimeout
	}
	if c.HalfOpenSuccesses <= 0 {
		c.HalfOpenSuccesses = fallbackHalfOpenSuccesses
	}
	return c
}
