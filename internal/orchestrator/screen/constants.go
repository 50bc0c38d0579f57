// Package screen runs the frame-to-result pipeline: it drains captured
// frames, normalizes them and hands them to the recognizers.
package screen

import "github.com/GriffinCanCode/hudreader/internal/regions"

// Processing constants
const (
	// Capture area anchored at the bottom-left of the frame.
	AreaWidth  = regions.AreaWidth
	AreaHeight = regions.AreaHeight

	// Brightness added after the grayscale round trip.
	BrightenDelta = 30

	// Processed frames between summary log lines.
	DefaultSummaryEvery = 100

	// Consecutive engine failures before the loop gives up.
	DefaultMaxEngineFailures = 5

	// Maximum pHash Hamming distance for two frames to count as the same.
	MaxHashDistance = 2

	// Capacity of the command channel to the presentation side.
	DefaultResultBuffer = 2
)
