// Package regions defines the on-screen stat rectangles read from each frame.
package regions

// Capture area and stat box geometry, in source pixels.
const (
	// Capture area anchored at the bottom-left corner of the frame.
	AreaWidth  = 267
	AreaHeight = 486

	// Every stat box in the reference layout has the same size.
	StatWidth  = 80
	StatHeight = 34

	// Index of the population and idle boxes in the default table.
	IndexPop  = 0
	IndexIdle = 5
)
