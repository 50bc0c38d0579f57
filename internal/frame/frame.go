// Package frame handles the producer/consumer handoff of raw captured frames.
package frame

import (
	"errors"
	"fmt"
)

// BytesPerPixel is fixed: every frame is 8-bit BGRA (alpha unused).
const BytesPerPixel = 4

// ErrMalformed is returned when a buffer cannot hold the claimed dimensions.
var ErrMalformed = errors.New("malformed frame")

// RawFrame is a captured frame. Row 0 is the visual top, so the last row
// is the visual bottom that region offsets are measured from.
type RawFrame struct {
	Width  int
	Height int
	Stride int
	Pix    []byte
}

// Validate reports whether Pix can be read at the claimed dimensions.
func (f *RawFrame) Validate() error {
	switch {
	case f.Width <= 0 || f.Height <= 0:
		return fmt.Errorf("%w: size %dx%d", ErrMalformed, f.Width, f.Height)
	case f.Stride < f.Width*BytesPerPixel:
		return fmt.Errorf("%w: stride %d < %d", ErrMalformed, f.Stride, f.Width*BytesPerPixel)
	case len(f.Pix) < f.Stride*(f.Height-1)+f.Width*BytesPerPixel:
		return fmt.Errorf("%w: %d bytes for %dx%d stride %d", ErrMalformed, len(f.Pix), f.Width, f.Height, f.Stride)
	}
	return nil
}

// Clone returns a deep copy.
func (f *RawFrame) Clone() RawFrame {
	out := *f
	out.Pix = append([]byte(nil), f.Pix...)
	return out
}

// copyFrom copies src into f, reusing f's buffer when it is large enough.
func (f *RawFrame) copyFrom(width, height, stride int, pix []byte) {
	f.Width, f.Height, f.Stride = width, height, stride
	if cap(f.Pix) < len(pix) {
		f.Pix = make([]byte, len(pix))
	}
	f.Pix = f.Pix[:len(pix)]
	copy(f.Pix, pix)
}
