package ocr

import (
	"context"
	"image"
)

// Recognition is a backend's reading of one crop. Score is in [0,1].
type Recognition struct {
	Text  string
	Score float64
}

// Backend is a neural text recognizer. Recognize returns exactly one
// Recognition per crop, in order. Implementations need not be safe for
// concurrent use; engines serialize or pool them.
type Backend interface {
	Recognize(ctx context.Context, crops []image.Image) ([]Recognition, error)
	Close() error
}

// BackendFactory opens a new backend instance.
type BackendFactory func() (Backend, error)
