// Package screen provides platform-agnostic screen capture into raw frames
package screen

import (
	"bytes"
	"context"
	"crypto/md5"
	"image"
	"os"

	apperrors "github.com/GriffinCanCode/hudreader/internal/errors"
	"github.com/GriffinCanCode/hudreader/internal/frame"
	"github.com/GriffinCanCode/hudreader/internal/vision"
)

// Capturer produces BGRA frames. changed is false when the screen is
// byte-identical to the previous capture; the frame is then left empty.
type Capturer interface {
	Capture(ctx context.Context) (f frame.RawFrame, changed bool, err error)
	Close() error
}

// backend implements platform-specific raw capture of an encoded image
type backend interface {
	captureRaw(ctx context.Context) ([]byte, error)
	name() string
}

// baseCapturer provides decoding and hash-based change detection
type baseCapturer struct {
	backend
	lastHash [md5.Size]byte
	tempDir  string
}

func newBase(b backend, tempDir string) *baseCapturer {
	return &baseCapturer{backend: b, tempDir: tempDir}
}

func (c *baseCapturer) Capture(ctx context.Context) (frame.RawFrame, bool, error) {
	data, err := c.captureRaw(ctx)
	if err != nil {
		return frame.RawFrame{}, false, apperrors.Wrap(err, apperrors.CodeCaptureFailed, "capture screen").
			WithMetadata("backend", c.name())
	}
	hash := md5.Sum(data)
	if hash == c.lastHash {
		return frame.RawFrame{}, false, nil
	}
	f, err := decode(data)
	if err != nil {
		return frame.RawFrame{}, false, err
	}
	c.lastHash = hash
	return f, true, nil
}

func (c *baseCapturer) Close() error {
	if c.tempDir == "" {
		return nil
	}
	return os.RemoveAll(c.tempDir)
}

// decode turns an encoded screenshot into a BGRA frame.
func decode(data []byte) (frame.RawFrame, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return frame.RawFrame{}, apperrors.Wrap(err, apperrors.CodeFrameMalformed, "decode screenshot")
	}
	var f frame.RawFrame
	vision.ToBGRA(img, &f)
	return f, nil
}

func tempDir() (string, error) {
	dir, err := os.MkdirTemp("", "hudreader-screen-*")
	if err != nil {
		return "", apperrors.Wrap(err, apperrors.CodeInternal, "create screenshot dir")
	}
	return dir, nil
}
