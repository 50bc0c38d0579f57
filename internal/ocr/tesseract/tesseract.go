// Package tesseract provides an ocr.Backend on top of the Tesseract engine.
package tesseract

import (
	"bytes"
	"context"
	"image"
	"image/png"
	"strings"

	"github.com/otiai10/gosseract/v2"

	apperrors "github.com/GriffinCanCode/hudreader/internal/errors"
	"github.com/GriffinCanCode/hudreader/internal/ocr"
	"github.com/GriffinCanCode/hudreader/internal/vision"
)

const (
	// Whitelist limits recognition to the characters a stat can hold.
	Whitelist = "0123456789/"
	// DefaultUpscale enlarges the small HUD crops before recognition.
	DefaultUpscale = 3
)

// Config tunes a Tesseract client.
type Config struct {
	Language       string
	TessdataPrefix string
	Upscale        int
}

// Backend owns one Tesseract client. It is not safe for concurrent use;
// the engines serialize access or pool several backends.
type Backend struct {
	client  *gosseract.Client
	upscale int
}

// New opens a client configured for single-line digit reads.
func New(cfg Config) (*Backend, error) {
	if cfg.Language == "" {
		cfg.Language = "eng"
	}
	if cfg.Upscale <= 0 {
		cfg.Upscale = DefaultUpscale
	}

	client := gosseract.NewClient()
	fail := func(err error, what string) (*Backend, error) {
		_ = client.Close()
		return nil, apperrors.Wrap(err, apperrors.CodeEngineInit, what)
	}
	if cfg.TessdataPrefix != "" {
		if err := client.SetTessdataPrefix(cfg.TessdataPrefix); err != nil {
			return fail(err, "set tessdata prefix")
		}
	}
	if err := client.SetLanguage(cfg.Language); err != nil {
		return fail(err, "set language")
	}
	if err := client.SetWhitelist(Whitelist); err != nil {
		return fail(err, "set whitelist")
	}
	if err := client.SetPageSegMode(gosseract.PSM_SINGLE_LINE); err != nil {
		return fail(err, "set page segmentation mode")
	}
	return &Backend{client: client, upscale: cfg.Upscale}, nil
}

// Factory returns a constructor usable by ocr.New.
func Factory(cfg Config) ocr.BackendFactory {
	return func() (ocr.Backend, error) {
		return New(cfg)
	}
}

// Recognize reads each crop in turn. Words on the line are joined without
// separators and the score is their mean confidence scaled to [0,1].
func (b *Backend) Recognize(ctx context.Context, crops []image.Image) ([]ocr.Recognition, error) {
	out := make([]ocr.Recognition, len(crops))
	var buf bytes.Buffer
	for i, crop := range crops {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		buf.Reset()
		if err := png.Encode(&buf, vision.Upscale(crop, b.upscale)); err != nil {
			return nil, apperrors.Wrap(err, apperrors.CodeEngineFailed, "encode crop")
		}
		if err := b.client.SetImageFromBytes(buf.Bytes()); err != nil {
			return nil, apperrors.Wrap(err, apperrors.CodeEngineFailed, "set image")
		}
		boxes, err := b.client.GetBoundingBoxes(gosseract.RIL_WORD)
		if err != nil {
			return nil, apperrors.Wrap(err, apperrors.CodeEngineFailed, "read words")
		}
		out[i] = join(boxes)
	}
	return out, nil
}

// Close releases the client.
func (b *Backend) Close() error {
	return b.client.Close()
}

func join(boxes []gosseract.BoundingBox) ocr.Recognition {
	var sb strings.Builder
	var total float64
	n := 0
	for _, box := range boxes {
		w := strings.TrimSpace(box.Word)
		if w == "" {
			continue
		}
		sb.WriteString(w)
		total += box.Confidence
		n++
	}
	if n == 0 {
		return ocr.Recognition{}
	}
	return ocr.Recognition{Text: sb.String(), Score: total / float64(n) / 100}
}
