package ocr

import (
	"context"
	"image"

	"github.com/GriffinCanCode/hudreader/internal/digits"
	"github.com/GriffinCanCode/hudreader/internal/vision"
)

type templateMatch struct {
	matcher *digits.Matcher
}

// NewTemplateMatch reads regions with the digit template matcher.
func NewTemplateMatch(m *digits.Matcher) *Engine {
	return &Engine{kind: KindTemplateMatch, template: &templateMatch{matcher: m}}
}

func (t *templateMatch) recognize(ctx context.Context, img *image.RGBA, rects []image.Rectangle, out []ShortString) error {
	for i, r := range rects {
		if err := ctx.Err(); err != nil {
			return err
		}
		if r.Empty() {
			continue
		}
		text, conf := t.matcher.Recognize(vision.Gray(img, r))
		if !t.matcher.Accepted(text, conf) {
			continue
		}
		if s, ok := Accept(text); ok {
			out[i] = s
		}
	}
	return nil
}
