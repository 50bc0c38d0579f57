package ocr

import (
	"context"
	"image"

	"github.com/GriffinCanCode/hudreader/internal/trace"
)

// fallback consults secondary only for regions primary left empty.
type fallback struct {
	primary   *Engine
	secondary *Engine
}

// WithFallback composes two engines. The secondary never overrides a
// region the primary read.
func WithFallback(primary, secondary *Engine) *Engine {
	return &Engine{kind: kindFallback, fallback: &fallback{primary: primary, secondary: secondary}}
}

// recognize fails only if the primary fails. A secondary failure keeps
// the primary's reads.
func (f *fallback) recognize(ctx context.Context, img *image.RGBA, rects []image.Rectangle, out []ShortString) error {
	first, err := f.primary.Recognize(ctx, img, rects)
	if err != nil {
		return err
	}
	copy(out, first)

	var missing []int
	var retry []image.Rectangle
	for i, s := range out {
		if s.IsEmpty() && !rects[i].Empty() {
			missing = append(missing, i)
			retry = append(retry, rects[i])
		}
	}
	if len(missing) == 0 {
		return nil
	}

	second, err := f.secondary.Recognize(ctx, img, retry)
	if err != nil {
		trace.Logger(ctx).Warn("fallback engine failed", "engine", f.secondary.String(), "regions", len(retry), "error", err)
		return nil
	}
	for j, i := range missing {
		out[i] = second[j]
	}
	return nil
}
