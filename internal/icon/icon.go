// Package icon detects a single known icon inside a fixed search area.
package icon

import (
	"image"

	"github.com/GriffinCanCode/hudreader/internal/vision"
)

// Config places the search area and sets the acceptance threshold.
type Config struct {
	X, Y          int
	Width, Height int
	Threshold     float64
}

// DefaultConfig returns the villager icon search area.
func DefaultConfig() Config {
	return Config{
		X:         DefaultX,
		Y:         DefaultY,
		Width:     DefaultWidth,
		Height:    DefaultHeight,
		Threshold: DefaultThreshold,
	}
}

// Match is the diagnostic form of a detection. Rect is in image
// coordinates and only meaningful when Score was computed.
type Match struct {
	Present bool
	Rect    image.Rectangle
	Score   float64
}

// Detector matches one RGB template. It holds no mutable state and is safe
// for concurrent use.
type Detector struct {
	tmpl *image.RGBA
	cfg  Config
}

// New creates a detector for template.
func New(template *image.RGBA, cfg Config) *Detector {
	if cfg.Threshold <= 0 {
		cfg.Threshold = DefaultThreshold
	}
	return &Detector{tmpl: template, cfg: cfg}
}

// LoadTemplate reads the icon template from disk.
func LoadTemplate(path string) (*image.RGBA, error) {
	return vision.LoadRGBA(path)
}

// SearchArea resolves the configured area against bounds. The result may
// be empty.
func (d *Detector) SearchArea(bounds image.Rectangle) image.Rectangle {
	top := bounds.Max.Y + d.cfg.Y
	left := bounds.Min.X + d.cfg.X
	return image.Rect(left, top, left+d.cfg.Width, top+d.cfg.Height).Intersect(bounds)
}

// Detect reports whether the icon is present.
func (d *Detector) Detect(img *image.RGBA) bool {
	return d.DetectWithMatch(img).Present
}

// DetectWithMatch returns the best placement and its score. An area that
// is empty or smaller than the template is reported as not present.
func (d *Detector) DetectWithMatch(img *image.RGBA) Match {
	area := d.SearchArea(img.Bounds())
	tb := d.tmpl.Bounds()
	if area.Dx() < tb.Dx() || area.Dy() < tb.Dy() {
		return Match{}
	}

	scores := vision.MatchRGBA(vision.Crop(img, area), d.tmpl)
	best, at, ok := scores.Max()
	if !ok {
		return Match{}
	}
	origin := area.Min.Add(at)
	return Match{
		Present: float64(best) >= d.cfg.Threshold,
		Rect:    image.Rectangle{Min: origin, Max: origin.Add(tb.Size())},
		Score:   float64(best),
	}
}
