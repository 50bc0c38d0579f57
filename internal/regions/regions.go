// Package regions defines the on-screen stat rectangles read from each frame.
package regions

import (
	"fmt"
	"image"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	apperrors "github.com/GriffinCanCode/hudreader/internal/errors"
)

// Category classifies what a region's text means downstream.
type Category int

const (
	Unclassified Category = iota
	IdleCount
	PopulationRatio
)

var categoryNames = [...]string{"unclassified", "idle", "population"}

func (c Category) String() string {
	if int(c) < len(categoryNames) {
		return categoryNames[c]
	}
	return categoryNames[Unclassified]
}

// ParseCategory accepts the names produced by String.
func ParseCategory(s string) (Category, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return Unclassified, nil
	}
	for i, name := range categoryNames {
		if name == s {
			return Category(i), nil
		}
	}
	return Unclassified, fmt.Errorf("unknown region category %q", s)
}

// MarshalText implements encoding.TextMarshaler.
func (c Category) MarshalText() ([]byte, error) { return []byte(c.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (c *Category) UnmarshalText(b []byte) error {
	v, err := ParseCategory(string(b))
	if err != nil {
		return err
	}
	*c = v
	return nil
}

// StatRegion is a named box. Y is measured from the bottom of the capture
// area and is therefore negative for anything visible.
type StatRegion struct {
	Name     string   `yaml:"name" json:"name"`
	X        int      `yaml:"x" json:"x"`
	Y        int      `yaml:"y" json:"y"`
	Width    int      `yaml:"width" json:"width"`
	Height   int      `yaml:"height" json:"height"`
	Category Category `yaml:"category" json:"category"`
}

// Rect resolves the region against an image of the given height.
func (r StatRegion) Rect(height int) image.Rectangle {
	y := height + r.Y
	return image.Rect(r.X, y, r.X+r.Width, y+r.Height)
}

func stat(name string, x, top int, cat Category) StatRegion {
	return StatRegion{Name: name, X: x, Y: top - AreaHeight, Width: StatWidth, Height: StatHeight, Category: cat}
}

// Default returns the reference ten-box layout.
func Default() []StatRegion {
	return []StatRegion{
		stat("Pop", 50, 190, PopulationRatio),
		stat("Food", 50, 265, Unclassified),
		stat("Wood", 50, 318, Unclassified),
		stat("Gold", 50, 369, Unclassified),
		stat("Stone", 50, 421, Unclassified),
		stat("Idle", 187, 190, IdleCount),
		stat("Food Worker", 187, 262, Unclassified),
		stat("Wood Worker", 187, 315, Unclassified),
		stat("Gold Worker", 187, 366, Unclassified),
		stat("Stone Worker", 187, 419, Unclassified),
	}
}

// Resolve maps every region onto bounds. Boxes falling partly outside are
// clipped; boxes entirely outside become empty rectangles.
func Resolve(rs []StatRegion, bounds image.Rectangle) []image.Rectangle {
	out := make([]image.Rectangle, len(rs))
	for i, r := range rs {
		out[i] = r.Rect(bounds.Dy()).Add(bounds.Min).Intersect(bounds)
	}
	return out
}

// IndexOf returns the first region with the category, or -1.
func IndexOf(rs []StatRegion, c Category) int {
	for i, r := range rs {
		if r.Category == c {
			return i
		}
	}
	return -1
}

// Validate rejects tables the pipeline cannot use.
func Validate(rs []StatRegion) error {
	if len(rs) == 0 {
		return apperrors.New(apperrors.CodeRegionInvalid, "region table is empty")
	}
	seen := make(map[string]struct{}, len(rs))
	for i, r := range rs {
		if r.Name == "" {
			return apperrors.Newf(apperrors.CodeRegionInvalid, "region %d has no name", i)
		}
		if _, dup := seen[r.Name]; dup {
			return apperrors.Newf(apperrors.CodeRegionInvalid, "duplicate region %q", r.Name)
		}
		seen[r.Name] = struct{}{}
		if r.Width <= 0 || r.Height <= 0 {
			return apperrors.Newf(apperrors.CodeRegionInvalid, "region %q has empty size", r.Name).
				WithMetadata("region", r.Name)
		}
		if r.X < 0 || r.Y+r.Height > 0 {
			return apperrors.Newf(apperrors.CodeRegionInvalid, "region %q lies outside the capture area", r.Name).
				WithMetadata("region", r.Name)
		}
	}
	return nil
}

type file struct {
	Regions []StatRegion `yaml:"regions"`
}

// Load reads a YAML region table. An empty path returns Default.
func Load(path string) ([]StatRegion, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeConfigMissing, "read region table").WithMetadata("path", path)
	}
	return Parse(data)
}

// Parse decodes and validates a YAML region table.
func Parse(data []byte) ([]StatRegion, error) {
	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeConfigInvalid, "parse region table")
	}
	if err := Validate(f.Regions); err != nil {
		return nil, err
	}
	return f.Regions, nil
}
