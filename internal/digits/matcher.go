package digits

import (
	"image"
	"log/slog"
	"sort"

	"gonum.org/v1/gonum/stat"

	"github.com/GriffinCanCode/hudreader/internal/vision"
)

// Config holds matcher thresholds.
type Config struct {
	MatchThreshold float64 // minimum score for a candidate
	MinConfidence  float64 // minimum mean score for a region to count as read
	MinSeparation  int     // minimum horizontal distance between accepted symbols
	MaxSymbols     int     // output capacity
}

// DefaultConfig returns the reference thresholds.
func DefaultConfig() Config {
	return Config{
		MatchThreshold: DefaultMatchThreshold,
		MinConfidence:  DefaultMinConfidence,
		MinSeparation:  DefaultMinSeparation,
		MaxSymbols:     DefaultMaxSymbols,
	}
}

func (c Config) withDefaults() Config {
	if c.MatchThreshold <= 0 {
		c.MatchThreshold = DefaultMatchThreshold
	}
	if c.MinConfidence <= 0 {
		c.MinConfidence = DefaultMinConfidence
	}
	if c.MinSeparation <= 0 {
		c.MinSeparation = DefaultMinSeparation
	}
	if c.MaxSymbols <= 0 {
		c.MaxSymbols = DefaultMaxSymbols
	}
	return c
}

// Match is a candidate symbol placement.
type Match struct {
	Symbol byte
	X      int
	Score  float64
}

// Matcher recognizes digit strings in grayscale regions.
type Matcher struct {
	cfg       Config
	templates []Template
}

// NewMatcher creates a matcher over templates. The slice is copied and sorted.
func NewMatcher(templates []Template, cfg Config) *Matcher {
	ts := append([]Template(nil), templates...)
	SortTemplates(ts)
	return &Matcher{cfg: cfg.withDefaults(), templates: ts}
}

// Config returns the effective thresholds.
func (m *Matcher) Config() Config { return m.cfg }

// Recognize returns the symbols read left to right and their mean score.
// An image with no surviving match yields ("", 0).
func (m *Matcher) Recognize(gray *image.Gray) (string, float64) {
	return m.Assemble(m.Suppress(m.Candidates(gray)))
}

// Candidates runs every template over gray and returns each placement
// scoring at least MatchThreshold, sorted by x.
func (m *Matcher) Candidates(gray *image.Gray) []Match {
	var out []Match
	threshold := float32(m.cfg.MatchThreshold)
	for _, t := range m.templates {
		vision.MatchGray(gray, t.Img).Each(threshold, func(x, _ int, score float32) {
			out = append(out, Match{Symbol: t.Symbol, X: x, Score: float64(score)})
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].X < out[j].X })
	return out
}

// Suppress keeps the strongest candidate in every MinSeparation-wide
// neighbourhood and returns the survivors sorted by x.
func (m *Matcher) Suppress(candidates []Match) []Match {
	byScore := append([]Match(nil), candidates...)
	sort.SliceStable(byScore, func(i, j int) bool {
		a, b := byScore[i], byScore[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if a.X != b.X {
			return a.X < b.X
		}
		return a.Symbol < b.Symbol
	})

	var kept []Match
	for _, c := range byScore {
		free := true
		for _, k := range kept {
			if absInt(c.X-k.X) < m.cfg.MinSeparation {
				free = false
				break
			}
		}
		if free {
			kept = append(kept, c)
		}
	}
	sort.SliceStable(kept, func(i, j int) bool { return kept[i].X < kept[j].X })
	return kept
}

// Assemble concatenates accepted matches in order, truncating at
// MaxSymbols, and returns their mean score. The mean covers every accepted
// match, including those cut from the text.
func (m *Matcher) Assemble(accepted []Match) (string, float64) {
	if len(accepted) == 0 {
		return "", 0
	}
	if len(accepted) > m.cfg.MaxSymbols {
		slog.Warn("too many symbols recognized, truncating", "found", len(accepted), "max", m.cfg.MaxSymbols)
	}
	n := min(len(accepted), m.cfg.MaxSymbols)
	text := make([]byte, n)
	for i := range text {
		text[i] = accepted[i].Symbol
	}
	scores := make([]float64, len(accepted))
	for i, a := range accepted {
		scores[i] = a.Score
	}
	return string(text), stat.Mean(scores, nil)
}

// Accepted reports whether a result clears MinConfidence.
func (m *Matcher) Accepted(text string, confidence float64) bool {
	return text != "" && confidence >= m.cfg.MinConfidence
}

func absInt(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
