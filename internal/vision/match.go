package vision

import "image"

// ScoreMap holds TM_CCOEFF_NORMED scores for every placement of a template.
// Scores[y*W+x] is the score with the template's top-left corner at (x, y).
type ScoreMap struct {
	W, H   int
	Scores []float32
}

// Empty reports whether the template did not fit anywhere.
func (m ScoreMap) Empty() bool { return m.W <= 0 || m.H <= 0 }

// At returns the score at (x, y).
func (m ScoreMap) At(x, y int) float32 { return m.Scores[y*m.W+x] }

// Max returns the best score and where it occurred. ok is false for an
// empty map.
func (m ScoreMap) Max() (best float32, at image.Point, ok bool) {
	if m.Empty() {
		return 0, image.Point{}, false
	}
	best = m.Scores[0]
	for i, s := range m.Scores {
		if s > best {
			best = s
			at = image.Pt(i%m.W, i/m.W)
		}
	}
	return best, at, true
}

// Each calls fn for every placement scoring at least threshold, in row-major order.
func (m ScoreMap) Each(threshold float32, fn func(x, y int, score float32)) {
	for i, s := range m.Scores {
		if s >= threshold {
			fn(i%m.W, i/m.W, s)
		}
	}
}

// normalizeScore applies the OpenCV TM_CCOEFF_NORMED guard: a flat window
// or flat template scores 0 instead of dividing by zero.
func normalizeScore(num, denom float64) float32 {
	switch {
	case abs(num) < denom:
		return float32(num / denom)
	case abs(num) < denom*1.125:
		if num > 0 {
			return 1
		}
		return -1
	default:
		return 0
	}
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
