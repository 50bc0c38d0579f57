//go:build !gocv

package vision

import (
	"image"
	"math"
)

// plane is one channel of an image as float64 samples, row-major.
type plane struct {
	w, h int
	v    []float64
}

func grayPlanes(img *image.Gray) []plane {
	b := img.Bounds()
	p := plane{w: b.Dx(), h: b.Dy(), v: make([]float64, b.Dx()*b.Dy())}
	for y := 0; y < p.h; y++ {
		row := img.Pix[y*img.Stride : y*img.Stride+p.w]
		for x, v := range row {
			p.v[y*p.w+x] = float64(v)
		}
	}
	return []plane{p}
}

// rgbPlanes drops alpha: it is always opaque in our images and would only
// add a zero-variance channel.
func rgbPlanes(img *image.RGBA) []plane {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	out := make([]plane, 3)
	for c := range out {
		out[c] = plane{w: w, h: h, v: make([]float64, w*h)}
	}
	for y := 0; y < h; y++ {
		row := img.Pix[y*img.Stride : y*img.Stride+w*4]
		for x := 0; x < w; x++ {
			for c := 0; c < 3; c++ {
				out[c].v[y*w+x] = float64(row[x*4+c])
			}
		}
	}
	return out
}

// integral returns summed-area tables of v and v squared, (w+1)x(h+1).
func integral(p plane) (sum, sq []float64) {
	stride := p.w + 1
	sum = make([]float64, stride*(p.h+1))
	sq = make([]float64, stride*(p.h+1))
	for y := 0; y < p.h; y++ {
		var rs, rq float64
		for x := 0; x < p.w; x++ {
			v := p.v[y*p.w+x]
			rs += v
			rq += v * v
			sum[(y+1)*stride+x+1] = sum[y*stride+x+1] + rs
			sq[(y+1)*stride+x+1] = sq[y*stride+x+1] + rq
		}
	}
	return sum, sq
}

func boxSum(t []float64, stride, x, y, w, h int) float64 {
	return t[(y+h)*stride+x+w] - t[y*stride+x+w] - t[(y+h)*stride+x] + t[y*stride+x]
}

// matchPlanes computes TM_CCOEFF_NORMED with channel sums pooled, the way
// OpenCV treats multi-channel input.
func matchPlanes(img, tmpl []plane) ScoreMap {
	iw, ih := img[0].w, img[0].h
	tw, th := tmpl[0].w, tmpl[0].h
	m := ScoreMap{W: iw - tw + 1, H: ih - th + 1}
	if tw == 0 || th == 0 || m.Empty() {
		return ScoreMap{}
	}
	n := float64(tw * th)

	// Zero-mean template per channel; then sum(I*T') equals the
	// correlation numerator because sum(T') is zero.
	centered := make([][]float64, len(tmpl))
	var tNorm float64
	for c, tp := range tmpl {
		var mean float64
		for _, v := range tp.v {
			mean += v
		}
		mean /= n
		centered[c] = make([]float64, len(tp.v))
		for i, v := range tp.v {
			d := v - mean
			centered[c][i] = d
			tNorm += d * d
		}
	}
	tNorm = math.Sqrt(tNorm)

	sums := make([][]float64, len(img))
	sqs := make([][]float64, len(img))
	for c, ip := range img {
		sums[c], sqs[c] = integral(ip)
	}
	stride := iw + 1

	m.Scores = make([]float32, m.W*m.H)
	for y := 0; y < m.H; y++ {
		for x := 0; x < m.W; x++ {
			var num, variance float64
			for c, ip := range img {
				s := boxSum(sums[c], stride, x, y, tw, th)
				q := boxSum(sqs[c], stride, x, y, tw, th)
				variance += math.Max(q-s*s/n, 0)

				tc := centered[c]
				for ty := 0; ty < th; ty++ {
					irow := ip.v[(y+ty)*iw+x : (y+ty)*iw+x+tw]
					trow := tc[ty*tw : ty*tw+tw]
					for i, v := range irow {
						num += v * trow[i]
					}
				}
			}
			m.Scores[y*m.W+x] = normalizeScore(num, math.Sqrt(variance)*tNorm)
		}
	}
	return m
}

// MatchGray slides tmpl over img and scores every placement.
func MatchGray(img, tmpl *image.Gray) ScoreMap {
	return matchPlanes(grayPlanes(img), grayPlanes(tmpl))
}

// MatchRGBA is MatchGray over the three color channels.
func MatchRGBA(img, tmpl *image.RGBA) ScoreMap {
	return matchPlanes(rgbPlanes(img), rgbPlanes(tmpl))
}
