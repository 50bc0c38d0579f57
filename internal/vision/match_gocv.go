//go:build gocv

package vision

import (
	"image"

	"gocv.io/x/gocv"
)

// compact returns pixel bytes without row padding.
func compact(pix []byte, stride, rowBytes, rows int) []byte {
	if stride == rowBytes {
		return pix[:rowBytes*rows]
	}
	out := make([]byte, 0, rowBytes*rows)
	for y := 0; y < rows; y++ {
		out = append(out, pix[y*stride:y*stride+rowBytes]...)
	}
	return out
}

func matchMats(img, tmpl gocv.Mat) ScoreMap {
	if tmpl.Cols() == 0 || tmpl.Rows() == 0 || tmpl.Cols() > img.Cols() || tmpl.Rows() > img.Rows() {
		return ScoreMap{}
	}
	result := gocv.NewMat()
	defer result.Close()
	mask := gocv.NewMat()
	defer mask.Close()

	gocv.MatchTemplate(img, tmpl, &result, gocv.TmCcoeffNormed, mask)

	m := ScoreMap{W: result.Cols(), H: result.Rows()}
	m.Scores = make([]float32, m.W*m.H)
	for y := 0; y < m.H; y++ {
		for x := 0; x < m.W; x++ {
			m.Scores[y*m.W+x] = result.GetFloatAt(y, x)
		}
	}
	return m
}

func grayMat(g *image.Gray) (gocv.Mat, error) {
	b := g.Bounds()
	return gocv.NewMatFromBytes(b.Dy(), b.Dx(), gocv.MatTypeCV8UC1, compact(g.Pix, g.Stride, b.Dx(), b.Dy()))
}

// rgbMat keeps all four channels; alpha is opaque so it adds nothing to the score.
func rgbMat(img *image.RGBA) (gocv.Mat, error) {
	b := img.Bounds()
	return gocv.NewMatFromBytes(b.Dy(), b.Dx(), gocv.MatTypeCV8UC4, compact(img.Pix, img.Stride, b.Dx()*4, b.Dy()))
}

// MatchGray slides tmpl over img and scores every placement.
func MatchGray(img, tmpl *image.Gray) ScoreMap {
	im, err := grayMat(img)
	if err != nil {
		return ScoreMap{}
	}
	defer im.Close()
	tm, err := grayMat(tmpl)
	if err != nil {
		return ScoreMap{}
	}
	defer tm.Close()
	return matchMats(im, tm)
}

// MatchRGBA is MatchGray over the color channels.
func MatchRGBA(img, tmpl *image.RGBA) ScoreMap {
	im, err := rgbMat(img)
	if err != nil {
		return ScoreMap{}
	}
	defer im.Close()
	tm, err := rgbMat(tmpl)
	if err != nil {
		return ScoreMap{}
	}
	defer tm.Close()
	return matchMats(im, tm)
}
