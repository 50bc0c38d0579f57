// Package vision holds the pixel-level primitives shared by the recognizers:
// color conversion, cropping and normalized cross-correlation.
package vision

import (
	"image"
	"image/color"

	xdraw "golang.org/x/image/draw"

	"github.com/GriffinCanCode/hudreader/internal/frame"
)

// BottomArea returns the width x height rectangle anchored at the
// bottom-left corner of a frame, clipped to the frame.
func BottomArea(frameW, frameH, width, height int) image.Rectangle {
	full := image.Rect(0, 0, frameW, frameH)
	return image.Rect(0, frameH-height, width, frameH).Intersect(full)
}

// FromBGRA converts the r sub-rectangle of a BGRA frame into an opaque
// RGBA image whose bounds start at the origin.
func FromBGRA(f *frame.RawFrame, r image.Rectangle) (*image.RGBA, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}
	r = r.Intersect(image.Rect(0, 0, f.Width, f.Height))
	dst := image.NewRGBA(image.Rect(0, 0, r.Dx(), r.Dy()))
	for y := 0; y < r.Dy(); y++ {
		src := f.Pix[(r.Min.Y+y)*f.Stride+r.Min.X*frame.BytesPerPixel:]
		row := dst.Pix[y*dst.Stride : y*dst.Stride+r.Dx()*4]
		for x := 0; x < len(row); x += 4 {
			row[x+0] = src[x+2]
			row[x+1] = src[x+1]
			row[x+2] = src[x+0]
			row[x+3] = 0xff
		}
	}
	return dst, nil
}

// ToBGRA writes img into dst as a tightly packed BGRA frame, reusing
// dst.Pix when it is large enough.
func ToBGRA(img image.Image, dst *frame.RawFrame) {
	rgba := ToRGBA(img)
	b := rgba.Bounds()
	dst.Width, dst.Height, dst.Stride = b.Dx(), b.Dy(), b.Dx()*frame.BytesPerPixel
	n := dst.Stride * dst.Height
	if cap(dst.Pix) < n {
		dst.Pix = make([]byte, n)
	}
	dst.Pix = dst.Pix[:n]
	for y := 0; y < dst.Height; y++ {
		src := rgba.Pix[y*rgba.Stride : y*rgba.Stride+dst.Stride]
		row := dst.Pix[y*dst.Stride : (y+1)*dst.Stride]
		for x := 0; x < len(row); x += 4 {
			row[x+0] = src[x+2]
			row[x+1] = src[x+1]
			row[x+2] = src[x+0]
			row[x+3] = src[x+3]
		}
	}
}

// Gray converts the r sub-rectangle of img to an 8-bit luma image whose
// bounds start at the origin.
func Gray(img image.Image, r image.Rectangle) *image.Gray {
	r = r.Intersect(img.Bounds())
	dst := image.NewGray(image.Rect(0, 0, r.Dx(), r.Dy()))
	xdraw.Draw(dst, dst.Bounds(), img, r.Min, xdraw.Src)
	return dst
}

// GrayToRGB expands a luma image back to RGB, adding delta to every
// channel with saturation.
func GrayToRGB(g *image.Gray, delta int) *image.RGBA {
	b := g.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	var lut [256]uint8
	for i := range lut {
		lut[i] = clamp8(i + delta)
	}
	for y := 0; y < b.Dy(); y++ {
		src := g.Pix[y*g.Stride : y*g.Stride+b.Dx()]
		row := dst.Pix[y*dst.Stride:]
		for x, v := range src {
			c := lut[v]
			row[x*4+0] = c
			row[x*4+1] = c
			row[x*4+2] = c
			row[x*4+3] = 0xff
		}
	}
	return dst
}

// Normalize is the preprocessing applied before text recognition: luma,
// then back to RGB with a brightness boost.
func Normalize(img *image.RGBA, delta int) *image.RGBA {
	return GrayToRGB(Gray(img, img.Bounds()), delta)
}

// Crop copies r out of img into a new image at the origin.
func Crop(img image.Image, r image.Rectangle) *image.RGBA {
	r = r.Intersect(img.Bounds())
	dst := image.NewRGBA(image.Rect(0, 0, r.Dx(), r.Dy()))
	xdraw.Draw(dst, dst.Bounds(), img, r.Min, xdraw.Src)
	return dst
}

// Upscale enlarges img by factor with Catmull-Rom resampling.
func Upscale(img image.Image, factor int) *image.RGBA {
	b := img.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx()*factor, b.Dy()*factor))
	xdraw.CatmullRom.Scale(dst, dst.Bounds(), img, b, xdraw.Src, nil)
	return dst
}

// ToRGBA returns img as an origin-based *image.RGBA, copying if needed.
func ToRGBA(img image.Image) *image.RGBA {
	if rgba, ok := img.(*image.RGBA); ok && rgba.Bounds().Min == (image.Point{}) {
		return rgba
	}
	return Crop(img, img.Bounds())
}

// Fill paints r with c. Used by tests and synthetic frames.
func Fill(img xdraw.Image, r image.Rectangle, c color.Color) {
	xdraw.Draw(img, r, image.NewUniform(c), image.Point{}, xdraw.Src)
}

func clamp8(v int) uint8 {
	switch {
	case v < 0:
		return 0
	case v > 255:
		return 255
	}
	return uint8(v)
}
