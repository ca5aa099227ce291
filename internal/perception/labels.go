// internal/perception/labels.go
package perception

import (
	"image"
	"image/color"

	xdraw "golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

const labelPad = 2

var labelFace = basicfont.Face7x13

// labelSize is the on-image footprint of text at the given scale, padding included.
func labelSize(text string, scale int) (int, int) {
	m := labelFace.Metrics()
	w := font.MeasureString(labelFace, text).Ceil()
	h := (m.Ascent + m.Descent).Ceil()
	return w*scale + 2*labelPad*scale, h*scale + 2*labelPad*scale
}

// drawLabel renders text with its top-left corner at (x, y) over a darkened
// backing box. Nothing outside dst's bounds is touched.
func drawLabel(dst *image.RGBA, x, y int, text string, fg color.Color, scale int) {
	if scale < 1 {
		scale = 1
	}
	bw, bh := labelSize(text, scale)
	darken(dst, image.Rect(x, y, x+bw, y+bh), 0.2)

	m := labelFace.Metrics()
	tw := font.MeasureString(labelFace, text).Ceil()
	th := (m.Ascent + m.Descent).Ceil()
	glyphs := image.NewRGBA(image.Rect(0, 0, tw, th))
	d := &font.Drawer{
		Dst:  glyphs,
		Src:  image.NewUniform(fg),
		Face: labelFace,
		Dot:  fixed.Point26_6{Y: m.Ascent},
	}
	d.DrawString(text)

	ox, oy := x+labelPad*scale, y+labelPad*scale
	target := image.Rect(ox, oy, ox+tw*scale, oy+th*scale)
	xdraw.NearestNeighbor.Scale(dst, target, glyphs, glyphs.Bounds(), xdraw.Over, nil)
}

// darken multiplies the color channels inside r by factor and makes them opaque.
func darken(dst *image.RGBA, r image.Rectangle, factor float64) {
	r = r.Intersect(dst.Bounds())
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			i := dst.PixOffset(x, y)
			dst.Pix[i+0] = uint8(float64(dst.Pix[i+0]) * factor)
			dst.Pix[i+1] = uint8(float64(dst.Pix[i+1]) * factor)
			dst.Pix[i+2] = uint8(float64(dst.Pix[i+2]) * factor)
			dst.Pix[i+3] = 255
		}
	}
}

// toRGBA copies src into a fresh RGBA canvas anchored at the origin.
func toRGBA(src image.Image) *image.RGBA {
	b := src.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	xdraw.Draw(dst, dst.Bounds(), src, b.Min, xdraw.Src)
	return dst
}
