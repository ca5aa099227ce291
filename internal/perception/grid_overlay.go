// internal/perception/grid_overlay.go
package perception

import (
	"image"
	"image/color"

	xdraw "golang.org/x/image/draw"
)

var (
	gridLineColor = color.NRGBA{R: 0, G: 220, B: 255, A: 110}
	gridDotColor  = color.NRGBA{R: 0, G: 220, B: 255, A: 220}
	gridTextColor = color.NRGBA{R: 0, G: 220, B: 255, A: 255}
)

// DrawGrid overlays an n x n labeled grid on a copy of img. Lines are 2 px wide
// and blended; every cell gets a corner dot and its own label.
func DrawGrid(img image.Image, n int) *image.RGBA {
	canvas := toRGBA(img)
	w, h := canvas.Bounds().Dx(), canvas.Bounds().Dy()
	cellW := max(w/n, 1)
	cellH := max(h/n, 1)
	line := image.NewUniform(gridLineColor)

	for col := 1; col < n; col++ {
		x := col * cellW
		if x >= w {
			break
		}
		xdraw.Draw(canvas, image.Rect(x, 0, x+2, h), line, image.Point{}, xdraw.Over)
	}
	for row := 1; row < n; row++ {
		y := row * cellH
		if y >= h {
			break
		}
		xdraw.Draw(canvas, image.Rect(0, y, w, y+2), line, image.Point{}, xdraw.Over)
	}

	scale := 1
	if w > 1600 {
		scale = 2
	}
	dot := image.NewUniform(gridDotColor)
	for row := 0; row < n; row++ {
		for col := 0; col < n; col++ {
			ox, oy := col*cellW+6, row*cellH+6
			xdraw.Draw(canvas, image.Rect(ox, oy, ox+4, oy+4), dot, image.Point{}, xdraw.Src)
			drawLabel(canvas, ox+6, oy, CellLabel(col, row), gridTextColor, scale)
		}
	}
	return canvas
}
