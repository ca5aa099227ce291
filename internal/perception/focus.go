// internal/perception/focus.go
package perception

import (
	"errors"
	"image"
	"math"

	xdraw "golang.org/x/image/draw"
)

// ErrEmptyCrop is returned when the padded region has no area.
var ErrEmptyCrop = errors.New("zero-size crop")

// FocusCrop is a zoomed region of a capture plus the data needed to map
// points inside it back to physical coordinates.
type FocusCrop struct {
	Image   *image.RGBA
	OriginX int
	OriginY int
	CropW   int
	CropH   int
}

// CropElement cuts box out of img with padding pixels of context on each side,
// then upscales so neither edge is below minSize.
func CropElement(img image.Image, box BBox, padding, minSize int) (*FocusCrop, error) {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()

	x1 := int(math.Round(box[0]*float64(w))) - padding
	y1 := int(math.Round(box[1]*float64(h))) - padding
	x2 := int(math.Round(box[2]*float64(w))) + padding
	y2 := int(math.Round(box[3]*float64(h))) + padding
	x1, y1 = max(x1, 0), max(y1, 0)
	x2, y2 = min(x2, w), min(y2, h)

	cw, ch := x2-x1, y2-y1
	if cw <= 0 || ch <= 0 {
		return nil, ErrEmptyCrop
	}

	scale := 1.0
	if cw < minSize || ch < minSize {
		scale = math.Max(math.Max(float64(minSize)/float64(cw), float64(minSize)/float64(ch)), 1)
	}
	outW := int(math.Round(float64(cw) * scale))
	outH := int(math.Round(float64(ch) * scale))

	src := image.Rect(b.Min.X+x1, b.Min.Y+y1, b.Min.X+x2, b.Min.Y+y2)
	dst := image.NewRGBA(image.Rect(0, 0, outW, outH))
	if scale > 1 {
		xdraw.CatmullRom.Scale(dst, dst.Bounds(), img, src, xdraw.Src, nil)
	} else {
		xdraw.Draw(dst, dst.Bounds(), img, src.Min, xdraw.Src)
	}

	return &FocusCrop{Image: dst, OriginX: x1, OriginY: y1, CropW: cw, CropH: ch}, nil
}

// CropToPhysical maps (x, y) inside an upW x upH rendering of crop back onto
// the full capture.
func CropToPhysical(x, y float64, crop *FocusCrop, upW, upH int) image.Point {
	sx := float64(crop.CropW) / float64(upW)
	sy := float64(crop.CropH) / float64(upH)
	return image.Point{
		X: int(math.Round(x*sx + float64(crop.OriginX))),
		Y: int(math.Round(y*sy + float64(crop.OriginY))),
	}
}

// ToPhysical maps a point in the crop's own upscaled image back to the capture.
func (c *FocusCrop) ToPhysical(x, y float64) image.Point {
	return CropToPhysical(x, y, c, c.Image.Bounds().Dx(), c.Image.Bounds().Dy())
}

// CellBBox is the normalized box of one grid cell, for cropping around it.
func CellBBox(col, row, n int) BBox {
	fn := float64(n)
	return BBox{float64(col) / fn, float64(row) / fn, float64(col+1) / fn, float64(row+1) / fn}
}
