// internal/perception/annotate.go
package perception

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"math"

	xdraw "golang.org/x/image/draw"
)

var elementColors = map[ElementType]color.NRGBA{
	ElementButton:    {255, 68, 68, 220},
	ElementInput:     {68, 255, 68, 220},
	ElementLink:      {68, 68, 255, 220},
	ElementIcon:      {255, 170, 0, 220},
	ElementCheckbox:  {255, 68, 255, 220},
	ElementRadio:     {255, 68, 255, 220},
	ElementMenu:      {0, 220, 255, 220},
	ElementMenuItem:  {0, 200, 220, 220},
	ElementSelect:    {170, 170, 68, 220},
	ElementText:      {170, 170, 170, 200},
	ElementImage:     {255, 200, 100, 220},
	ElementContainer: {120, 120, 80, 180},
	ElementUnknown:   {255, 255, 255, 200},
}

func colorFor(t ElementType) color.NRGBA {
	if c, ok := elementColors[t]; ok {
		return c
	}
	return elementColors[ElementUnknown]
}

// Annotate draws a color-coded box and the short id of every element onto a
// copy of img. Wide captures get thicker boxes and double-size labels.
func Annotate(img image.Image, elements []UIElement) *image.RGBA {
	canvas := toRGBA(img)
	w, h := canvas.Bounds().Dx(), canvas.Bounds().Dy()

	scale, thickness := 1, 2
	if w > 1600 {
		scale, thickness = 2, 3
	}

	for _, el := range elements {
		x1 := int(math.Round(el.BBox[0] * float64(w)))
		y1 := int(math.Round(el.BBox[1] * float64(h)))
		x2 := int(math.Round(el.BBox[2] * float64(w)))
		y2 := int(math.Round(el.BBox[3] * float64(h)))
		c := colorFor(el.NodeType)

		drawRect(canvas, x1, y1, x2, y2, c, thickness)

		_, lh := labelSize(el.ID, scale)
		drawLabel(canvas, x1, max(y1-lh, 0), el.ID, color.NRGBA{c.R, c.G, c.B, 255}, scale)
	}
	return canvas
}

// drawRect strokes the inclusive box (x1,y1)-(x2,y2) inward by thickness pixels.
func drawRect(dst *image.RGBA, x1, y1, x2, y2 int, c color.NRGBA, thickness int) {
	src := image.NewUniform(c)
	for t := 0; t < thickness; t++ {
		edges := []image.Rectangle{
			image.Rect(x1, y1+t, x2+1, y1+t+1),
			image.Rect(x1, y2-t, x2+1, y2-t+1),
			image.Rect(x1+t, y1, x1+t+1, y2+1),
			image.Rect(x2-t, y1, x2-t+1, y2+1),
		}
		for _, r := range edges {
			xdraw.Draw(dst, r, src, image.Point{}, xdraw.Over)
		}
	}
}

// EncodePNG serializes an image for transport to the model or a display surface.
func EncodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("failed to encode png: %w", err)
	}
	return buf.Bytes(), nil
}
