// internal/perception/focus_test.go
package perception

import (
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCropElement(t *testing.T) {
	img := solid(1000, 800, color.RGBA{50, 60, 70, 255})

	t.Run("small crop is upscaled", func(t *testing.T) {
		crop, err := CropElement(img, BBox{0.5, 0.5, 0.52, 0.525}, 80, 512)
		require.NoError(t, err)
		assert.Equal(t, 420, crop.OriginX)
		assert.Equal(t, 320, crop.OriginY)
		assert.Equal(t, 180, crop.CropW)
		assert.Equal(t, 180, crop.CropH)
		assert.Equal(t, 512, crop.Image.Bounds().Dx())
		assert.Equal(t, 512, crop.Image.Bounds().Dy())

		center := crop.ToPhysical(256, 256)
		assert.Equal(t, image.Point{X: 510, Y: 410}, center)
	})

	t.Run("crop is clamped to the image", func(t *testing.T) {
		crop, err := CropElement(img, BBox{0, 0, 0.9, 0.9}, 80, 100)
		require.NoError(t, err)
		assert.Equal(t, 0, crop.OriginX)
		assert.Equal(t, 0, crop.OriginY)
		assert.Equal(t, 980, crop.CropW)
		assert.Equal(t, 800, crop.CropH)
		assert.Equal(t, crop.CropW, crop.Image.Bounds().Dx(), "no upscale when already large")
	})

	t.Run("zero-size crop", func(t *testing.T) {
		_, err := CropElement(img, BBox{1.2, 1.2, 1.3, 1.3}, 0, 512)
		assert.ErrorIs(t, err, ErrEmptyCrop)
	})
}

func TestCropToPhysical(t *testing.T) {
	crop := &FocusCrop{OriginX: 100, OriginY: 50, CropW: 200, CropH: 100}
	assert.Equal(t, image.Point{X: 125, Y: 75}, CropToPhysical(100, 100, crop, 800, 400))
}

func TestCellBBox(t *testing.T) {
	assert.Equal(t, BBox{0.25, 0.5, 0.5, 0.75}, CellBBox(1, 2, 4))
}
