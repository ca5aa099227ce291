// internal/perception/pipeline_test.go
package perception

import (
	"context"
	"errors"
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xkilldash9x/seeclaw/internal/config"
	"go.uber.org/zap/zaptest"
)

type fakeCapturer struct {
	img   *image.RGBA
	err   error
	block bool
}

func (c *fakeCapturer) Capture(ctx context.Context) (*image.RGBA, ScreenshotMeta, error) {
	if c.block {
		<-ctx.Done()
		return nil, ScreenshotMeta{}, ctx.Err()
	}
	if c.err != nil {
		return nil, ScreenshotMeta{}, c.err
	}
	b := c.img.Bounds()
	return c.img, ScreenshotMeta{ScaleFactor: 1, PhysicalWidth: b.Dx(), PhysicalHeight: b.Dy(), LogicalWidth: b.Dx(), LogicalHeight: b.Dy()}, nil
}

type brokenTree struct{}

func (brokenTree) Root(context.Context) (AccessibilityNode, error) { return nil, errors.New("com failure") }
func (brokenTree) FirstChild(AccessibilityNode) (AccessibilityNode, bool) {
	return nil, false
}
func (brokenTree) NextSibling(AccessibilityNode) (AccessibilityNode, bool) {
	return nil, false
}

func perceptionCfg() config.PerceptionConfig {
	return config.PerceptionConfig{
		GridSize:            12,
		EnableAccessibility: true,
		MergeIoU:            0.3,
		HierarchyEpsilon:    0.005,
		AccessibilityNMSIoU: 0.5,
	}
}

func TestPerceiveGridFallback(t *testing.T) {
	capt := &fakeCapturer{img: solid(1920, 1080, color.RGBA{200, 200, 200, 255})}
	p := NewPipeline(capt, nil, nil, perceptionCfg(), zaptest.NewLogger(t))

	snap, err := p.Perceive(context.Background(), PerceiveOptions{})
	require.NoError(t, err)
	assert.Equal(t, SourceGrid, snap.Source)
	assert.Equal(t, 12, snap.GridN)
	assert.Empty(t, snap.Elements)
	assert.Equal(t, "No UI elements detected.", snap.ElementList)
	assert.Equal(t, 1920, snap.Meta.PhysicalWidth)
	assert.NotEmpty(t, snap.Image)

	snap, err = p.Perceive(context.Background(), PerceiveOptions{GridSize: 99})
	require.NoError(t, err)
	assert.Equal(t, MaxGridSize, snap.GridN)
}

func TestPerceiveWithDetectionAndAccessibility(t *testing.T) {
	capt := &fakeCapturer{img: solid(640, 640, color.RGBA{})}
	model := &fakeModel{rows: [][]float32{{100}, {100}, {40}, {20}, {0.9}}}
	det := NewDetector(model, config.DetectorConfig{InputSize: 640, ConfThreshold: 0.25, IoUThreshold: 0.45}, zaptest.NewLogger(t))
	tree := NewStaticTree(&StaticNode{Bounds: image.Rect(0, 0, 640, 640), Children: []*StaticNode{
		{Bounds: image.Rect(80, 90, 120, 110), Label: "Save", Type: 50000},
		{Bounds: image.Rect(300, 300, 360, 330), Label: "Cancel", Type: 50000},
	}})

	p := NewPipeline(capt, det, tree, perceptionCfg(), zaptest.NewLogger(t))
	snap, err := p.Perceive(context.Background(), PerceiveOptions{})
	require.NoError(t, err)

	assert.Equal(t, SourceAnnotated, snap.Source)
	assert.Equal(t, 0, snap.GridN)
	require.Len(t, snap.Elements, 2)
	assert.Equal(t, "1", snap.Elements[0].ID)
	assert.Equal(t, "Save", snap.Elements[0].Content, "detection enriched with the accessible name")
	assert.Equal(t, ElementIcon, snap.Elements[0].NodeType)
	assert.Equal(t, "Cancel", snap.Elements[1].Content)
	assert.Contains(t, snap.ElementList, `[2] Button (90%) "Cancel"`)

	el, ok := snap.Element("2")
	require.True(t, ok)
	assert.Equal(t, image.Point{X: 330, Y: 315}, ElementToPhysical(el, snap.Meta))
}

func TestPerceiveAccessibilityFailureDegrades(t *testing.T) {
	capt := &fakeCapturer{img: solid(100, 100, color.RGBA{})}
	p := NewPipeline(capt, nil, brokenTree{}, perceptionCfg(), zaptest.NewLogger(t))
	snap, err := p.Perceive(context.Background(), PerceiveOptions{SkipAnnotation: true})
	require.NoError(t, err)
	assert.Equal(t, SourceGrid, snap.Source)
}

func TestPerceiveErrors(t *testing.T) {
	t.Run("capture failure", func(t *testing.T) {
		p := NewPipeline(&fakeCapturer{err: ErrCaptureFailed}, nil, nil, perceptionCfg(), zaptest.NewLogger(t))
		_, err := p.Perceive(context.Background(), PerceiveOptions{})
		assert.ErrorIs(t, err, ErrCaptureFailed)
	})

	t.Run("cancelled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		p := NewPipeline(&fakeCapturer{block: true}, nil, nil, perceptionCfg(), zaptest.NewLogger(t))
		_, err := p.Perceive(ctx, PerceiveOptions{})
		assert.ErrorIs(t, err, context.Canceled)
	})

	t.Run("detector failure", func(t *testing.T) {
		det := NewDetector(&fakeModel{err: errors.New("ort crashed")}, config.DetectorConfig{}, zaptest.NewLogger(t))
		p := NewPipeline(&fakeCapturer{img: solid(64, 64, color.RGBA{})}, det, nil, perceptionCfg(), zaptest.NewLogger(t))
		_, err := p.Perceive(context.Background(), PerceiveOptions{})
		assert.ErrorContains(t, err, "ort crashed")
	})
}
