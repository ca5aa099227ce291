// internal/perception/capture.go
package perception

import (
	"context"
	"fmt"
	"image"

	"github.com/kbinani/screenshot"
)

// Capturer grabs one frame of a display.
type Capturer interface {
	Capture(ctx context.Context) (*image.RGBA, ScreenshotMeta, error)
}

// ScreenCapturer captures a monitor through the platform screenshot API.
type ScreenCapturer struct {
	MonitorIndex int
}

func NewScreenCapturer(monitor int) *ScreenCapturer {
	return &ScreenCapturer{MonitorIndex: monitor}
}

func (s *ScreenCapturer) Capture(ctx context.Context) (*image.RGBA, ScreenshotMeta, error) {
	if err := ctx.Err(); err != nil {
		return nil, ScreenshotMeta{}, err
	}
	n := screenshot.NumActiveDisplays()
	if n == 0 {
		return nil, ScreenshotMeta{}, fmt.Errorf("%w: no active displays", ErrCaptureFailed)
	}
	idx := s.MonitorIndex
	if idx < 0 || idx >= n {
		idx = 0
	}

	bounds := screenshot.GetDisplayBounds(idx)
	img, err := screenshot.CaptureRect(bounds)
	if err != nil {
		return nil, ScreenshotMeta{}, fmt.Errorf("%w: %v", ErrCaptureFailed, err)
	}

	w, h := img.Bounds().Dx(), img.Bounds().Dy()
	meta := ScreenshotMeta{
		MonitorIndex:   idx,
		ScaleFactor:    float64(w) / float64(max(bounds.Dx(), 1)),
		PhysicalWidth:  w,
		PhysicalHeight: h,
		LogicalWidth:   bounds.Dx(),
		LogicalHeight:  bounds.Dy(),
	}
	return img, meta, nil
}

// Frame returns the raw pixel bytes of a capture, for stability checks.
func Frame(capturer Capturer) FrameSource {
	return func(ctx context.Context) ([]byte, error) {
		img, _, err := capturer.Capture(ctx)
		if err != nil {
			return nil, err
		}
		return img.Pix, nil
	}
}
