// internal/perception/pipeline.go
package perception

import (
	"context"
	"fmt"
	"image"

	"github.com/xkilldash9x/seeclaw/internal/config"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Snapshot is the result of one perception cycle.
type Snapshot struct {
	// Image is the PNG shown to the model: annotated boxes, a grid, or the raw frame.
	Image       []byte
	Raw         *image.RGBA
	Elements    []UIElement
	ElementList string
	Meta        ScreenshotMeta
	// GridN is the overlay resolution, or 0 when targets came from detection.
	GridN  int
	Source Source
}

// Element looks up a target by id.
func (s *Snapshot) Element(id string) (UIElement, bool) {
	for _, el := range s.Elements {
		if el.ID == id {
			return el, true
		}
	}
	return UIElement{}, false
}

// PerceiveOptions tunes a single cycle.
type PerceiveOptions struct {
	// SkipAnnotation returns the raw frame instead of a drawn-on copy.
	SkipAnnotation bool
	// GridSize overrides the configured fallback grid resolution.
	GridSize int
}

// Perceiver is the contract the agent depends on.
type Perceiver interface {
	Perceive(ctx context.Context, opts PerceiveOptions) (*Snapshot, error)
	Capturer() Capturer
}

// Pipeline turns a screen capture into addressable targets.
type Pipeline struct {
	capturer Capturer
	detector *Detector
	tree     AccessibilityTree
	cfg      config.PerceptionConfig
	logger   *zap.Logger
}

var _ Perceiver = (*Pipeline)(nil)

// NewPipeline builds a pipeline. detector and tree may both be nil.
func NewPipeline(capturer Capturer, detector *Detector, tree AccessibilityTree, cfg config.PerceptionConfig, logger *zap.Logger) *Pipeline {
	return &Pipeline{
		capturer: capturer,
		detector: detector,
		tree:     tree,
		cfg:      cfg,
		logger:   logger.Named("perception"),
	}
}

func (p *Pipeline) Capturer() Capturer { return p.capturer }

type captured struct {
	img  *image.RGBA
	meta ScreenshotMeta
}

// onWorker runs fn on its own goroutine and returns early if ctx ends first.
func onWorker[T any](ctx context.Context, fn func() (T, error)) (T, error) {
	type result struct {
		v   T
		err error
	}
	ch := make(chan result, 1)
	go func() {
		v, err := fn()
		ch <- result{v, err}
	}()
	select {
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	case r := <-ch:
		return r.v, r.err
	}
}

// Perceive captures the screen, detects and merges targets, and renders the
// image for the model. With no targets a labeled grid is overlaid instead.
func (p *Pipeline) Perceive(ctx context.Context, opts PerceiveOptions) (*Snapshot, error) {
	shot, err := onWorker(ctx, func() (captured, error) {
		img, meta, err := p.capturer.Capture(ctx)
		return captured{img, meta}, err
	})
	if err != nil {
		return nil, fmt.Errorf("capture: %w", err)
	}

	var detected, accessible []UIElement
	g, gctx := errgroup.WithContext(ctx)
	if p.detector != nil {
		g.Go(func() error {
			els, err := onWorker(gctx, func() ([]UIElement, error) { return p.detector.Detect(shot.img) })
			if err != nil {
				return err
			}
			detected = els
			return nil
		})
	}
	if p.cfg.EnableAccessibility && p.tree != nil {
		g.Go(func() error {
			els, err := CollectAccessibility(gctx, p.tree, shot.meta, p.cfg)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				p.logger.Warn("Accessibility collection failed; continuing without it.", zap.Error(err))
				return nil
			}
			accessible = els
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("element detection: %w", err)
	}

	merged := MergeDetections(detected, accessible, p.cfg.MergeIoU)
	elements := BuildHierarchy(merged, p.cfg.HierarchyEpsilon)

	snap := &Snapshot{
		Raw:         shot.img,
		Elements:    elements,
		ElementList: ElementList(elements),
		Meta:        shot.meta,
	}

	var rendered image.Image = shot.img
	if len(elements) > 0 {
		snap.Source = SourceAnnotated
		if len(detected) == 0 {
			snap.Source = SourceAccessibility
		}
		if !opts.SkipAnnotation {
			rendered = Annotate(shot.img, elements)
		}
	} else {
		n := opts.GridSize
		if n == 0 {
			n = p.cfg.GridSize
		}
		snap.GridN = ClampGridSize(n)
		snap.Source = SourceGrid
		if !opts.SkipAnnotation {
			rendered = DrawGrid(shot.img, snap.GridN)
		}
	}

	snap.Image, err = EncodePNG(rendered)
	if err != nil {
		return nil, err
	}
	p.logger.Debug("Perception cycle complete.",
		zap.Int("elements", len(elements)),
		zap.Int("grid_n", snap.GridN),
		zap.String("source", string(snap.Source)))
	return snap, nil
}
