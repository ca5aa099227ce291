// internal/perception/detector.go
package perception

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"io/fs"
	"math"
	"os"
	"sort"
	"sync"

	"github.com/xkilldash9x/seeclaw/internal/config"
	"go.uber.org/zap"
	xdraw "golang.org/x/image/draw"
)

const letterboxGrey = 114

// Model runs one forward pass of an object detection network. Input is a
// 1x3xSxS NCHW tensor; output is the raw [1, 4+C, N] prediction block.
type Model interface {
	Run(input []float32, size int) (output []float32, shape []int64, err error)
	Close() error
}

// Detector wraps a Model with YOLO letterboxing, decoding and NMS. The model
// handle is not safe for concurrent use, so inference is serialized.
type Detector struct {
	mu         sync.Mutex
	model      Model
	cfg        config.DetectorConfig
	classNames []string
	logger     *zap.Logger
}

type rawDetection struct {
	box        BBox
	confidence float64
	classID    int
}

type letterbox struct {
	scale        float64
	padX, padY   float64
	origW, origH int
}

// NewDetector builds a detector around an already opened model.
func NewDetector(model Model, cfg config.DetectorConfig, logger *zap.Logger) *Detector {
	if cfg.InputSize <= 0 {
		cfg.InputSize = 640
	}
	return &Detector{
		model:      model,
		cfg:        cfg,
		classNames: ClassNamesFor(cfg.ClassSet, cfg.ClassNames),
		logger:     logger.Named("detector"),
	}
}

// LoadDetector opens the configured model. A missing model file is not an
// error: detection is optional and the caller gets a nil detector.
func LoadDetector(cfg config.DetectorConfig, logger *zap.Logger) (*Detector, error) {
	if cfg.ModelPath == "" {
		return nil, nil
	}
	if _, err := os.Stat(cfg.ModelPath); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			logger.Warn("Detection model not found; element detection disabled.", zap.String("path", cfg.ModelPath))
			return nil, nil
		}
		return nil, fmt.Errorf("failed to stat detection model: %w", err)
	}

	model, err := openONNXModel(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to load detection model %s: %w", cfg.ModelPath, err)
	}
	logger.Info("Detection model loaded.", zap.String("path", cfg.ModelPath))
	return NewDetector(model, cfg, logger), nil
}

// Detect returns elements with ids like "btn_1" numbered per class.
func (d *Detector) Detect(img image.Image) ([]UIElement, error) {
	tensor, lb := d.preprocess(img)

	d.mu.Lock()
	output, shape, err := d.model.Run(tensor, d.cfg.InputSize)
	d.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("detector inference failed: %w", err)
	}

	raws, err := d.decode(output, shape, lb)
	if err != nil {
		return nil, err
	}
	kept := nmsByClass(raws, d.cfg.IoUThreshold)
	d.logger.Debug("Detection complete.", zap.Int("candidates", len(raws)), zap.Int("kept", len(kept)))
	return d.assignIDs(kept), nil
}

// Close releases the model.
func (d *Detector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.model.Close()
}

// preprocess letterboxes img onto a grey square and flattens it to NCHW in [0,1].
func (d *Detector) preprocess(img image.Image) ([]float32, letterbox) {
	sz := d.cfg.InputSize
	b := img.Bounds()
	ow, oh := float64(b.Dx()), float64(b.Dy())
	scale := math.Min(float64(sz)/ow, float64(sz)/oh)
	nw := int(math.Round(ow * scale))
	nh := int(math.Round(oh * scale))
	padX := float64(sz-nw) / 2
	padY := float64(sz-nh) / 2

	canvas := image.NewRGBA(image.Rect(0, 0, sz, sz))
	xdraw.Draw(canvas, canvas.Bounds(), image.NewUniform(color.RGBA{letterboxGrey, letterboxGrey, letterboxGrey, 255}), image.Point{}, xdraw.Src)
	ox, oy := int(math.Round(padX)), int(math.Round(padY))
	xdraw.CatmullRom.Scale(canvas, image.Rect(ox, oy, ox+nw, oy+nh), img, b, xdraw.Src, nil)

	plane := sz * sz
	tensor := make([]float32, 3*plane)
	for y := 0; y < sz; y++ {
		for x := 0; x < sz; x++ {
			i := canvas.PixOffset(x, y)
			p := y*sz + x
			tensor[p] = float32(canvas.Pix[i]) / 255
			tensor[plane+p] = float32(canvas.Pix[i+1]) / 255
			tensor[2*plane+p] = float32(canvas.Pix[i+2]) / 255
		}
	}
	return tensor, letterbox{scale: scale, padX: padX, padY: padY, origW: b.Dx(), origH: b.Dy()}
}

// decode reads the [1, 4+C, N] block, keeping the best class per proposal.
func (d *Detector) decode(output []float32, shape []int64, lb letterbox) ([]rawDetection, error) {
	if len(shape) < 3 || shape[1] < 5 {
		return nil, fmt.Errorf("unexpected detector output shape %v", shape)
	}
	rows, n := int(shape[1]), int(shape[2])
	if len(output) < rows*n {
		return nil, fmt.Errorf("detector output has %d values, shape %v needs %d", len(output), shape, rows*n)
	}
	numClasses := rows - 4
	at := func(row, i int) float64 { return float64(output[row*n+i]) }

	var dets []rawDetection
	for i := 0; i < n; i++ {
		best, bestClass := 0.0, 0
		for c := 0; c < numClasses; c++ {
			if s := at(4+c, i); s > best {
				best, bestClass = s, c
			}
		}
		if best < d.cfg.ConfThreshold {
			continue
		}
		cx, cy, w, h := at(0, i), at(1, i), at(2, i), at(3, i)
		unmapX := func(v float64) float64 { return clamp01((v - lb.padX) / lb.scale / float64(lb.origW)) }
		unmapY := func(v float64) float64 { return clamp01((v - lb.padY) / lb.scale / float64(lb.origH)) }
		dets = append(dets, rawDetection{
			box:        BBox{unmapX(cx - w/2), unmapY(cy - h/2), unmapX(cx + w/2), unmapY(cy + h/2)},
			confidence: best,
			classID:    bestClass,
		})
	}
	return dets, nil
}

// nmsByClass is greedy NMS within each class, highest confidence first. The
// survivors come back in confidence order.
func nmsByClass(dets []rawDetection, iouThreshold float64) []rawDetection {
	order := make([]int, len(dets))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool { return dets[order[a]].confidence > dets[order[b]].confidence })

	suppressed := make([]bool, len(dets))
	var keep []rawDetection
	for _, i := range order {
		if suppressed[i] {
			continue
		}
		keep = append(keep, dets[i])
		for _, j := range order {
			if j == i || suppressed[j] {
				continue
			}
			if dets[i].classID == dets[j].classID && IoU(dets[i].box, dets[j].box) > iouThreshold {
				suppressed[j] = true
			}
		}
	}
	return keep
}

func (d *Detector) assignIDs(raws []rawDetection) []UIElement {
	counters := make(map[int]int)
	elements := make([]UIElement, 0, len(raws))
	for _, r := range raws {
		counters[r.classID]++
		info := classify(d.classNames, r.classID)
		elements = append(elements, UIElement{
			ID:         fmt.Sprintf("%s_%d", info.prefix, counters[r.classID]),
			NodeType:   info.nodeType,
			BBox:       r.box,
			Confidence: r.confidence,
		})
	}
	return elements
}
