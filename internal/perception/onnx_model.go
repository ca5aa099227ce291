//go:build onnx

// internal/perception/onnx_model.go
package perception

import (
	"fmt"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
	"github.com/xkilldash9x/seeclaw/internal/config"
)

var ortInit struct {
	once sync.Once
	err  error
}

// onnxModel holds one ONNX Runtime session with pre-bound input/output tensors.
type onnxModel struct {
	session *ort.AdvancedSession
	input   *ort.Tensor[float32]
	output  *ort.Tensor[float32]
	shape   []int64
	size    int
}

func openONNXModel(cfg config.DetectorConfig) (Model, error) {
	ortInit.once.Do(func() {
		if cfg.ONNXLibrary != "" {
			ort.SetSharedLibraryPath(cfg.ONNXLibrary)
		}
		ortInit.err = ort.InitializeEnvironment()
	})
	if ortInit.err != nil {
		return nil, fmt.Errorf("failed to initialize onnxruntime: %w", ortInit.err)
	}

	inputs, outputs, err := ort.GetInputOutputInfo(cfg.ModelPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read model io info: %w", err)
	}
	if len(inputs) == 0 || len(outputs) == 0 {
		return nil, fmt.Errorf("model declares no inputs or outputs")
	}

	outShape := make([]int64, len(outputs[0].Dimensions))
	for i, dim := range outputs[0].Dimensions {
		if dim <= 0 {
			return nil, fmt.Errorf("model output %q has dynamic shape %v", outputs[0].Name, outputs[0].Dimensions)
		}
		outShape[i] = dim
	}

	size := cfg.InputSize
	in, err := ort.NewEmptyTensor[float32](ort.NewShape(1, 3, int64(size), int64(size)))
	if err != nil {
		return nil, fmt.Errorf("failed to allocate input tensor: %w", err)
	}
	out, err := ort.NewEmptyTensor[float32](ort.NewShape(outShape...))
	if err != nil {
		in.Destroy()
		return nil, fmt.Errorf("failed to allocate output tensor: %w", err)
	}

	session, err := ort.NewAdvancedSession(cfg.ModelPath,
		[]string{inputs[0].Name}, []string{outputs[0].Name},
		[]ort.Value{in}, []ort.Value{out}, nil)
	if err != nil {
		in.Destroy()
		out.Destroy()
		return nil, fmt.Errorf("failed to create onnx session: %w", err)
	}
	return &onnxModel{session: session, input: in, output: out, shape: outShape, size: size}, nil
}

func (m *onnxModel) Run(input []float32, size int) ([]float32, []int64, error) {
	if size != m.size {
		return nil, nil, fmt.Errorf("input size %d does not match model input %d", size, m.size)
	}
	copy(m.input.GetData(), input)
	if err := m.session.Run(); err != nil {
		return nil, nil, err
	}
	data := m.output.GetData()
	result := make([]float32, len(data))
	copy(result, data)
	return result, m.shape, nil
}

func (m *onnxModel) Close() error {
	err := m.session.Destroy()
	m.input.Destroy()
	m.output.Destroy()
	return err
}
