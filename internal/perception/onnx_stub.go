//go:build !onnx

// internal/perception/onnx_stub.go
package perception

import (
	"errors"

	"github.com/xkilldash9x/seeclaw/internal/config"
)

// ErrONNXUnavailable is returned when the binary was built without the onnx tag.
var ErrONNXUnavailable = errors.New("built without onnx support (rebuild with -tags onnx)")

func openONNXModel(config.DetectorConfig) (Model, error) {
	return nil, ErrONNXUnavailable
}
