//go:build !onnx
// +build !onnx

package embedding

import (
	"fmt"

	"github.com/rs/zerolog"
)

func loadONNXModel(path string, rt RuntimeOptions, logger zerolog.Logger) (Model, error) {
	return nil, fmt.Errorf("onnx backend not available: build with -tags onnx and provide a supported model")
}
