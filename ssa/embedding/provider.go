package embedding

import (
	"fmt"
	"strings"

	"github.com/rs/zerolog"
)

// Backend loads one kind of model.
type Backend interface {
	Name() string
	// AcceleratorAvailable reports whether models of this backend can run on tensor.Accelerated.
	AcceleratorAvailable() bool
	// ModelFiles lists candidate artifact names in preference order; empty means
	// the backend needs no model artifact.
	ModelFiles() []string
	// Load builds a model from the resolved artifact path.
	Load(path string) (Model, error)
}

// NewBackend selects a backend by name ("onnx", "hash").
func NewBackend(name string, hashDims int, rt RuntimeOptions, logger zerolog.Logger) (Backend, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "onnx", "":
		return &onnxBackend{rt: rt, logger: logger}, nil
	case "hash", "dev":
		return &hashBackend{dims: hashDims}, nil
	default:
		return nil, fmt.Errorf("unknown backend %q: want onnx or hash", name)
	}
}

type onnxBackend struct {
	rt     RuntimeOptions
	logger zerolog.Logger
}

func (b *onnxBackend) Name() string { return "onnx" }

func (b *onnxBackend) AcceleratorAvailable() bool { return onnxAcceleratorAvailable(b.rt) }

func (b *onnxBackend) ModelFiles() []string { return []string{"onnx/model.onnx", "model.onnx"} }

func (b *onnxBackend) Load(path string) (Model, error) { return loadONNXModel(path, b.rt, b.logger) }

type hashBackend struct{ dims int }

func (b *hashBackend) Name() string { return "hash" }

func (b *hashBackend) AcceleratorAvailable() bool { return false }

func (b *hashBackend) ModelFiles() []string { return nil }

func (b *hashBackend) Load(string) (Model, error) { return NewHashModel(b.dims), nil }
