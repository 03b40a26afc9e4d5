package embedding

import (
	"context"
	"errors"
	"fmt"

	"github.com/ZanzyTHEbar/sentence-sim-analysis/ssa/tensor"
)

var (
	ErrGradTracking = errors.New("inference-only model called with gradient tracking enabled")
	ErrTrainingMode = errors.New("model is in training mode")
	ErrModelClosed  = errors.New("model is closed")
)

// Model maps a batch of token ids to per-token hidden states.
type Model interface {
	// To places the model's parameters on device.
	To(device tensor.Device) error
	// Eval switches the model to inference-only mode.
	Eval()
	Training() bool
	// HiddenSize is the width of each token vector, or 0 when only known after a forward pass.
	HiddenSize() int
	// Forward returns the final layer's hidden states for batch.
	Forward(ctx context.Context, batch *tensor.Batch) (*tensor.Hidden, error)
	Close() error
}

// checkInference enforces the preconditions shared by inference-only models.
func checkInference(ctx context.Context, m Model, device tensor.Device, batch *tensor.Batch) error {
	if tensor.GradEnabled(ctx) {
		return ErrGradTracking
	}
	if m.Training() {
		return ErrTrainingMode
	}
	if batch.Device() != device {
		return fmt.Errorf("%w: batch on %s, model on %s", tensor.ErrDeviceMismatch, batch.Device(), device)
	}
	return ctx.Err()
}
