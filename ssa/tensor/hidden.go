package tensor

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// Hidden is a batch × seq × hidden block of per-token activations.
type Hidden struct {
	batch, seq, hidden int
	data               []float32
	device             Device
}

// NewHidden wraps row-major data of the given shape. data is not copied.
func NewHidden(batch, seq, hidden int, data []float32, device Device) (*Hidden, error) {
	if batch <= 0 || seq < 0 || hidden <= 0 {
		return nil, fmt.Errorf("%w: invalid hidden shape [%d %d %d]", ErrShapeMismatch, batch, seq, hidden)
	}
	if len(data) != batch*seq*hidden {
		return nil, fmt.Errorf("%w: %d values for shape [%d %d %d]", ErrShapeMismatch, len(data), batch, seq, hidden)
	}
	return &Hidden{batch: batch, seq: seq, hidden: hidden, data: data, device: device}, nil
}

// Shape returns (batch, seq, hidden).
func (h *Hidden) Shape() (int, int, int) { return h.batch, h.seq, h.hidden }

// Device returns where the activations reside.
func (h *Hidden) Device() Device { return h.device }

// At returns the activation at batch row b, position s, unit j.
func (h *Hidden) At(b, s, j int) float32 {
	return h.data[(b*h.seq+s)*h.hidden+j]
}

// Row returns batch row b as a seq × hidden matrix. Returns nil when seq is zero.
func (h *Hidden) Row(b int) *mat.Dense {
	if h.seq == 0 {
		return nil
	}
	start := b * h.seq * h.hidden
	vals := make([]float64, h.seq*h.hidden)
	for i, v := range h.data[start : start+h.seq*h.hidden] {
		vals[i] = float64(v)
	}
	return mat.NewDense(h.seq, h.hidden, vals)
}
