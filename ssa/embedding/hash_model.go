package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"fmt"

	"github.com/ZanzyTHEbar/sentence-sim-analysis/ssa/tensor"
)

// hashModel derives every token vector from a SHA-256 of its id. It has no
// weights, runs on CPU only and is deterministic, which makes it the development
// and test stand-in for real transformer backends.
type hashModel struct {
	dims     int
	device   tensor.Device
	training bool
	closed   bool
}

// NewHashModel returns a hash model emitting dims-wide token vectors.
func NewHashModel(dims int) Model {
	if dims <= 0 {
		dims = 384
	}
	return &hashModel{dims: dims, training: true}
}

func (h *hashModel) To(device tensor.Device) error {
	if device != tensor.CPU {
		return fmt.Errorf("hash model on %s: %w", device, tensor.ErrAcceleratorUnavailable)
	}
	h.device = device
	return nil
}

func (h *hashModel) Eval() { h.training = false }

func (h *hashModel) Training() bool { return h.training }

func (h *hashModel) HiddenSize() int { return h.dims }

func (h *hashModel) Forward(ctx context.Context, batch *tensor.Batch) (*tensor.Hidden, error) {
	if h.closed {
		return nil, ErrModelClosed
	}
	if err := checkInference(ctx, h, h.device, batch); err != nil {
		return nil, err
	}

	n, seq := batch.Shape()
	out := make([]float32, n*seq*h.dims)
	for i, id := range batch.FlatInputIDs() {
		h.tokenVector(id, out[i*h.dims:(i+1)*h.dims])
	}
	return tensor.NewHidden(n, seq, h.dims, out, h.device)
}

func (h *hashModel) tokenVector(id int64, vec []float32) {
	var buf [16]byte
	binary.LittleEndian.PutUint64(buf[:8], uint64(id))
	var sum [sha256.Size]byte
	for j := range vec {
		if j%sha256.Size == 0 {
			// fresh digest per block keeps wide vectors from repeating
			binary.LittleEndian.PutUint64(buf[8:], uint64(j/sha256.Size))
			sum = sha256.Sum256(buf[:])
		}
		vec[j] = (float32(int(sum[j%sha256.Size])) - 128.0) / 128.0
	}
}

func (h *hashModel) Close() error {
	h.closed = true
	return nil
}
