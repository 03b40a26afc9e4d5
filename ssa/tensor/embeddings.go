package tensor

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// Embeddings is a batch × hidden block of sentence vectors.
type Embeddings struct {
	m      *mat.Dense
	device Device
}

// NewEmbeddings wraps m as embeddings resident on device.
func NewEmbeddings(m *mat.Dense, device Device) *Embeddings {
	return &Embeddings{m: m, device: device}
}

// Dims returns (batch, hidden).
func (e *Embeddings) Dims() (int, int) { return e.m.Dims() }

// Device returns where the embeddings reside.
func (e *Embeddings) Device() Device { return e.device }

// At returns element (i, j).
func (e *Embeddings) At(i, j int) float64 { return e.m.At(i, j) }

// Row returns a copy of row i.
func (e *Embeddings) Row(i int) []float64 {
	_, c := e.m.Dims()
	return mat.Row(make([]float64, c), i, e.m)
}

// Float32 returns a host copy of row i narrowed to float32.
func (e *Embeddings) Float32(i int) []float32 {
	row := e.Row(i)
	out := make([]float32, len(row))
	for j, v := range row {
		out[j] = float32(v)
	}
	return out
}

// IsFinite reports whether every element of row i is finite.
func (e *Embeddings) IsFinite(i int) bool {
	for _, v := range e.Row(i) {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}
