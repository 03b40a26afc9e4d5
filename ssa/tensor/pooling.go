package tensor

import (
	"fmt"
	"strings"

	"gonum.org/v1/gonum/mat"
)

// EmptyMaskPolicy controls rows whose attention mask has no set flag.
type EmptyMaskPolicy int

const (
	// EmptyMaskPropagate divides by the zero count, leaving NaN in the row.
	EmptyMaskPropagate EmptyMaskPolicy = iota
	// EmptyMaskZero returns a zero row.
	EmptyMaskZero
	// EmptyMaskError fails with ErrEmptyMask.
	EmptyMaskError
)

func (p EmptyMaskPolicy) String() string {
	switch p {
	case EmptyMaskZero:
		return "zero"
	case EmptyMaskError:
		return "error"
	default:
		return "nan"
	}
}

// ParseEmptyMaskPolicy maps config values to a policy.
func ParseEmptyMaskPolicy(s string) (EmptyMaskPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "nan", "propagate":
		return EmptyMaskPropagate, nil
	case "zero":
		return EmptyMaskZero, nil
	case "error":
		return EmptyMaskError, nil
	default:
		return EmptyMaskPropagate, fmt.Errorf("unknown empty mask policy %q: want nan, zero or error", s)
	}
}

// MeanPool averages token activations over the positions selected by mask.
//
// For every batch row the mask is expanded along the hidden dimension, multiplied
// into the activations and summed over the sequence; the expanded mask is summed
// the same way and the two sums are divided element-wise. The result lives on the
// device of hidden and is not normalised.
func MeanPool(hidden *Hidden, mask [][]int64, policy EmptyMaskPolicy) (*Embeddings, error) {
	batch, seq, dim := hidden.Shape()
	if len(mask) != batch {
		return nil, fmt.Errorf("%w: %d mask rows for batch of %d", ErrShapeMismatch, len(mask), batch)
	}
	for b, row := range mask {
		if len(row) != seq {
			return nil, fmt.Errorf("%w: mask row %d has length %d, sequence length is %d", ErrShapeMismatch, b, len(row), seq)
		}
	}

	out := mat.NewDense(batch, dim, nil)
	for b := 0; b < batch; b++ {
		sum, count := maskedSums(hidden.Row(b), mask[b], dim)

		// every entry of count holds the same token count
		if count.AtVec(0) == 0 {
			switch policy {
			case EmptyMaskZero:
				continue
			case EmptyMaskError:
				return nil, fmt.Errorf("%w: row %d", ErrEmptyMask, b)
			}
		}

		mean := mat.NewVecDense(dim, nil)
		mean.DivElemVec(sum, count)
		out.SetRow(b, mean.RawVector().Data)
	}

	return NewEmbeddings(out, hidden.Device()), nil
}

// MeanPoolBatch pools hidden with the attention mask of batch. Both must reside
// on the same device.
func MeanPoolBatch(hidden *Hidden, batch *Batch, policy EmptyMaskPolicy) (*Embeddings, error) {
	if hidden.Device() != batch.Device() {
		return nil, fmt.Errorf("%w: hidden on %s, mask on %s", ErrDeviceMismatch, hidden.Device(), batch.Device())
	}
	return MeanPool(hidden, batch.AttentionMask(), policy)
}

// maskedSums returns the masked activation sum and the expanded mask count for
// one seq × dim row.
func maskedSums(tokens *mat.Dense, mask []int64, dim int) (*mat.VecDense, *mat.VecDense) {
	sum := mat.NewVecDense(dim, nil)
	count := mat.NewVecDense(dim, nil)
	seq := len(mask)
	if seq == 0 || tokens == nil {
		return sum, count
	}

	expanded := mat.NewDense(seq, dim, nil)
	for s, flag := range mask {
		f := float64(flag)
		for j := 0; j < dim; j++ {
			expanded.Set(s, j, f)
		}
	}

	var masked mat.Dense
	masked.MulElem(tokens, expanded)

	ones := mat.NewVecDense(seq, nil)
	for s := 0; s < seq; s++ {
		ones.SetVec(s, 1)
	}

	sum.MulVec(masked.T(), ones)
	count.MulVec(expanded.T(), ones)
	return sum, count
}
