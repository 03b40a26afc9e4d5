package tensor

import "fmt"

// Batch holds tokenized model inputs, batch × seq, on one device.
type Batch struct {
	inputIDs      [][]int64
	attentionMask [][]int64
	tokenTypeIDs  [][]int64
	seqLen        int
	device        Device
}

// NewBatch validates that every row of ids, mask and typeIDs has the same length
// and returns a CPU-resident batch. typeIDs may be nil, in which case zeros are used.
func NewBatch(ids, mask, typeIDs [][]int64) (*Batch, error) {
	if len(ids) == 0 {
		return nil, fmt.Errorf("%w: empty batch", ErrShapeMismatch)
	}
	if len(mask) != len(ids) {
		return nil, fmt.Errorf("%w: %d id rows, %d mask rows", ErrShapeMismatch, len(ids), len(mask))
	}
	if typeIDs == nil {
		typeIDs = make([][]int64, len(ids))
		for i := range ids {
			typeIDs[i] = make([]int64, len(ids[i]))
		}
	}
	if len(typeIDs) != len(ids) {
		return nil, fmt.Errorf("%w: %d id rows, %d type rows", ErrShapeMismatch, len(ids), len(typeIDs))
	}

	seq := len(ids[0])
	for i := range ids {
		if len(ids[i]) != seq || len(mask[i]) != seq || len(typeIDs[i]) != seq {
			return nil, fmt.Errorf("%w: row %d has lengths ids=%d mask=%d types=%d, want %d",
				ErrShapeMismatch, i, len(ids[i]), len(mask[i]), len(typeIDs[i]), seq)
		}
	}

	return &Batch{
		inputIDs:      copyRows(ids),
		attentionMask: copyRows(mask),
		tokenTypeIDs:  copyRows(typeIDs),
		seqLen:        seq,
		device:        CPU,
	}, nil
}

// Shape returns (batch, seq).
func (b *Batch) Shape() (int, int) { return len(b.inputIDs), b.seqLen }

// Device returns where the batch resides.
func (b *Batch) Device() Device { return b.device }

// To returns the batch placed on device. The receiver is left unchanged.
func (b *Batch) To(device Device) *Batch {
	if b.device == device {
		return b
	}
	out := *b
	out.device = device
	return &out
}

// AttentionMask returns the batch × seq mask rows.
func (b *Batch) AttentionMask() [][]int64 { return b.attentionMask }

// Tokens returns the number of positions whose mask flag is set, summed over all rows.
func (b *Batch) Tokens() int {
	n := 0
	for _, row := range b.attentionMask {
		for _, f := range row {
			if f != 0 {
				n++
			}
		}
	}
	return n
}

// FlatInputIDs returns the ids in row-major order.
func (b *Batch) FlatInputIDs() []int64 { return flatten(b.inputIDs, b.seqLen) }

// FlatAttentionMask returns the mask in row-major order.
func (b *Batch) FlatAttentionMask() []int64 { return flatten(b.attentionMask, b.seqLen) }

// FlatTokenTypeIDs returns the token type ids in row-major order.
func (b *Batch) FlatTokenTypeIDs() []int64 { return flatten(b.tokenTypeIDs, b.seqLen) }

func flatten(rows [][]int64, seq int) []int64 {
	out := make([]int64, len(rows)*seq)
	for i, row := range rows {
		copy(out[i*seq:(i+1)*seq], row)
	}
	return out
}

func copyRows(rows [][]int64) [][]int64 {
	out := make([][]int64, len(rows))
	for i, row := range rows {
		out[i] = append([]int64(nil), row...)
	}
	return out
}
