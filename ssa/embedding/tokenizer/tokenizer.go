package tokenizer

import (
	"fmt"
)

// Tokenizer converts raw text to model-ready token IDs and attention masks
type Tokenizer interface {
	Encode(text string) (*Encoding, error)
}

// Encoding is the tokenized form of a single input. All slices have equal length.
type Encoding struct {
	IDs           []int64
	AttentionMask []int64
	TypeIDs       []int64
}

// Len returns the sequence length.
func (e *Encoding) Len() int { return len(e.IDs) }

// Config holds basic tokenizer settings
type Config struct {
	// MaxSeqLen truncates encodings, special tokens included, when > 0.
	MaxSeqLen int
	// Lowercase applies to vocab-based tokenizers only.
	Lowercase bool
}

// MinSeqLen is the smallest truncation length: [CLS], one token and [SEP].
const MinSeqLen = 3

var (
	// ErrUnsupported indicates the tokenizer could not be initialized
	ErrUnsupported = fmt.Errorf("unsupported tokenizer configuration")
	// ErrInvalidMaxSeqLen rejects truncation lengths that leave no room for text.
	ErrInvalidMaxSeqLen = fmt.Errorf("invalid max sequence length")
)

// Validate checks that MaxSeqLen is 0 (no truncation) or at least MinSeqLen.
func (c Config) Validate() error {
	if c.MaxSeqLen != 0 && c.MaxSeqLen < MinSeqLen {
		return fmt.Errorf("%w: %d, want 0 or >= %d", ErrInvalidMaxSeqLen, c.MaxSeqLen, MinSeqLen)
	}
	return nil
}

// FromInts converts the int slices produced by sugarme encodings, filling a
// missing mask with ones and missing type ids with zeros.
func FromInts(ids, mask, typeIDs []int) *Encoding {
	enc := &Encoding{
		IDs:           make([]int64, len(ids)),
		AttentionMask: make([]int64, len(ids)),
		TypeIDs:       make([]int64, len(ids)),
	}
	for i, id := range ids {
		enc.IDs[i] = int64(id)
		if i < len(mask) {
			enc.AttentionMask[i] = int64(mask[i])
		} else {
			enc.AttentionMask[i] = 1
		}
		if i < len(typeIDs) {
			enc.TypeIDs[i] = int64(typeIDs[i])
		}
	}
	return enc
}
