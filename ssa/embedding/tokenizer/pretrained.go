package tokenizer

import (
	"fmt"

	tk "github.com/sugarme/tokenizer"
	"github.com/sugarme/tokenizer/pretrained"
)

// Pretrained wraps a sugarme tokenizer built from a HuggingFace tokenizer.json,
// so text is normalised and split exactly as the model was trained.
type Pretrained struct {
	t *tk.Tokenizer
}

// LoadPretrained builds a tokenizer from tokenizer.json at path.
// Truncation stored in the file is replaced by cfg, so MaxSeqLen 0 encodes the
// whole text.
func LoadPretrained(path string, cfg Config) (*Pretrained, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	t, err := pretrained.FromFile(path)
	if err != nil {
		return nil, fmt.Errorf("load tokenizer.json %s: %w", path, err)
	}
	t.WithTruncation(truncation(cfg))
	return &Pretrained{t: t}, nil
}

// truncation maps cfg to sugarme parameters for single-sequence input. The
// default LongestFirst strategy dereferences the missing pair encoding, so
// OnlyFirst is required.
func truncation(cfg Config) *tk.TruncationParams {
	if cfg.MaxSeqLen <= 0 {
		return nil
	}
	return &tk.TruncationParams{MaxLength: cfg.MaxSeqLen, Strategy: tk.OnlyFirst}
}

func (p *Pretrained) Encode(text string) (*Encoding, error) {
	return encodeWith(p.t, text)
}

func encodeWith(t *tk.Tokenizer, text string) (*Encoding, error) {
	enc, err := t.Encode(tk.NewSingleEncodeInput(tk.NewInputSequence(text)), true)
	if err != nil {
		return nil, err
	}
	return FromInts(enc.GetIds(), enc.GetAttentionMask(), enc.TypeIds), nil
}
