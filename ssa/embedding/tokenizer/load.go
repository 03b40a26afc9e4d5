package tokenizer

import (
	"fmt"
	"path/filepath"
)

// Artifact file names looked up for a model.
const (
	TokenizerJSONFile = "tokenizer.json"
	VocabFile         = "vocab.txt"
)

// Load builds a tokenizer from a resolved artifact path. tokenizer.json files get the
// pretrained pipeline; vocab.txt files get the sugarme BERT WordPiece and fall back
// to the radix WordPiece when sugarme cannot build one.
func Load(path string, cfg Config) (Tokenizer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	switch filepath.Base(path) {
	case TokenizerJSONFile:
		return LoadPretrained(path, cfg)
	case VocabFile:
		swp, err := NewSugarWordPiece(path, cfg)
		if err == nil {
			return swp, nil
		}
		wp, werr := LoadWordPieceFromVocab(path, cfg)
		if werr != nil {
			return nil, fmt.Errorf("failed to initialize tokenizer: %v; fallback: %w", err, werr)
		}
		return wp, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupported, path)
	}
}
