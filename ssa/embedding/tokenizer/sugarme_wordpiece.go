package tokenizer

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	tk "github.com/sugarme/tokenizer"
	"github.com/sugarme/tokenizer/model/wordpiece"
	"github.com/sugarme/tokenizer/normalizer"
	"github.com/sugarme/tokenizer/pretokenizer"
	"github.com/sugarme/tokenizer/processor"
)

// SugarWordPiece wraps sugarme/tokenizer WordPiece (BERT-style)
type SugarWordPiece struct {
	t *tk.Tokenizer
}

// NewSugarWordPiece loads vocab.txt and builds a BERT WordPiece tokenizer
func NewSugarWordPiece(vocabPath string, cfg Config) (*SugarWordPiece, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	fi, err := os.Stat(vocabPath)
	if err != nil {
		return nil, fmt.Errorf("stat vocab %s: %w", vocabPath, err)
	}
	if fi.IsDir() {
		return nil, fmt.Errorf("%w: vocab path %s is a directory", ErrUnsupported, vocabPath)
	}

	wp, err := wordpiece.NewWordPieceFromFile(vocabPath, unkToken)
	if err != nil {
		return nil, fmt.Errorf("build wordpiece from %s: %w", vocabPath, err)
	}

	t := tk.NewTokenizer(wp)

	// Basic normalizer and pre-tokenizer similar to BERT
	t.WithNormalizer(normalizer.NewBertNormalizer(true, true, true, cfg.Lowercase))
	t.WithPreTokenizer(pretokenizer.NewBertPreTokenizer())

	special, err := readSpecialIDs(vocabPath)
	if err != nil {
		return nil, err
	}

	// Post-processor to add special tokens with discovered ids
	template := processor.NewBertProcessing(
		processor.PostToken{Value: sepToken, Id: special[sepToken]},
		processor.PostToken{Value: clsToken, Id: special[clsToken]},
	)
	t.WithPostProcessor(template)
	t.WithTruncation(truncation(cfg))
	return &SugarWordPiece{t: t}, nil
}

func (s *SugarWordPiece) Encode(text string) (*Encoding, error) {
	return encodeWith(s.t, text)
}

const (
	unkToken = "[UNK]"
	clsToken = "[CLS]"
	sepToken = "[SEP]"
)

// readSpecialIDs discovers special token ids by line order in vocab.txt,
// defaulting to the bert-base-uncased ids.
func readSpecialIDs(vocabPath string) (map[string]int, error) {
	ids := map[string]int{unkToken: 100, clsToken: 101, sepToken: 102}

	f, err := os.Open(vocabPath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	idx := 0
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		token := strings.TrimSpace(scanner.Text())
		if token == "" {
			continue
		}
		if _, ok := ids[token]; ok {
			ids[token] = idx
		}
		idx++
	}
	return ids, scanner.Err()
}
