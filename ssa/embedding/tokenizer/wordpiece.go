package tokenizer

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"unicode"

	"github.com/armon/go-radix"
)

const (
	continuationPrefix = "##"
	maxCharsPerWord    = 100
)

// WordPiece is a greedy longest-match-first WordPiece tokenizer over a vocab.txt.
// Word-initial pieces and "##" continuation pieces live in separate radix trees so
// each step is a single longest-prefix lookup.
type WordPiece struct {
	heads     *radix.Tree
	tails     *radix.Tree
	unkID     int64
	clsID     int64
	sepID     int64
	maxSeqLen int
	lowercase bool
}

// LoadWordPieceFromVocab reads one token per line; the line index is the token id.
func LoadWordPieceFromVocab(path string, cfg Config) (*WordPiece, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	wp := &WordPiece{
		heads:     radix.New(),
		tails:     radix.New(),
		unkID:     100,
		clsID:     101,
		sepID:     102,
		maxSeqLen: cfg.MaxSeqLen,
		lowercase: cfg.Lowercase,
	}

	var idx int64
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		tok := strings.TrimSpace(scanner.Text())
		if tok == "" {
			continue
		}
		switch tok {
		case unkToken:
			wp.unkID = idx
		case clsToken:
			wp.clsID = idx
		case sepToken:
			wp.sepID = idx
		}
		if rest, ok := strings.CutPrefix(tok, continuationPrefix); ok && rest != "" {
			wp.tails.Insert(rest, idx)
		} else {
			wp.heads.Insert(tok, idx)
		}
		idx++
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if idx == 0 {
		return nil, fmt.Errorf("%w: empty vocab %s", ErrUnsupported, path)
	}
	return wp, nil
}

// VocabSize returns the number of distinct pieces.
func (w *WordPiece) VocabSize() int { return w.heads.Len() + w.tails.Len() }

func (w *WordPiece) Encode(text string) (*Encoding, error) {
	ids := []int64{w.clsID}
	for _, word := range w.basicTokenize(text) {
		ids = append(ids, w.wordPieces(word)...)
	}
	if w.maxSeqLen > 0 && len(ids) > w.maxSeqLen-1 {
		ids = ids[:w.maxSeqLen-1]
	}
	ids = append(ids, w.sepID)

	mask := make([]int64, len(ids))
	for i := range mask {
		mask[i] = 1
	}
	return &Encoding{IDs: ids, AttentionMask: mask, TypeIDs: make([]int64, len(ids))}, nil
}

// basicTokenize splits on whitespace and isolates punctuation.
func (w *WordPiece) basicTokenize(text string) []string {
	if w.lowercase {
		text = strings.ToLower(text)
	}
	var words []string
	var cur strings.Builder
	flush := func() {
		if cur.Len() > 0 {
			words = append(words, cur.String())
			cur.Reset()
		}
	}
	for _, r := range text {
		switch {
		case unicode.IsSpace(r) || unicode.IsControl(r):
			flush()
		case unicode.IsPunct(r) || unicode.IsSymbol(r):
			flush()
			words = append(words, string(r))
		default:
			cur.WriteRune(r)
		}
	}
	flush()
	return words
}

func (w *WordPiece) wordPieces(word string) []int64 {
	if len([]rune(word)) > maxCharsPerWord {
		return []int64{w.unkID}
	}
	var pieces []int64
	rest := word
	tree := w.heads
	for rest != "" {
		match, id, ok := tree.LongestPrefix(rest)
		if !ok || match == "" {
			return []int64{w.unkID}
		}
		pieces = append(pieces, id.(int64))
		rest = rest[len(match):]
		tree = w.tails
	}
	return pieces
}
