//go:build onnx

package onnx

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"unicode"
)

// Special token ids of the uncased BERT vocabulary.
const (
	tokenUnknown = 100
	tokenCLS     = 101
	tokenSEP     = 102
)

// wordPiece is a minimal uncased WordPiece tokenizer.
type wordPiece struct {
	vocab map[string]int
}

// loadWordPiece reads the vocabulary from a Hugging Face tokenizer.json.
func loadWordPiece(path string) (*wordPiece, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read tokenizer: %w", err)
	}
	var doc struct {
		Model struct {
			Vocab map[string]int `json:"vocab"`
		} `json:"model"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse tokenizer: %w", err)
	}
	if len(doc.Model.Vocab) == 0 {
		return nil, fmt.Errorf("tokenizer %s has an empty vocabulary", path)
	}
	return &wordPiece{vocab: doc.Model.Vocab}, nil
}

// encode returns [CLS] tokens... [SEP] truncated to maxLen ids.
func (w *wordPiece) encode(text string, maxLen int) []int64 {
	ids := []int64{tokenCLS}
	for _, word := range splitWords(text) {
		for _, piece := range w.pieces(word) {
			if len(ids) == maxLen-1 {
				return append(ids, tokenSEP)
			}
			ids = append(ids, piece)
		}
	}
	return append(ids, tokenSEP)
}

// pieces greedily matches the longest vocabulary prefix, marking
// continuations with "##".
func (w *wordPiece) pieces(word string) []int64 {
	if id, ok := w.vocab[word]; ok {
		return []int64{int64(id)}
	}
	var out []int64
	runes := []rune(word)
	for start := 0; start < len(runes); {
		end := len(runes)
		matched := false
		for ; end > start; end-- {
			sub := string(runes[start:end])
			if start > 0 {
				sub = "##" + sub
			}
			if id, ok := w.vocab[sub]; ok {
				out = append(out, int64(id))
				matched = true
				break
			}
		}
		if !matched {
			// The whole word is unknown once any piece fails.
			return []int64{tokenUnknown}
		}
		start = end
	}
	return out
}

// splitWords lowercases and separates punctuation into its own tokens.
func splitWords(text string) []string {
	var words []string
	var b strings.Builder
	flush := func() {
		if b.Len() > 0 {
			words = append(words, b.String())
			b.Reset()
		}
	}
	for _, r := range strings.ToLower(text) {
		switch {
		case unicode.IsSpace(r):
			flush()
		case unicode.IsPunct(r) || unicode.IsSymbol(r):
			flush()
			words = append(words, string(r))
		default:
			b.WriteRune(r)
		}
	}
	flush()
	return words
}
