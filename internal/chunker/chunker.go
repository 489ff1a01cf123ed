// Package chunker splits document text into overlapping fragments sized for
// embedding and LLM context windows.
//
// Sentences are found by splitting on ". " after collapsing newlines to
// spaces. This is a heuristic, not a tokenizer: abbreviations, decimal
// numbers and non-English punctuation are split incorrectly.
package chunker

import (
	"strings"
	"unicode/utf8"

	"docrag/internal/domain"
)

const (
	DefaultSize    = 1000
	DefaultOverlap = 200
)

// Chunker accumulates sentences into fragments of roughly Size characters.
// Size and Overlap count runes, not bytes.
// Size is a soft target: a single sentence longer than Size is emitted whole.
// Overlap should be smaller than Size; larger values are not rejected.
type Chunker struct {
	Size    int
	Overlap int
}

func New(size, overlap int) *Chunker {
	if size <= 0 {
		size = DefaultSize
	}
	if overlap < 0 {
		overlap = DefaultOverlap
	}
	return &Chunker{Size: size, Overlap: overlap}
}

// Chunk splits text into fragments attributed to source. Empty or
// whitespace-only text yields no fragments.
func (c *Chunker) Chunk(text, source string) []domain.Fragment {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	sentences := strings.Split(strings.ReplaceAll(text, "\n", " "), ". ")

	var (
		fragments []domain.Fragment
		buf       string
	)
	emit := func(s string) {
		idx := len(fragments)
		fragments = append(fragments, domain.Fragment{
			ID:     domain.FragmentID(source, idx),
			Source: source,
			Text:   strings.TrimSpace(s),
			Index:  idx,
		})
	}

	for _, sentence := range sentences {
		if utf8.RuneCountInString(buf)+utf8.RuneCountInString(sentence) > c.Size && buf != "" {
			emit(buf)
			buf = tail(buf, c.Overlap) + " " + sentence
			continue
		}
		buf += " " + sentence
	}
	if strings.TrimSpace(buf) != "" {
		emit(buf)
	}
	return fragments
}

// tail returns the last n runes of s, or s when it has no more than n.
func tail(s string, n int) string {
	if n <= 0 {
		return ""
	}
	start := len(s)
	for i := 0; i < n && start > 0; i++ {
		_, size := utf8.DecodeLastRuneInString(s[:start])
		start -= size
	}
	return s[start:]
}
