// Package textsplit turns raw document text into token-bounded, overlapping
// chunks suitable for embedding and vector search.
//
// Token counts are estimated with a cheap script-ratio heuristic rather than a
// real tokenizer: dense scripts (CJK, Hangul) average roughly two characters
// per token, while space-delimited scripts average roughly four. The chunking
// contract only needs approximate budget adherence, so the heuristic keeps the
// splitter free of model dependencies.
package textsplit

import (
	"strings"
	"unicode"
)

// denseScripts are the Unicode ranges counted as "dense" for token
// estimation: scripts where a single character carries roughly half a token.
var denseScripts = []*unicode.RangeTable{
	unicode.Han,
	unicode.Hangul,
	unicode.Hiragana,
	unicode.Katakana,
}

// Estimate returns an approximate token count for text.
// It is pure and deterministic; empty input returns 0.
//
// Heuristic:
//   - mostly dense script (ratio > 0.5): ~2 chars per token
//   - mostly space-delimited (ratio < 0.1): one token per word, minimum 1
//   - mixed: dense chars at ~2 chars/token plus the rest at ~4 chars/token
func Estimate(text string) int {
	if text == "" {
		return 0
	}

	var dense, total int
	for _, r := range text {
		total++
		if isDense(r) {
			dense++
		}
	}

	ratio := float64(dense) / float64(total)

	switch {
	case ratio > 0.5:
		return total / 2

	case ratio < 0.1:
		words := len(strings.Fields(text))
		if words < 1 {
			words = 1
		}
		return words

	default:
		other := (total - dense) / 4
		if other < 1 {
			other = 1
		}
		return dense/2 + other
	}
}

func isDense(r rune) bool {
	// Fast path: ASCII is never dense, and dominates most inputs.
	if r < 0x2E80 {
		return false
	}
	for _, table := range denseScripts {
		if unicode.Is(table, r) {
			return true
		}
	}
	return false
}
