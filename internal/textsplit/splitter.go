package textsplit

import (
	"errors"
	"fmt"
	"strings"
)

// Default chunking budgets used by document ingestion.
const (
	// DefaultTargetTokens is the approximate token budget per chunk.
	DefaultTargetTokens = 3000

	// DefaultOverlapTokens is the approximate token overlap carried from one
	// chunk into the next (10% of the default target).
	DefaultOverlapTokens = 300
)

// overlapTolerance is the accepted overshoot factor for the overlap tail
// before a corrective shift is applied.
const overlapTolerance = 1.2

// ErrInvalidBudget indicates the splitter was configured with a non-positive
// target or an overlap that does not fit under it.
var ErrInvalidBudget = errors.New("invalid token budget")

// Splitter splits text into overlapping chunks bounded by an approximate
// token budget. The zero value is not useful; use NewSplitter.
//
// Splitter is stateless after construction and safe for concurrent use.
type Splitter struct {
	targetTokens  int
	overlapTokens int
}

// Option configures a Splitter.
type Option func(*Splitter)

// WithTargetTokens sets the approximate token budget per chunk.
func WithTargetTokens(n int) Option {
	return func(s *Splitter) {
		s.targetTokens = n
	}
}

// WithOverlapTokens sets the approximate token overlap between consecutive
// chunks. Zero disables overlap.
func WithOverlapTokens(n int) Option {
	return func(s *Splitter) {
		s.overlapTokens = n
	}
}

// NewSplitter creates a Splitter with the given options, validating the
// budgets. Defaults: DefaultTargetTokens / DefaultOverlapTokens.
func NewSplitter(opts ...Option) (*Splitter, error) {
	s := &Splitter{
		targetTokens:  DefaultTargetTokens,
		overlapTokens: DefaultOverlapTokens,
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.targetTokens <= 0 {
		return nil, fmt.Errorf("%w: target tokens must be positive, got %d", ErrInvalidBudget, s.targetTokens)
	}
	if s.overlapTokens < 0 {
		return nil, fmt.Errorf("%w: overlap tokens must not be negative, got %d", ErrInvalidBudget, s.overlapTokens)
	}
	if s.overlapTokens >= s.targetTokens {
		return nil, fmt.Errorf("%w: overlap (%d) must be smaller than target (%d)", ErrInvalidBudget, s.overlapTokens, s.targetTokens)
	}

	return s, nil
}

// TargetTokens returns the configured per-chunk token budget.
func (s *Splitter) TargetTokens() int { return s.targetTokens }

// OverlapTokens returns the configured overlap budget.
func (s *Splitter) OverlapTokens() int { return s.overlapTokens }

// Split breaks text into an ordered sequence of chunks.
//
// Paragraphs (blank-line separated) are accumulated until adding one would
// exceed the target token budget; the buffer is then flushed and the next
// chunk is seeded with an overlap tail of the previous one. A single
// paragraph that alone exceeds the budget is further split at sentence
// boundaries and accumulated the same way.
//
// Deterministic: identical input and budgets always produce the identical
// sequence. Empty or whitespace-only input returns nil; no produced chunk is
// ever empty.
func (s *Splitter) Split(text string) []string {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	var chunks []string
	var buf strings.Builder
	bufTokens := 0

	// flush appends the trimmed buffer as a chunk and reseeds the buffer
	// with the overlap tail. Returns without effect on a whitespace buffer.
	flush := func(separator string) {
		chunk := strings.TrimSpace(buf.String())
		buf.Reset()
		bufTokens = 0
		if chunk == "" {
			return
		}
		chunks = append(chunks, chunk)

		if tail := s.overlapTail(chunk); tail != "" {
			buf.WriteString(tail)
			buf.WriteString(separator)
			bufTokens = Estimate(tail)
		}
	}

	for _, para := range splitParagraphs(text) {
		paraTokens := Estimate(para)

		if paraTokens > s.targetTokens {
			// Paragraph alone busts the budget: fall back to sentences.
			for _, sentence := range splitSentences(para) {
				sentTokens := Estimate(sentence)
				if bufTokens+sentTokens > s.targetTokens && buf.Len() > 0 {
					flush(" ")
				}
				buf.WriteString(sentence)
				buf.WriteString(" ")
				bufTokens += sentTokens
			}
			continue
		}

		if bufTokens+paraTokens > s.targetTokens && buf.Len() > 0 {
			flush("\n\n")
		}
		buf.WriteString(para)
		buf.WriteString("\n\n")
		bufTokens += paraTokens
	}

	if chunk := strings.TrimSpace(buf.String()); chunk != "" {
		chunks = append(chunks, chunk)
	}

	return chunks
}

// overlapTail extracts roughly overlapTokens worth of text from the end of a
// completed chunk. The offset is a proportional character estimate with at
// most one corrective shift (~2 chars per token); exactness is not required,
// only "roughly the configured overlap".
func (s *Splitter) overlapTail(chunk string) string {
	if s.overlapTokens <= 0 {
		return ""
	}

	total := Estimate(chunk)
	if total <= s.overlapTokens {
		return chunk
	}

	runes := []rune(chunk)
	start := int(float64(len(runes)) * (1 - float64(s.overlapTokens)/float64(total)))
	start = clamp(start, 0, len(runes)-1)

	got := Estimate(string(runes[start:]))
	switch {
	case got < s.overlapTokens:
		start -= (s.overlapTokens - got) * 2
	case float64(got) > overlapTolerance*float64(s.overlapTokens):
		start += (got - s.overlapTokens) * 2
	}
	start = clamp(start, 0, len(runes)-1)

	return string(runes[start:])
}

// splitParagraphs splits text on blank-line boundaries, dropping empty
// segments. A paragraph may span multiple physical lines.
func splitParagraphs(text string) []string {
	var paragraphs []string
	var cur []string

	for _, line := range strings.Split(text, "\n") {
		if strings.TrimSpace(line) == "" {
			if len(cur) > 0 {
				paragraphs = append(paragraphs, strings.Join(cur, "\n"))
				cur = nil
			}
			continue
		}
		cur = append(cur, line)
	}
	if len(cur) > 0 {
		paragraphs = append(paragraphs, strings.Join(cur, "\n"))
	}

	return paragraphs
}

// sentenceTerminators end a sentence; a terminator may be followed by
// whitespace that belongs to no sentence.
const sentenceTerminators = ".!?。！？"

// splitSentences splits a paragraph at sentence boundaries. Text after the
// last terminator becomes a final sentence. Never returns empty sentences.
func splitSentences(text string) []string {
	var sentences []string
	var cur []rune

	for _, r := range text {
		cur = append(cur, r)
		if strings.ContainsRune(sentenceTerminators, r) {
			if sentence := strings.TrimSpace(string(cur)); sentence != "" {
				sentences = append(sentences, sentence)
			}
			cur = cur[:0]
		}
	}
	if sentence := strings.TrimSpace(string(cur)); sentence != "" {
		sentences = append(sentences, sentence)
	}

	return sentences
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
