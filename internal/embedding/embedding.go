// Package embedding defines the embedding provider abstraction and its
// implementations. A provider turns text into fixed-dimension float vectors
// suitable for similarity search.
package embedding

import (
	"context"
	"errors"
)

// Sentinel errors shared by all providers.
var (
	// ErrEmbeddingFailed wraps any upstream failure while producing vectors.
	ErrEmbeddingFailed = errors.New("embedding failed")

	// ErrEmptyInput is returned when a caller asks to embed nothing.
	ErrEmptyInput = errors.New("empty embedding input")
)

// Provider produces embedding vectors. Implementations must be safe for
// concurrent use and must return vectors of exactly Dimension() elements.
type Provider interface {
	// Embed returns the vector for a single text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch returns one vector per input text, in input order. The
	// call fails as a whole; partial results are never returned.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimension reports the length of produced vectors.
	Dimension() int

	// ModelName identifies the underlying model for logging and storage.
	ModelName() string
}
