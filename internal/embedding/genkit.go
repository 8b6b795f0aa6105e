package embedding

import (
	"context"
	"fmt"

	"github.com/firebase/genkit/go/ai"
)

// GenkitEmbedderDimension is the output dimension of the Gemini embedding
// models this adapter is used with.
const GenkitEmbedderDimension = 768

// GenkitAdapter wraps an ai.Embedder so Gemini (or any other Genkit plugin
// model) satisfies Provider.
type GenkitAdapter struct {
	embedder  ai.Embedder
	model     string
	dimension int
}

// NewGenkitAdapter creates the adapter. A non-positive dimension falls back
// to GenkitEmbedderDimension.
func NewGenkitAdapter(embedder ai.Embedder, model string, dimension int) *GenkitAdapter {
	if dimension <= 0 {
		dimension = GenkitEmbedderDimension
	}
	return &GenkitAdapter{embedder: embedder, model: model, dimension: dimension}
}

// Embed implements Provider.
func (g *GenkitAdapter) Embed(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, fmt.Errorf("%w: text is empty", ErrEmptyInput)
	}

	vectors, err := g.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedBatch implements Provider.
func (g *GenkitAdapter) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, fmt.Errorf("%w: no texts", ErrEmptyInput)
	}

	docs := make([]*ai.Document, len(texts))
	for i, text := range texts {
		docs[i] = &ai.Document{Content: []*ai.Part{ai.NewTextPart(text)}}
	}

	resp, err := g.embedder.Embed(ctx, &ai.EmbedRequest{Input: docs})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEmbeddingFailed, err)
	}
	if len(resp.Embeddings) != len(texts) {
		return nil, fmt.Errorf("%w: got %d embeddings for %d texts", ErrEmbeddingFailed, len(resp.Embeddings), len(texts))
	}

	vectors := make([][]float32, len(texts))
	for i, emb := range resp.Embeddings {
		if len(emb.Embedding) == 0 {
			return nil, fmt.Errorf("%w: empty embedding at index %d", ErrEmbeddingFailed, i)
		}
		vectors[i] = emb.Embedding
	}
	return vectors, nil
}

// Dimension implements Provider.
func (g *GenkitAdapter) Dimension() int { return g.dimension }

// ModelName implements Provider.
func (g *GenkitAdapter) ModelName() string { return g.model }
