package embedding

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"math/rand"
)

// DefaultDeterministicDimension matches the dimension of the production
// embedding model so the two are interchangeable in storage.
const DefaultDeterministicDimension = 768

// Deterministic derives vectors from a hash of the input text. The same text
// always maps to the same unit-length vector, which makes it useful for
// development and tests where no model is available.
type Deterministic struct {
	dimension int
}

// NewDeterministic creates a hash-based provider with the given dimension.
// A non-positive dimension falls back to DefaultDeterministicDimension.
func NewDeterministic(dimension int) *Deterministic {
	if dimension <= 0 {
		dimension = DefaultDeterministicDimension
	}
	return &Deterministic{dimension: dimension}
}

// Embed implements Provider.
func (d *Deterministic) Embed(_ context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, fmt.Errorf("%w: text is empty", ErrEmptyInput)
	}

	h := fnv.New64a()
	h.Write([]byte(text))
	rng := rand.New(rand.NewSource(int64(h.Sum64())))

	vec := make([]float32, d.dimension)
	var norm float64
	for i := range vec {
		v := rng.Float64()*2 - 1
		vec[i] = float32(v)
		norm += v * v
	}

	// Normalize to unit length so cosine similarity behaves like the real
	// model's output.
	if norm > 0 {
		inv := float32(1 / math.Sqrt(norm))
		for i := range vec {
			vec[i] *= inv
		}
	}

	return vec, nil
}

// EmbedBatch implements Provider.
func (d *Deterministic) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, fmt.Errorf("%w: no texts", ErrEmptyInput)
	}

	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		vec, err := d.Embed(ctx, text)
		if err != nil {
			return nil, fmt.Errorf("embed text %d: %w", i, err)
		}
		vectors[i] = vec
	}
	return vectors, nil
}

// Dimension implements Provider.
func (d *Deterministic) Dimension() int { return d.dimension }

// ModelName implements Provider.
func (d *Deterministic) ModelName() string { return "deterministic-hash" }
