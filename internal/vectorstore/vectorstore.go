// Package vectorstore provides vector collection storage and similarity
// search. Two implementations exist: an in-memory store for development and
// tests, and a Postgres store backed by the pgvector extension.
package vectorstore

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

// Sentinel errors shared by all implementations.
var (
	// ErrStoreUnavailable wraps backend failures (connection loss, query
	// errors). Callers treat it as retryable.
	ErrStoreUnavailable = errors.New("vector store unavailable")

	// ErrCollectionNotFound is returned when an operation targets a
	// collection that does not exist.
	ErrCollectionNotFound = errors.New("collection not found")

	// ErrLengthMismatch is returned by UpsertPoints when the parallel input
	// slices disagree in length.
	ErrLengthMismatch = errors.New("mismatched point slice lengths")

	// ErrDimensionMismatch is returned when a vector does not match the
	// collection's configured dimension.
	ErrDimensionMismatch = errors.New("vector dimension mismatch")
)

// SearchResult is one scored hit from a similarity search. Score is cosine
// similarity in [0, 1], higher is more similar.
type SearchResult struct {
	PointID  uuid.UUID
	Score    float32
	Content  string
	Metadata map[string]string
}

// Store is the vector storage abstraction. All operations are scoped to a
// named collection. Implementations must be safe for concurrent use.
type Store interface {
	// CreateCollectionIfNotExists ensures a collection with the given
	// vector dimension exists. Creating an existing collection is a no-op.
	CreateCollectionIfNotExists(ctx context.Context, collection string, dimension int) error

	// CollectionExists reports whether the collection exists.
	CollectionExists(ctx context.Context, collection string) (bool, error)

	// DeleteCollection removes a collection and all of its points.
	// Deleting a missing collection is not an error.
	DeleteCollection(ctx context.Context, collection string) error

	// UpsertPoints inserts or replaces points. The four slices are
	// parallel; a length mismatch fails the whole call with
	// ErrLengthMismatch before any write.
	UpsertPoints(ctx context.Context, collection string, ids []uuid.UUID, vectors [][]float32, contents []string, metadata []map[string]string) error

	// Search returns up to topK points most similar to the query vector,
	// ordered by descending score, excluding scores below minScore.
	Search(ctx context.Context, collection string, vector []float32, topK int, minScore float32) ([]SearchResult, error)

	// DeletePoints removes the given points. IDs that do not exist are
	// ignored.
	DeletePoints(ctx context.Context, collection string, ids []uuid.UUID) error

	// CountPoints returns the number of points in the collection.
	CountPoints(ctx context.Context, collection string) (int64, error)
}
