// Package retrieval turns a natural language query into scored document
// chunks by embedding the query and searching the vector store.
package retrieval

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"ragserver/internal/embedding"
	"ragserver/internal/vectorstore"
)

// Search defaults applied when the caller passes non-positive values.
const (
	DefaultTopK     = 3
	DefaultMinScore = 0.5
)

// ErrEmptyQuery is returned for blank queries.
var ErrEmptyQuery = errors.New("empty query")

// Service performs similarity search over one vector collection.
type Service struct {
	embedder   embedding.Provider
	vectors    vectorstore.Store
	collection string
	logger     *slog.Logger
}

// NewService creates a retrieval service bound to a collection.
func NewService(embedder embedding.Provider, vectors vectorstore.Store, collection string, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		embedder:   embedder,
		vectors:    vectors,
		collection: collection,
		logger:     logger,
	}
}

// Search embeds query and returns the most similar chunks, best first.
// topK <= 0 falls back to DefaultTopK; minScore <= 0 falls back to
// DefaultMinScore. An empty result is not an error.
func (s *Service) Search(ctx context.Context, query string, topK int, minScore float32) ([]vectorstore.SearchResult, error) {
	if strings.TrimSpace(query) == "" {
		return nil, ErrEmptyQuery
	}
	if topK <= 0 {
		topK = DefaultTopK
	}
	if minScore <= 0 {
		minScore = DefaultMinScore
	}

	vector, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}

	results, err := s.vectors.Search(ctx, s.collection, vector, topK, minScore)
	if err != nil {
		return nil, fmt.Errorf("searching collection %q: %w", s.collection, err)
	}

	s.logger.Debug("retrieval search",
		"query_len", len(query), "top_k", topK, "min_score", minScore, "results", len(results))
	return results, nil
}
