// Package settings stores runtime-tunable chatbot configuration in the
// database with a read-through in-memory cache. The cache is only refreshed
// by explicit invalidation, so readers never pay a query per lookup.
package settings

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

// Well-known setting keys.
const (
	// KeySystemPrompt is the instruction text prepended to LLM answer
	// composition.
	KeySystemPrompt = "system_prompt"

	// KeyNoResultMessage is the canned reply when retrieval finds nothing.
	KeyNoResultMessage = "no_result_message"
)

// Defaults returned when a key has no stored value.
var defaults = map[string]string{
	KeySystemPrompt:    "You are a helpful assistant. Answer using only the provided context. If the context does not contain the answer, say so.",
	KeyNoResultMessage: "I could not find relevant information for your question. Please try rephrasing it or ask about another topic.",
}

// ErrUnknownKey is returned for keys with neither a stored value nor a
// default.
var ErrUnknownKey = errors.New("unknown setting key")

// Querier defines the database operations the store needs.
type Querier interface {
	GetSetting(ctx context.Context, key string) (string, bool, error)
	UpsertSetting(ctx context.Context, key, value string) error
}

// Store caches settings in memory. Safe for concurrent use.
type Store struct {
	queries Querier
	logger  *slog.Logger

	mu    sync.RWMutex
	cache map[string]string
}

// NewStore creates a settings store with an empty cache.
func NewStore(queries Querier, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		queries: queries,
		logger:  logger,
		cache:   make(map[string]string),
	}
}

// Get returns the value for key, consulting the cache first. A database miss
// falls back to the built-in default; a key without a default is an error.
func (s *Store) Get(ctx context.Context, key string) (string, error) {
	s.mu.RLock()
	value, ok := s.cache[key]
	s.mu.RUnlock()
	if ok {
		return value, nil
	}

	value, found, err := s.queries.GetSetting(ctx, key)
	if err != nil {
		return "", fmt.Errorf("loading setting %q: %w", key, err)
	}
	if !found {
		value, ok = defaults[key]
		if !ok {
			return "", fmt.Errorf("%w: %s", ErrUnknownKey, key)
		}
	}

	s.mu.Lock()
	s.cache[key] = value
	s.mu.Unlock()

	return value, nil
}

// Set writes the value to the database and refreshes the cache entry.
func (s *Store) Set(ctx context.Context, key, value string) error {
	if err := s.queries.UpsertSetting(ctx, key, value); err != nil {
		return fmt.Errorf("storing setting %q: %w", key, err)
	}

	s.mu.Lock()
	s.cache[key] = value
	s.mu.Unlock()

	s.logger.Info("setting updated", "key", key)
	return nil
}

// Invalidate drops one cached entry so the next Get reloads it.
func (s *Store) Invalidate(key string) {
	s.mu.Lock()
	delete(s.cache, key)
	s.mu.Unlock()
}

// InvalidateAll drops the whole cache.
func (s *Store) InvalidateAll() {
	s.mu.Lock()
	s.cache = make(map[string]string)
	s.mu.Unlock()
}
