// Package memstore provides in-memory implementations of the database
// querier interfaces. It backs unit tests and the memory storage mode, where
// the server runs without Postgres.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"ragserver/internal/document"
)

// DocumentStore implements document.Querier in memory.
type DocumentStore struct {
	mu     sync.RWMutex
	docs   map[uuid.UUID]document.Document
	chunks map[uuid.UUID][]document.Chunk // keyed by document id
}

// NewDocumentStore creates an empty store.
func NewDocumentStore() *DocumentStore {
	return &DocumentStore{
		docs:   make(map[uuid.UUID]document.Document),
		chunks: make(map[uuid.UUID][]document.Chunk),
	}
}

// InsertDocument implements document.Querier.
func (s *DocumentStore) InsertDocument(_ context.Context, arg document.InsertDocumentParams) (document.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	doc := document.Document{
		ID:          uuid.New(),
		Title:       arg.Title,
		Content:     arg.Content,
		Description: arg.Description,
		Category:    arg.Category,
		Active:      arg.Active,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	s.docs[doc.ID] = doc
	return doc, nil
}

// GetDocument implements document.Querier.
func (s *DocumentStore) GetDocument(_ context.Context, id uuid.UUID) (document.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	doc, ok := s.docs[id]
	if !ok {
		return document.Document{}, fmt.Errorf("%w: %s", document.ErrNotFound, id)
	}
	return doc, nil
}

// ListDocuments implements document.Querier.
func (s *DocumentStore) ListDocuments(_ context.Context) ([]document.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.listLocked(func(document.Document) bool { return true }), nil
}

// ListActiveDocuments implements document.Querier.
func (s *DocumentStore) ListActiveDocuments(_ context.Context) ([]document.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.listLocked(func(d document.Document) bool { return d.Active }), nil
}

func (s *DocumentStore) listLocked(keep func(document.Document) bool) []document.Document {
	docs := make([]document.Document, 0, len(s.docs))
	for _, doc := range s.docs {
		if keep(doc) {
			docs = append(docs, doc)
		}
	}
	sort.Slice(docs, func(i, j int) bool {
		if !docs[i].CreatedAt.Equal(docs[j].CreatedAt) {
			return docs[i].CreatedAt.Before(docs[j].CreatedAt)
		}
		return docs[i].ID.String() < docs[j].ID.String()
	})
	return docs
}

// UpdateDocument implements document.Querier.
func (s *DocumentStore) UpdateDocument(_ context.Context, arg document.UpdateDocumentParams) (document.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, ok := s.docs[arg.ID]
	if !ok {
		return document.Document{}, fmt.Errorf("%w: %s", document.ErrNotFound, arg.ID)
	}

	doc.Title = arg.Title
	doc.Content = arg.Content
	doc.Description = arg.Description
	doc.Category = arg.Category
	doc.Active = arg.Active
	doc.UpdatedAt = time.Now()
	s.docs[arg.ID] = doc
	return doc, nil
}

// DeleteDocument implements document.Querier. Chunks cascade.
func (s *DocumentStore) DeleteDocument(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.docs[id]; !ok {
		return fmt.Errorf("%w: %s", document.ErrNotFound, id)
	}
	delete(s.docs, id)
	delete(s.chunks, id)
	return nil
}

// SetDocumentActive implements document.Querier.
func (s *DocumentStore) SetDocumentActive(_ context.Context, id uuid.UUID, active bool) (document.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, ok := s.docs[id]
	if !ok {
		return document.Document{}, fmt.Errorf("%w: %s", document.ErrNotFound, id)
	}
	doc.Active = active
	doc.UpdatedAt = time.Now()
	s.docs[id] = doc
	return doc, nil
}

// SetDocumentProcessed implements document.Querier.
func (s *DocumentStore) SetDocumentProcessed(_ context.Context, id uuid.UUID, processed bool, chunkCount int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, ok := s.docs[id]
	if !ok {
		return fmt.Errorf("%w: %s", document.ErrNotFound, id)
	}
	doc.Processed = processed
	doc.ChunkCount = chunkCount
	doc.UpdatedAt = time.Now()
	s.docs[id] = doc
	return nil
}

// InsertChunk implements document.Querier.
func (s *DocumentStore) InsertChunk(_ context.Context, arg document.InsertChunkParams) (document.Chunk, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.docs[arg.DocumentID]; !ok {
		return document.Chunk{}, fmt.Errorf("%w: %s", document.ErrNotFound, arg.DocumentID)
	}

	chunk := document.Chunk{
		ID:            uuid.New(),
		DocumentID:    arg.DocumentID,
		ChunkIndex:    arg.ChunkIndex,
		Content:       arg.Content,
		TokenCount:    arg.TokenCount,
		VectorPointID: arg.VectorPointID,
		CreatedAt:     time.Now(),
	}
	s.chunks[arg.DocumentID] = append(s.chunks[arg.DocumentID], chunk)
	return chunk, nil
}

// ListChunks implements document.Querier.
func (s *DocumentStore) ListChunks(_ context.Context, documentID uuid.UUID) ([]document.Chunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	chunks := append([]document.Chunk(nil), s.chunks[documentID]...)
	sort.Slice(chunks, func(i, j int) bool { return chunks[i].ChunkIndex < chunks[j].ChunkIndex })
	return chunks, nil
}

// DeleteChunks implements document.Querier.
func (s *DocumentStore) DeleteChunks(_ context.Context, documentID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.chunks, documentID)
	return nil
}

// WithTx implements document.Querier. The memory store has no transactions.
func (s *DocumentStore) WithTx(pgx.Tx) document.Querier { return s }
