// Package document manages the ingestion lifecycle of knowledge documents:
// storage, chunking, embedding, and vector indexing.
package document

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// Sentinel errors for document operations.
var (
	// ErrNotFound indicates the requested document does not exist.
	ErrNotFound = errors.New("document not found")

	// ErrValidation indicates invalid caller input.
	ErrValidation = errors.New("invalid document")

	// ErrProcessingFailed wraps failures during chunking, embedding, or
	// vector indexing. The document stays unprocessed when it occurs.
	ErrProcessingFailed = errors.New("document processing failed")
)

// Document is a knowledge source registered for retrieval. Content is the
// raw text; Processed reports whether its chunks are indexed in the vector
// store, and ChunkCount matches the number of stored chunk rows.
type Document struct {
	ID          uuid.UUID
	Title       string
	Content     string
	Description string
	Category    string
	Active      bool
	Processed   bool
	ChunkCount  int
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Chunk is one indexed piece of a document. VectorPointID links the row to
// its point in the vector store.
type Chunk struct {
	ID            uuid.UUID
	DocumentID    uuid.UUID
	ChunkIndex    int
	Content       string
	TokenCount    int
	VectorPointID uuid.UUID
	CreatedAt     time.Time
}

// InsertDocumentParams carries the fields for a new document row.
type InsertDocumentParams struct {
	Title       string
	Content     string
	Description string
	Category    string
	Active      bool
}

// UpdateDocumentParams carries the fields for a document update.
type UpdateDocumentParams struct {
	ID          uuid.UUID
	Title       string
	Content     string
	Description string
	Category    string
	Active      bool
}

// InsertChunkParams carries the fields for a new chunk row.
type InsertChunkParams struct {
	DocumentID    uuid.UUID
	ChunkIndex    int
	Content       string
	TokenCount    int
	VectorPointID uuid.UUID
}

// Querier defines the database operations the service needs. Interfaces are
// defined by the consumer so the service can run against the real queries,
// a transaction-scoped copy, or an in-memory implementation in tests.
type Querier interface {
	InsertDocument(ctx context.Context, arg InsertDocumentParams) (Document, error)
	GetDocument(ctx context.Context, id uuid.UUID) (Document, error)
	ListDocuments(ctx context.Context) ([]Document, error)
	ListActiveDocuments(ctx context.Context) ([]Document, error)
	UpdateDocument(ctx context.Context, arg UpdateDocumentParams) (Document, error)
	DeleteDocument(ctx context.Context, id uuid.UUID) error
	SetDocumentActive(ctx context.Context, id uuid.UUID, active bool) (Document, error)
	SetDocumentProcessed(ctx context.Context, id uuid.UUID, processed bool, chunkCount int) error

	InsertChunk(ctx context.Context, arg InsertChunkParams) (Chunk, error)
	ListChunks(ctx context.Context, documentID uuid.UUID) ([]Chunk, error)
	DeleteChunks(ctx context.Context, documentID uuid.UUID) error

	// WithTx returns a copy of the querier bound to the transaction.
	// Implementations without transactions return themselves.
	WithTx(tx pgx.Tx) Querier
}
