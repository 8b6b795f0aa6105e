package document

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"ragserver/internal/embedding"
	"ragserver/internal/textsplit"
	"ragserver/internal/vectorstore"
)

// Service orchestrates document ingestion: chunking, embedding, and keeping
// the relational rows and vector points in sync.
//
// Service is safe for concurrent use. Processing is serialized per document
// so two concurrent reprocess calls for the same document cannot interleave
// their delete and upsert phases.
type Service struct {
	queries    Querier
	pool       *pgxpool.Pool // nil in tests; disables transactions
	vectors    vectorstore.Store
	embedder   embedding.Provider
	splitter   *textsplit.Splitter
	collection string
	logger     *slog.Logger

	mu    sync.Mutex
	locks map[uuid.UUID]*sync.Mutex
}

// NewService creates a document service. pool may be nil, in which case
// relational writes run without a surrounding transaction (used with the
// in-memory querier).
func NewService(queries Querier, pool *pgxpool.Pool, vectors vectorstore.Store, embedder embedding.Provider, splitter *textsplit.Splitter, collection string, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}

	return &Service{
		queries:    queries,
		pool:       pool,
		vectors:    vectors,
		embedder:   embedder,
		splitter:   splitter,
		collection: collection,
		logger:     logger,
		locks:      make(map[uuid.UUID]*sync.Mutex),
	}
}

// EnsureCollection makes sure the backing vector collection exists with the
// embedder's dimension. Called once at startup.
func (s *Service) EnsureCollection(ctx context.Context) error {
	if err := s.vectors.CreateCollectionIfNotExists(ctx, s.collection, s.embedder.Dimension()); err != nil {
		return fmt.Errorf("ensuring collection %q: %w", s.collection, err)
	}
	return nil
}

// Collection returns the vector collection name the service indexes into.
func (s *Service) Collection() string { return s.collection }

// lockDocument returns the mutex serializing work on one document. Locks are
// retained for the lifetime of the process; the map grows with the number of
// distinct documents touched, which is bounded by the corpus size.
func (s *Service) lockDocument(id uuid.UUID) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()

	lock, ok := s.locks[id]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[id] = lock
	}
	return lock
}

// Create validates and stores a new document, then indexes it. The document
// row survives an indexing failure and stays unprocessed for a later retry.
func (s *Service) Create(ctx context.Context, arg InsertDocumentParams) (Document, error) {
	if strings.TrimSpace(arg.Title) == "" {
		return Document{}, fmt.Errorf("%w: title is required", ErrValidation)
	}
	if strings.TrimSpace(arg.Content) == "" {
		return Document{}, fmt.Errorf("%w: content is required", ErrValidation)
	}

	doc, err := s.queries.InsertDocument(ctx, arg)
	if err != nil {
		return Document{}, fmt.Errorf("inserting document: %w", err)
	}

	s.logger.Info("document created", "id", doc.ID, "title", doc.Title)

	if err := s.Process(ctx, doc.ID); err != nil {
		s.logger.Error("initial processing failed", "id", doc.ID, "error", err)
		return doc, err
	}
	return s.queries.GetDocument(ctx, doc.ID)
}

// Get returns a single document.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (Document, error) {
	return s.queries.GetDocument(ctx, id)
}

// List returns all documents.
func (s *Service) List(ctx context.Context) ([]Document, error) {
	return s.queries.ListDocuments(ctx)
}

// ListActive returns documents marked active.
func (s *Service) ListActive(ctx context.Context) ([]Document, error) {
	return s.queries.ListActiveDocuments(ctx)
}

// Chunks returns the stored chunks of a document in index order.
func (s *Service) Chunks(ctx context.Context, id uuid.UUID) ([]Chunk, error) {
	if _, err := s.queries.GetDocument(ctx, id); err != nil {
		return nil, err
	}
	return s.queries.ListChunks(ctx, id)
}

// Update replaces a document's fields and reindexes its content.
func (s *Service) Update(ctx context.Context, arg UpdateDocumentParams) (Document, error) {
	if strings.TrimSpace(arg.Title) == "" {
		return Document{}, fmt.Errorf("%w: title is required", ErrValidation)
	}
	if strings.TrimSpace(arg.Content) == "" {
		return Document{}, fmt.Errorf("%w: content is required", ErrValidation)
	}

	doc, err := s.queries.UpdateDocument(ctx, arg)
	if err != nil {
		return Document{}, fmt.Errorf("updating document: %w", err)
	}

	if err := s.Process(ctx, doc.ID); err != nil {
		return doc, err
	}
	return s.queries.GetDocument(ctx, doc.ID)
}

// SetActive toggles a document's retrieval eligibility. Deactivating removes
// the document's points and chunk rows so it can never surface in search;
// reactivating reindexes the content from scratch.
func (s *Service) SetActive(ctx context.Context, id uuid.UUID, active bool) (Document, error) {
	doc, err := s.queries.SetDocumentActive(ctx, id, active)
	if err != nil {
		return Document{}, err
	}
	s.logger.Info("document active flag changed", "id", id, "active", active)

	if err := s.Process(ctx, id); err != nil {
		return doc, err
	}
	return s.queries.GetDocument(ctx, id)
}

// Delete removes a document, its chunks, and its vector points.
func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	lock := s.lockDocument(id)
	lock.Lock()
	defer lock.Unlock()

	chunks, err := s.queries.ListChunks(ctx, id)
	if err != nil {
		return fmt.Errorf("listing chunks: %w", err)
	}

	if len(chunks) > 0 {
		if err := s.vectors.DeletePoints(ctx, s.collection, chunkPointIDs(chunks)); err != nil {
			return fmt.Errorf("deleting vector points: %w", err)
		}
	}

	// Chunk rows go with the document via ON DELETE CASCADE.
	if err := s.queries.DeleteDocument(ctx, id); err != nil {
		return fmt.Errorf("deleting document: %w", err)
	}

	s.logger.Info("document deleted", "id", id, "chunks", len(chunks))
	return nil
}

// Process reindexes one document: old chunks and points are removed, the
// content is split and embedded, and fresh chunks and points are written.
// The relational writes run in one transaction; the document is only marked
// processed when everything succeeded. Inactive documents are not indexed:
// Process strips any existing chunks and points and leaves them unprocessed.
func (s *Service) Process(ctx context.Context, id uuid.UUID) error {
	lock := s.lockDocument(id)
	lock.Lock()
	defer lock.Unlock()

	doc, err := s.queries.GetDocument(ctx, id)
	if err != nil {
		return err
	}

	oldChunks, err := s.queries.ListChunks(ctx, id)
	if err != nil {
		return fmt.Errorf("listing old chunks: %w", err)
	}

	// Unprocessed until proven otherwise, so a failure below is visible.
	if doc.Processed {
		if err := s.queries.SetDocumentProcessed(ctx, id, false, len(oldChunks)); err != nil {
			return fmt.Errorf("marking document unprocessed: %w", err)
		}
	}

	if len(oldChunks) > 0 {
		if err := s.vectors.DeletePoints(ctx, s.collection, chunkPointIDs(oldChunks)); err != nil {
			return fmt.Errorf("%w: deleting old points: %w", ErrProcessingFailed, err)
		}
	}

	if !doc.Active {
		err := s.inTx(ctx, func(q Querier) error {
			if err := q.DeleteChunks(ctx, id); err != nil {
				return fmt.Errorf("deleting chunks: %w", err)
			}
			return q.SetDocumentProcessed(ctx, id, false, 0)
		})
		if err != nil {
			return fmt.Errorf("%w: removing inactive document index: %w", ErrProcessingFailed, err)
		}
		s.logger.Info("document inactive, index removed", "id", id, "chunks", len(oldChunks))
		return nil
	}

	pieces := s.splitter.Split(doc.Content)
	if len(pieces) == 0 {
		return fmt.Errorf("%w: document has no indexable content", ErrProcessingFailed)
	}

	vectors, err := s.embedder.EmbedBatch(ctx, pieces)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrProcessingFailed, err)
	}

	pointIDs := make([]uuid.UUID, len(pieces))
	contents := make([]string, len(pieces))
	metadata := make([]map[string]string, len(pieces))
	for i, piece := range pieces {
		pointIDs[i] = uuid.New()
		contents[i] = piece
		metadata[i] = map[string]string{
			"documentId": doc.ID.String(),
			"title":      doc.Title,
			"category":   doc.Category,
			"chunkIndex": fmt.Sprint(i),
		}
	}

	if err := s.vectors.UpsertPoints(ctx, s.collection, pointIDs, vectors, contents, metadata); err != nil {
		return fmt.Errorf("%w: upserting points: %w", ErrProcessingFailed, err)
	}

	err = s.inTx(ctx, func(q Querier) error {
		if err := q.DeleteChunks(ctx, id); err != nil {
			return fmt.Errorf("deleting old chunks: %w", err)
		}
		for i, piece := range pieces {
			_, err := q.InsertChunk(ctx, InsertChunkParams{
				DocumentID:    id,
				ChunkIndex:    i,
				Content:       piece,
				TokenCount:    textsplit.Estimate(piece),
				VectorPointID: pointIDs[i],
			})
			if err != nil {
				return fmt.Errorf("inserting chunk %d: %w", i, err)
			}
		}
		return q.SetDocumentProcessed(ctx, id, true, len(pieces))
	})
	if err != nil {
		// Roll back the vector writes so a retry starts clean.
		if delErr := s.vectors.DeletePoints(ctx, s.collection, pointIDs); delErr != nil {
			s.logger.Error("cleanup of orphaned points failed", "id", id, "error", delErr)
		}
		return fmt.Errorf("%w: %w", ErrProcessingFailed, err)
	}

	s.logger.Info("document processed", "id", id, "chunks", len(pieces))
	return nil
}

// inTx runs fn inside a transaction when a pool is configured, otherwise
// directly against the base querier.
func (s *Service) inTx(ctx context.Context, fn func(q Querier) error) error {
	if s.pool == nil {
		return fn(s.queries)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(s.queries.WithTx(tx)); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func chunkPointIDs(chunks []Chunk) []uuid.UUID {
	ids := make([]uuid.UUID, len(chunks))
	for i, c := range chunks {
		ids[i] = c.VectorPointID
	}
	return ids
}
