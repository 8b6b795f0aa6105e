package document_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"ragserver/internal/document"
	"ragserver/internal/embedding"
	"ragserver/internal/memstore"
	"ragserver/internal/testutil"
	"ragserver/internal/textsplit"
	"ragserver/internal/vectorstore"
)

const testCollection = "test_chunks"

type serviceDeps struct {
	service *document.Service
	queries *memstore.DocumentStore
	vectors *vectorstore.Memory
}

func newTestService(t *testing.T, provider embedding.Provider) serviceDeps {
	t.Helper()

	if provider == nil {
		provider = embedding.NewDeterministic(32)
	}

	splitter, err := textsplit.NewSplitter(
		textsplit.WithTargetTokens(20),
		textsplit.WithOverlapTokens(4))
	if err != nil {
		t.Fatal(err)
	}

	queries := memstore.NewDocumentStore()
	vectors := vectorstore.NewMemory()
	service := document.NewService(queries, nil, vectors, provider, splitter, testCollection, testutil.Logger())

	if err := service.EnsureCollection(context.Background()); err != nil {
		t.Fatalf("EnsureCollection() error: %v", err)
	}

	return serviceDeps{service: service, queries: queries, vectors: vectors}
}

const testContent = `Docker is a platform for developing shipping and running applications in containers.

Containers are lightweight and contain everything needed to run the application.

Images are immutable templates that containers are started from at runtime.`

func TestServiceCreate(t *testing.T) {
	deps := newTestService(t, nil)
	ctx := context.Background()

	doc, err := deps.service.Create(ctx, document.InsertDocumentParams{
		Title:    "Docker Basics",
		Content:  testContent,
		Category: "infrastructure",
		Active:   true,
	})
	if err != nil {
		t.Fatalf("Create() error: %v", err)
	}

	if !doc.Processed {
		t.Error("document not marked processed after Create")
	}

	chunks, err := deps.service.Chunks(ctx, doc.ID)
	if err != nil {
		t.Fatalf("Chunks() error: %v", err)
	}
	if len(chunks) == 0 {
		t.Fatal("no chunks created")
	}
	if doc.ChunkCount != len(chunks) {
		t.Errorf("ChunkCount = %d, want %d stored chunks", doc.ChunkCount, len(chunks))
	}
	for i, c := range chunks {
		if c.ChunkIndex != i {
			t.Errorf("chunk %d has index %d", i, c.ChunkIndex)
		}
		if c.TokenCount <= 0 {
			t.Errorf("chunk %d has token count %d", i, c.TokenCount)
		}
	}

	count, err := deps.vectors.CountPoints(ctx, testCollection)
	if err != nil {
		t.Fatal(err)
	}
	if count != int64(len(chunks)) {
		t.Errorf("vector store holds %d points, want %d", count, len(chunks))
	}
}

func TestServiceCreateValidation(t *testing.T) {
	deps := newTestService(t, nil)
	ctx := context.Background()

	tests := []struct {
		name string
		arg  document.InsertDocumentParams
	}{
		{"missing title", document.InsertDocumentParams{Content: "text", Active: true}},
		{"missing content", document.InsertDocumentParams{Title: "t", Active: true}},
		{"whitespace content", document.InsertDocumentParams{Title: "t", Content: "   \n", Active: true}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := deps.service.Create(ctx, tt.arg)
			if !errors.Is(err, document.ErrValidation) {
				t.Errorf("Create() error = %v, want ErrValidation", err)
			}
		})
	}
}

func TestServiceReprocessIdempotent(t *testing.T) {
	deps := newTestService(t, nil)
	ctx := context.Background()

	doc, err := deps.service.Create(ctx, document.InsertDocumentParams{
		Title: "Docker", Content: testContent, Active: true,
	})
	if err != nil {
		t.Fatal(err)
	}

	chunksBefore, err := deps.service.Chunks(ctx, doc.ID)
	if err != nil {
		t.Fatal(err)
	}

	for i := 0; i < 3; i++ {
		if err := deps.service.Process(ctx, doc.ID); err != nil {
			t.Fatalf("Process() round %d error: %v", i, err)
		}
	}

	chunksAfter, err := deps.service.Chunks(ctx, doc.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(chunksAfter) != len(chunksBefore) {
		t.Errorf("chunk count changed across reprocessing: %d -> %d", len(chunksBefore), len(chunksAfter))
	}

	// No orphaned points may accumulate.
	count, err := deps.vectors.CountPoints(ctx, testCollection)
	if err != nil {
		t.Fatal(err)
	}
	if count != int64(len(chunksAfter)) {
		t.Errorf("vector store holds %d points, want %d", count, len(chunksAfter))
	}
}

type failingEmbedder struct {
	embedding.Provider
	fail atomic.Bool
}

func (f *failingEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if f.fail.Load() {
		return nil, embedding.ErrEmbeddingFailed
	}
	return f.Provider.EmbedBatch(ctx, texts)
}

func TestServiceProcessFailureLeavesUnprocessed(t *testing.T) {
	embedder := &failingEmbedder{Provider: embedding.NewDeterministic(32)}
	deps := newTestService(t, embedder)
	ctx := context.Background()

	doc, err := deps.service.Create(ctx, document.InsertDocumentParams{
		Title: "Docker", Content: testContent, Active: true,
	})
	if err != nil {
		t.Fatal(err)
	}

	embedder.fail.Store(true)
	err = deps.service.Process(ctx, doc.ID)
	if !errors.Is(err, document.ErrProcessingFailed) {
		t.Fatalf("Process() error = %v, want ErrProcessingFailed", err)
	}

	got, err := deps.service.Get(ctx, doc.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Processed {
		t.Error("document still marked processed after failed reprocessing")
	}

	// Recovery: the next successful run marks it processed again.
	embedder.fail.Store(false)
	if err := deps.service.Process(ctx, doc.ID); err != nil {
		t.Fatalf("Process() after recovery error: %v", err)
	}
	got, err = deps.service.Get(ctx, doc.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !got.Processed {
		t.Error("document not marked processed after recovery")
	}
}

func TestServiceUpdateReindexes(t *testing.T) {
	deps := newTestService(t, nil)
	ctx := context.Background()

	doc, err := deps.service.Create(ctx, document.InsertDocumentParams{
		Title: "Docker", Content: testContent, Active: true,
	})
	if err != nil {
		t.Fatal(err)
	}

	updated, err := deps.service.Update(ctx, document.UpdateDocumentParams{
		ID:       doc.ID,
		Title:    "Docker Updated",
		Content:  "Completely new content about container networking.",
		Category: "networking",
		Active:   true,
	})
	if err != nil {
		t.Fatalf("Update() error: %v", err)
	}
	if updated.Title != "Docker Updated" {
		t.Errorf("Title = %q after update", updated.Title)
	}
	if !updated.Processed {
		t.Error("document not processed after update")
	}

	chunks, err := deps.service.Chunks(ctx, doc.ID)
	if err != nil {
		t.Fatal(err)
	}
	for _, c := range chunks {
		if !strings.Contains("Completely new content about container networking.", c.Content) {
			t.Errorf("chunk still carries old content: %q", c.Content)
		}
	}

	count, err := deps.vectors.CountPoints(ctx, testCollection)
	if err != nil {
		t.Fatal(err)
	}
	if count != int64(len(chunks)) {
		t.Errorf("vector store holds %d points, want %d", count, len(chunks))
	}
}

func TestServiceSetActive(t *testing.T) {
	deps := newTestService(t, nil)
	ctx := context.Background()

	doc, err := deps.service.Create(ctx, document.InsertDocumentParams{
		Title: "Docker", Content: testContent, Active: true,
	})
	if err != nil {
		t.Fatal(err)
	}

	deactivated, err := deps.service.SetActive(ctx, doc.ID, false)
	if err != nil {
		t.Fatalf("SetActive(false) error: %v", err)
	}
	if deactivated.Active {
		t.Error("document still active after deactivation")
	}
	if deactivated.Processed {
		t.Error("inactive document still marked processed")
	}

	count, err := deps.vectors.CountPoints(ctx, testCollection)
	if err != nil {
		t.Fatal(err)
	}
	if count != 0 {
		t.Errorf("vector store holds %d points for inactive document, want 0", count)
	}

	chunks, err := deps.service.Chunks(ctx, doc.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(chunks) != 0 {
		t.Errorf("inactive document keeps %d chunks, want 0", len(chunks))
	}

	reactivated, err := deps.service.SetActive(ctx, doc.ID, true)
	if err != nil {
		t.Fatalf("SetActive(true) error: %v", err)
	}
	if !reactivated.Active || !reactivated.Processed {
		t.Errorf("reactivated document active=%v processed=%v, want both true", reactivated.Active, reactivated.Processed)
	}

	chunks, err = deps.service.Chunks(ctx, doc.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(chunks) == 0 {
		t.Fatal("reactivated document has no chunks")
	}
	count, err = deps.vectors.CountPoints(ctx, testCollection)
	if err != nil {
		t.Fatal(err)
	}
	if count != int64(len(chunks)) {
		t.Errorf("vector store holds %d points, want %d", count, len(chunks))
	}
}

func TestServiceCreateInactiveNotIndexed(t *testing.T) {
	deps := newTestService(t, nil)
	ctx := context.Background()

	doc, err := deps.service.Create(ctx, document.InsertDocumentParams{
		Title: "Draft", Content: testContent, Active: false,
	})
	if err != nil {
		t.Fatalf("Create() error: %v", err)
	}
	if doc.Processed {
		t.Error("inactive document marked processed")
	}

	count, err := deps.vectors.CountPoints(ctx, testCollection)
	if err != nil {
		t.Fatal(err)
	}
	if count != 0 {
		t.Errorf("vector store holds %d points for inactive document, want 0", count)
	}
}

func TestServiceDelete(t *testing.T) {
	deps := newTestService(t, nil)
	ctx := context.Background()

	doc, err := deps.service.Create(ctx, document.InsertDocumentParams{
		Title: "Docker", Content: testContent, Active: true,
	})
	if err != nil {
		t.Fatal(err)
	}

	if err := deps.service.Delete(ctx, doc.ID); err != nil {
		t.Fatalf("Delete() error: %v", err)
	}

	if _, err := deps.service.Get(ctx, doc.ID); !errors.Is(err, document.ErrNotFound) {
		t.Errorf("Get() after delete error = %v, want ErrNotFound", err)
	}

	count, err := deps.vectors.CountPoints(ctx, testCollection)
	if err != nil {
		t.Fatal(err)
	}
	if count != 0 {
		t.Errorf("vector store holds %d points after delete, want 0", count)
	}
}

type slowEmbedder struct {
	embedding.Provider
	active  atomic.Int32
	maxSeen atomic.Int32
}

func (s *slowEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	cur := s.active.Add(1)
	defer s.active.Add(-1)

	for {
		seen := s.maxSeen.Load()
		if cur <= seen || s.maxSeen.CompareAndSwap(seen, cur) {
			break
		}
	}
	time.Sleep(10 * time.Millisecond)

	return s.Provider.EmbedBatch(ctx, texts)
}

func TestServiceProcessSerializedPerDocument(t *testing.T) {
	embedder := &slowEmbedder{Provider: embedding.NewDeterministic(32)}
	deps := newTestService(t, embedder)
	ctx := context.Background()

	doc, err := deps.service.Create(ctx, document.InsertDocumentParams{
		Title: "Docker", Content: testContent, Active: true,
	})
	if err != nil {
		t.Fatal(err)
	}
	embedder.maxSeen.Store(0)

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := deps.service.Process(ctx, doc.ID); err != nil {
				t.Errorf("concurrent Process() error: %v", err)
			}
		}()
	}
	wg.Wait()

	if peak := embedder.maxSeen.Load(); peak > 1 {
		t.Errorf("embedding ran %d times concurrently for one document, want serialized", peak)
	}

	chunks, err := deps.service.Chunks(ctx, doc.ID)
	if err != nil {
		t.Fatal(err)
	}
	count, err := deps.vectors.CountPoints(ctx, testCollection)
	if err != nil {
		t.Fatal(err)
	}
	if count != int64(len(chunks)) {
		t.Errorf("vector store holds %d points, want %d", count, len(chunks))
	}
}
