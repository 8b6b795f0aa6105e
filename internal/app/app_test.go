package app

import (
	"context"
	"testing"

	"ragserver/internal/config"
	"ragserver/internal/document"
)

func documentParams() document.InsertDocumentParams {
	return document.InsertDocumentParams{
		Title:    "Bridge Networks",
		Content:  "Containers attach to a bridge network unless another network is specified.",
		Category: "networking",
		Active:   true,
	}
}

func testConfig() *config.Config {
	return &config.Config{
		ListenAddr:     ":0",
		MaxConnections: 16,
		RateLimitRPS:   50,
		RateLimitBurst: 100,

		StorageBackend: config.StorageMemory,

		EmbeddingProvider:  config.EmbeddingDeterministic,
		EmbeddingDimension: 64,

		CollectionName: "test_chunks",

		ChunkTargetTokens:  100,
		ChunkOverlapTokens: 10,

		RetrievalTopK:     3,
		RetrievalMinScore: 0.5,

		SessionMaxIdleMinutes: 30,
		SessionCleanupMinutes: 5,

		LogLevel:  "error",
		LogFormat: "text",
	}
}

func TestSetupMemoryBackend(t *testing.T) {
	cfg := testConfig()

	a, err := Setup(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Setup: %v", err)
	}
	defer a.Close()

	if a.Documents == nil || a.Retrieval == nil || a.Chat == nil || a.Server == nil {
		t.Fatal("Setup left services unwired")
	}
	if a.Pool != nil {
		t.Error("memory backend should not create a pool")
	}

	// The wired graph works end to end: ingest then search.
	doc, err := a.Documents.Create(context.Background(), documentParams())
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if !doc.Processed {
		t.Error("document not processed after create")
	}

	results, err := a.Retrieval.Search(context.Background(), documentParams().Content, 0, 0.9)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) == 0 {
		t.Error("no results for indexed content")
	}
}

func TestSetupUnknownBackend(t *testing.T) {
	cfg := testConfig()
	cfg.StorageBackend = "bogus"

	if _, err := Setup(context.Background(), cfg); err == nil {
		t.Fatal("Setup accepted unknown storage backend")
	}
}
