package config

import (
	"fmt"
	"os"
	"slices"
	"strings"
)

// Validate validates configuration values.
// Returns sentinel errors that can be checked with errors.Is().
func (c *Config) Validate() error {
	if c == nil {
		return ErrConfigNil
	}

	// 1. Server validation
	if strings.TrimSpace(c.ListenAddr) == "" {
		return fmt.Errorf("%w: listen_addr cannot be empty", ErrInvalidListenAddr)
	}
	if c.MaxConnections < 1 {
		return fmt.Errorf("%w: max_connections must be at least 1, got %d", ErrInvalidListenAddr, c.MaxConnections)
	}
	if c.RateLimitRPS < 1 {
		return fmt.Errorf("%w: rate_limit_rps must be at least 1, got %d", ErrInvalidRateLimit, c.RateLimitRPS)
	}
	if c.RateLimitBurst < c.RateLimitRPS {
		return fmt.Errorf("%w: rate_limit_burst %d must be at least rate_limit_rps %d",
			ErrInvalidRateLimit, c.RateLimitBurst, c.RateLimitRPS)
	}

	// 2. Storage validation
	switch c.StorageBackend {
	case StorageMemory:
		// No further storage checks.
	case StoragePostgres:
		if err := c.validatePostgres(); err != nil {
			return err
		}
	default:
		return fmt.Errorf("%w: %q is not supported, must be %q or %q",
			ErrInvalidStorageBackend, c.StorageBackend, StorageMemory, StoragePostgres)
	}

	// 3. Embedding validation
	switch c.EmbeddingProvider {
	case EmbeddingDeterministic:
		// Always available, no external dependency.
	case EmbeddingOllama:
		if !strings.HasPrefix(c.OllamaHost, "http://") && !strings.HasPrefix(c.OllamaHost, "https://") {
			return fmt.Errorf("%w: %q must start with http:// or https://", ErrInvalidOllamaHost, c.OllamaHost)
		}
		if c.EmbeddingModelName() == "" {
			return fmt.Errorf("%w: embedding_model cannot be empty for ollama provider", ErrInvalidEmbeddingModel)
		}
	case EmbeddingGemini:
		if os.Getenv("GEMINI_API_KEY") == "" {
			return fmt.Errorf("%w: GEMINI_API_KEY environment variable is required for the gemini provider\n"+
				"Get your API key at: https://ai.google.dev/gemini-api/docs/api-key",
				ErrInvalidEmbeddingProvider)
		}
	default:
		return fmt.Errorf("%w: %q is not supported, must be one of: %q, %q, %q",
			ErrInvalidEmbeddingProvider, c.EmbeddingProvider,
			EmbeddingDeterministic, EmbeddingOllama, EmbeddingGemini)
	}

	// Dimension range: pgvector indexes support up to 2000 dimensions; 4096
	// covers unindexed columns for larger embedding models.
	if c.EmbeddingDimension < 1 || c.EmbeddingDimension > 4096 {
		return fmt.Errorf("%w: must be between 1 and 4096, got %d", ErrInvalidEmbeddingDimension, c.EmbeddingDimension)
	}

	// 4. Collection validation
	if strings.TrimSpace(c.CollectionName) == "" {
		return fmt.Errorf("%w: collection_name cannot be empty", ErrInvalidCollectionName)
	}

	// 5. Chunking validation
	if c.ChunkTargetTokens < 1 {
		return fmt.Errorf("%w: chunk_target_tokens must be positive, got %d", ErrInvalidChunking, c.ChunkTargetTokens)
	}
	if c.ChunkOverlapTokens < 0 {
		return fmt.Errorf("%w: chunk_overlap_tokens cannot be negative, got %d", ErrInvalidChunking, c.ChunkOverlapTokens)
	}
	if c.ChunkOverlapTokens >= c.ChunkTargetTokens {
		return fmt.Errorf("%w: chunk_overlap_tokens %d must be smaller than chunk_target_tokens %d",
			ErrInvalidChunking, c.ChunkOverlapTokens, c.ChunkTargetTokens)
	}

	// 6. Retrieval validation
	if c.RetrievalTopK < 1 || c.RetrievalTopK > 100 {
		return fmt.Errorf("%w: retrieval_top_k must be between 1 and 100, got %d", ErrInvalidRetrieval, c.RetrievalTopK)
	}
	if c.RetrievalMinScore < 0 || c.RetrievalMinScore > 1 {
		return fmt.Errorf("%w: retrieval_min_score must be between 0 and 1, got %.2f", ErrInvalidRetrieval, c.RetrievalMinScore)
	}

	// 7. Session validation
	if c.SessionMaxIdleMinutes < 1 {
		return fmt.Errorf("%w: session_max_idle_minutes must be at least 1, got %d",
			ErrInvalidSessionConfig, c.SessionMaxIdleMinutes)
	}
	if c.SessionCleanupMinutes < 1 {
		return fmt.Errorf("%w: session_cleanup_minutes must be at least 1, got %d",
			ErrInvalidSessionConfig, c.SessionCleanupMinutes)
	}

	// 8. Generation validation
	if c.GenerationEnabled {
		if os.Getenv("GEMINI_API_KEY") == "" {
			return fmt.Errorf("%w: GEMINI_API_KEY environment variable is required when generation_enabled is true",
				ErrInvalidEmbeddingProvider)
		}
		if strings.TrimSpace(c.ChatModel) == "" {
			return fmt.Errorf("%w: chat_model cannot be empty when generation_enabled is true", ErrInvalidEmbeddingModel)
		}
	}
	if c.ChatHistoryMessages < 0 {
		return fmt.Errorf("%w: chat_history_messages cannot be negative, got %d",
			ErrInvalidSessionConfig, c.ChatHistoryMessages)
	}

	return nil
}

// validatePostgres validates PostgreSQL settings. Only called when the
// postgres storage backend is selected.
func (c *Config) validatePostgres() error {
	if c.PostgresHost == "" {
		return fmt.Errorf("%w: host cannot be empty", ErrInvalidPostgresHost)
	}

	if c.PostgresPort < 1 || c.PostgresPort > 65535 {
		return fmt.Errorf("%w: must be between 1 and 65535, got %d", ErrInvalidPostgresPort, c.PostgresPort)
	}

	if c.PostgresDBName == "" {
		return fmt.Errorf("%w: database name cannot be empty", ErrInvalidPostgresDBName)
	}

	// Modern SSL modes only; allow/prefer are deprecated (MITM vulnerable).
	validSSLModes := []string{"disable", "require", "verify-ca", "verify-full"}
	if !slices.Contains(validSSLModes, c.PostgresSSLMode) {
		return fmt.Errorf("%w: %q is not valid, must be one of: %v",
			ErrInvalidPostgresSSLMode, c.PostgresSSLMode, validSSLModes)
	}

	return nil
}
