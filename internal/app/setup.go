package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/firebase/genkit/go/genkit"
	"github.com/firebase/genkit/go/plugins/googlegenai"
	"github.com/jackc/pgx/v5/pgxpool"

	"ragserver/db"
	"ragserver/internal/api"
	"ragserver/internal/chat"
	"ragserver/internal/config"
	"ragserver/internal/document"
	"ragserver/internal/embedding"
	"ragserver/internal/genai"
	"ragserver/internal/log"
	"ragserver/internal/memstore"
	"ragserver/internal/observability"
	"ragserver/internal/postgres"
	"ragserver/internal/retrieval"
	"ragserver/internal/settings"
	"ragserver/internal/textsplit"
	"ragserver/internal/vectorstore"
)

// Setup creates and initializes the application.
// Returns an App with embedded cleanup — call Close() to release.
func Setup(ctx context.Context, cfg *config.Config) (_ *App, retErr error) {
	logger := log.New(log.Config{
		Level: log.ParseLevel(cfg.LogLevel),
		JSON:  cfg.LogFormat == "json",
	})
	slog.SetDefault(logger)

	a := &App{Config: cfg, Logger: logger}

	// On error, clean up everything already initialized.
	defer func() {
		if retErr != nil {
			if err := a.Close(); err != nil {
				logger.Warn("cleanup during setup failure", "error", err)
			}
		}
	}()

	otelShutdown, err := observability.Setup(ctx, cfg.Tracing, logger)
	if err != nil {
		return nil, fmt.Errorf("setting up tracing: %w", err)
	}
	a.otelCleanup = func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := otelShutdown(shutdownCtx); err != nil {
			logger.Warn("shutting down tracer provider", "error", err)
		}
	}

	docQuerier, chatQuerier, settingsQuerier, vectors, err := provideStorage(ctx, a)
	if err != nil {
		return nil, err
	}

	g, err := provideGenkit(ctx, cfg)
	if err != nil {
		return nil, err
	}

	embedder, err := provideEmbedder(g, cfg, logger)
	if err != nil {
		return nil, err
	}

	splitter, err := textsplit.NewSplitter(
		textsplit.WithTargetTokens(cfg.ChunkTargetTokens),
		textsplit.WithOverlapTokens(cfg.ChunkOverlapTokens),
	)
	if err != nil {
		return nil, fmt.Errorf("creating splitter: %w", err)
	}

	a.Documents = document.NewService(docQuerier, a.Pool, vectors, embedder, splitter, cfg.CollectionName, logger)
	if err := a.Documents.EnsureCollection(ctx); err != nil {
		return nil, fmt.Errorf("ensuring vector collection: %w", err)
	}

	a.Retrieval = retrieval.NewService(embedder, vectors, cfg.CollectionName, logger)
	a.Settings = settings.NewStore(settingsQuerier, logger)

	composer, opts, err := provideChatComponents(g, cfg, a.Settings, logger)
	if err != nil {
		return nil, err
	}
	a.Chat = chat.NewOrchestrator(chatQuerier, a.Retrieval, composer, a.Settings, logger, opts...)

	server, err := api.NewServer(api.ServerConfig{
		Logger:         logger,
		Documents:      a.Documents,
		Retrieval:      a.Retrieval,
		Chat:           a.Chat,
		Pool:           a.Pool,
		RateLimitRPS:   cfg.RateLimitRPS,
		RateLimitBurst: cfg.RateLimitBurst,
		MaxConnections: cfg.MaxConnections,
	})
	if err != nil {
		return nil, fmt.Errorf("creating API server: %w", err)
	}
	a.Server = server

	return a, nil
}

// provideStorage selects the storage backend and returns the queriers and
// vector store. The postgres backend runs migrations and attaches the pool to
// the App for transactions and readiness checks.
func provideStorage(ctx context.Context, a *App) (document.Querier, chat.Querier, settings.Querier, vectorstore.Store, error) {
	cfg := a.Config

	switch cfg.StorageBackend {
	case config.StoragePostgres:
		pool, err := provideDBPool(ctx, cfg, a.Logger)
		if err != nil {
			return nil, nil, nil, nil, err
		}
		a.Pool = pool

		queries := postgres.New(pool)
		vectors := vectorstore.NewPostgres(pool, a.Logger)
		a.Logger.Info("using postgres storage", "host", cfg.PostgresHost, "database", cfg.PostgresDBName)
		return queries, queries, queries, vectors, nil

	case config.StorageMemory:
		a.Logger.Info("using in-memory storage; data is lost on restart")
		return memstore.NewDocumentStore(), memstore.NewChatStore(), memstore.NewSettingsStore(), vectorstore.NewMemory(), nil

	default:
		return nil, nil, nil, nil, fmt.Errorf("unknown storage backend %q", cfg.StorageBackend)
	}
}

// provideDBPool creates a PostgreSQL connection pool and runs migrations.
func provideDBPool(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*pgxpool.Pool, error) {
	if err := db.Migrate(cfg.PostgresURL()); err != nil {
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.PostgresConnectionString())
	if err != nil {
		return nil, fmt.Errorf("parsing connection config: %w", err)
	}

	poolCfg.MaxConns = 10
	poolCfg.MinConns = 2
	poolCfg.MaxConnLifetime = 30 * time.Minute
	poolCfg.MaxConnIdleTime = 5 * time.Minute
	poolCfg.HealthCheckPeriod = 1 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	pingCtx, pingCancel := context.WithTimeout(ctx, 5*time.Second)
	defer pingCancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	logger.Debug("database pool ready", "max_conns", poolCfg.MaxConns)
	return pool, nil
}

// provideGenkit initializes Genkit when any component needs a model provider.
// Returns nil when neither gemini embeddings nor generation are configured.
func provideGenkit(ctx context.Context, cfg *config.Config) (*genkit.Genkit, error) {
	needsGemini := cfg.EmbeddingProvider == config.EmbeddingGemini ||
		cfg.GenerationEnabled || cfg.ClassificationEnabled
	if !needsGemini {
		return nil, nil
	}

	g := genkit.Init(ctx, genkit.WithPlugins(&googlegenai.GoogleAI{}))
	if g == nil {
		return nil, errors.New("initializing genkit with googleai plugin")
	}
	slog.Info("initialized Genkit", "chat_model", cfg.FullChatModelName())
	return g, nil
}

// provideEmbedder creates the configured embedding provider.
func provideEmbedder(g *genkit.Genkit, cfg *config.Config, logger *slog.Logger) (embedding.Provider, error) {
	switch cfg.EmbeddingProvider {
	case config.EmbeddingDeterministic:
		logger.Info("using deterministic embeddings", "dimension", cfg.EmbeddingDimension)
		return embedding.NewDeterministic(cfg.EmbeddingDimension), nil

	case config.EmbeddingOllama:
		logger.Info("using ollama embeddings",
			"host", cfg.OllamaHost, "model", cfg.EmbeddingModelName(), "dimension", cfg.EmbeddingDimension)
		return embedding.NewOllama(logger,
			embedding.WithOllamaBaseURL(cfg.OllamaHost),
			embedding.WithOllamaModel(cfg.EmbeddingModelName()),
			embedding.WithOllamaDimension(cfg.EmbeddingDimension),
		), nil

	case config.EmbeddingGemini:
		if g == nil {
			return nil, errors.New("genkit is required for gemini embeddings")
		}
		model := cfg.EmbeddingModelName()
		embedder := googlegenai.GoogleAIEmbedder(g, model)
		if embedder == nil {
			return nil, fmt.Errorf("embedder %q not found", model)
		}
		logger.Info("using gemini embeddings", "model", model, "dimension", cfg.EmbeddingDimension)
		return embedding.NewGenkitAdapter(embedder, model, cfg.EmbeddingDimension), nil

	default:
		return nil, fmt.Errorf("unknown embedding provider %q", cfg.EmbeddingProvider)
	}
}

// provideChatComponents selects the answer composer and optional intent
// classifier. Without generation enabled the static composer renders
// retrieved chunks directly.
func provideChatComponents(g *genkit.Genkit, cfg *config.Config, settingsStore *settings.Store, logger *slog.Logger) (chat.Composer, []chat.OrchestratorOption, error) {
	var composer chat.Composer = chat.StaticComposer{}
	opts := []chat.OrchestratorOption{chat.WithHistoryLimit(cfg.ChatHistoryMessages)}

	if cfg.GenerationEnabled {
		if g == nil {
			return nil, nil, errors.New("genkit is required for generation")
		}
		composer = genai.NewComposer(g, cfg.FullChatModelName(), settingsStore, logger)
		logger.Info("LLM answer composition enabled", "model", cfg.FullChatModelName())
	}

	if cfg.ClassificationEnabled {
		if g == nil {
			return nil, nil, errors.New("genkit is required for classification")
		}
		classifier, err := genai.NewClassifier(g, cfg.FullChatModelName(), logger)
		if err != nil {
			return nil, nil, fmt.Errorf("creating intent classifier: %w", err)
		}
		opts = append(opts, chat.WithClassifier(classifier))
		logger.Info("intent classification enabled", "model", cfg.FullChatModelName())
	}

	return composer, opts, nil
}
