// Package config provides application configuration management with multi-source priority.
//
// Configuration sources (highest to lowest priority):
//  1. Environment variables (runtime override)
//  2. Config file (./config.yaml or /etc/ragserver/config.yaml)
//  3. Default values
//
// Main configuration categories:
//   - Server: HTTP listen address, connection limits, rate limiting
//   - Storage: backend selection and PostgreSQL connection (see storage.go)
//   - Embedding: provider selection, model, vector dimension
//   - Chat: generation model, session lifetime
//   - Chunking/Retrieval: token budgets and search defaults
//   - Observability: OTLP trace export (see observability.go)
//
// Sensitive data (passwords) are masked in MarshalJSON and String.
// Validation uses sentinel errors checkable with errors.Is(); see validation.go.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/viper"
)

var (
	// ErrConfigNil indicates the configuration is nil.
	ErrConfigNil = errors.New("configuration is nil")

	// ErrInvalidListenAddr indicates the HTTP listen address is invalid.
	ErrInvalidListenAddr = errors.New("invalid listen address")

	// ErrInvalidStorageBackend indicates the storage backend is not supported.
	ErrInvalidStorageBackend = errors.New("invalid storage backend")

	// ErrInvalidEmbeddingProvider indicates the embedding provider is not supported.
	ErrInvalidEmbeddingProvider = errors.New("invalid embedding provider")

	// ErrInvalidEmbeddingModel indicates the embedding model name is invalid.
	ErrInvalidEmbeddingModel = errors.New("invalid embedding model")

	// ErrInvalidEmbeddingDimension indicates the vector dimension is out of range.
	ErrInvalidEmbeddingDimension = errors.New("invalid embedding dimension")

	// ErrInvalidCollectionName indicates the vector collection name is invalid.
	ErrInvalidCollectionName = errors.New("invalid collection name")

	// ErrInvalidChunking indicates the chunk token budgets are inconsistent.
	ErrInvalidChunking = errors.New("invalid chunking configuration")

	// ErrInvalidRetrieval indicates the retrieval defaults are out of range.
	ErrInvalidRetrieval = errors.New("invalid retrieval configuration")

	// ErrInvalidPostgresHost indicates the PostgreSQL host is invalid.
	ErrInvalidPostgresHost = errors.New("invalid PostgreSQL host")

	// ErrInvalidPostgresPort indicates the PostgreSQL port is out of range.
	ErrInvalidPostgresPort = errors.New("invalid PostgreSQL port")

	// ErrInvalidPostgresDBName indicates the PostgreSQL database name is invalid.
	ErrInvalidPostgresDBName = errors.New("invalid PostgreSQL database name")

	// ErrInvalidPostgresSSLMode indicates the PostgreSQL SSL mode is invalid.
	ErrInvalidPostgresSSLMode = errors.New("invalid PostgreSQL SSL mode")

	// ErrInvalidOllamaHost indicates the Ollama host is invalid.
	ErrInvalidOllamaHost = errors.New("invalid Ollama host")

	// ErrInvalidSessionConfig indicates the session lifetime settings are invalid.
	ErrInvalidSessionConfig = errors.New("invalid session configuration")

	// ErrInvalidRateLimit indicates the API rate limit settings are invalid.
	ErrInvalidRateLimit = errors.New("invalid rate limit")
)

// Storage backend identifiers used in Config.StorageBackend.
const (
	StorageMemory   = "memory"
	StoragePostgres = "postgres"
)

// Embedding provider identifiers used in Config.EmbeddingProvider.
const (
	EmbeddingDeterministic = "deterministic"
	EmbeddingOllama        = "ollama"
	EmbeddingGemini        = "gemini"
)

// DefaultGeminiEmbeddingModel is the default Gemini embedding model.
// gemini-embedding-001 supports truncation to 768 dimensions via
// OutputDimensionality, matching the default collection dimension.
const DefaultGeminiEmbeddingModel = "gemini-embedding-001"

// Config stores application configuration.
// Sensitive fields are explicitly masked in MarshalJSON().
type Config struct {
	// HTTP server configuration
	ListenAddr     string `mapstructure:"listen_addr" json:"listen_addr"`
	MaxConnections int    `mapstructure:"max_connections" json:"max_connections"`
	RateLimitRPS   int    `mapstructure:"rate_limit_rps" json:"rate_limit_rps"`
	RateLimitBurst int    `mapstructure:"rate_limit_burst" json:"rate_limit_burst"`

	// Storage configuration (see storage.go for connection string helpers)
	StorageBackend   string `mapstructure:"storage_backend" json:"storage_backend"` // "memory" or "postgres"
	PostgresHost     string `mapstructure:"postgres_host" json:"postgres_host"`
	PostgresPort     int    `mapstructure:"postgres_port" json:"postgres_port"`
	PostgresUser     string `mapstructure:"postgres_user" json:"postgres_user"`
	PostgresPassword string `mapstructure:"postgres_password" json:"postgres_password"` // SENSITIVE: masked in MarshalJSON
	PostgresDBName   string `mapstructure:"postgres_db_name" json:"postgres_db_name"`
	PostgresSSLMode  string `mapstructure:"postgres_ssl_mode" json:"postgres_ssl_mode"`

	// Embedding configuration
	EmbeddingProvider  string `mapstructure:"embedding_provider" json:"embedding_provider"` // "deterministic", "ollama", "gemini"
	EmbeddingModel     string `mapstructure:"embedding_model" json:"embedding_model"`
	EmbeddingDimension int    `mapstructure:"embedding_dimension" json:"embedding_dimension"`
	OllamaHost         string `mapstructure:"ollama_host" json:"ollama_host"`

	// Vector collection configuration
	CollectionName string `mapstructure:"collection_name" json:"collection_name"`

	// Chunking configuration
	ChunkTargetTokens  int `mapstructure:"chunk_target_tokens" json:"chunk_target_tokens"`
	ChunkOverlapTokens int `mapstructure:"chunk_overlap_tokens" json:"chunk_overlap_tokens"`

	// Retrieval configuration
	RetrievalTopK     int     `mapstructure:"retrieval_top_k" json:"retrieval_top_k"`
	RetrievalMinScore float64 `mapstructure:"retrieval_min_score" json:"retrieval_min_score"`

	// Chat configuration
	ChatModel             string `mapstructure:"chat_model" json:"chat_model"`
	ChatHistoryMessages   int    `mapstructure:"chat_history_messages" json:"chat_history_messages"`
	SessionMaxIdleMinutes int    `mapstructure:"session_max_idle_minutes" json:"session_max_idle_minutes"`
	SessionCleanupMinutes int    `mapstructure:"session_cleanup_minutes" json:"session_cleanup_minutes"`
	GenerationEnabled     bool   `mapstructure:"generation_enabled" json:"generation_enabled"`
	ClassificationEnabled bool   `mapstructure:"classification_enabled" json:"classification_enabled"`

	// Logging configuration
	LogLevel  string `mapstructure:"log_level" json:"log_level"`
	LogFormat string `mapstructure:"log_format" json:"log_format"` // "text" or "json"

	// Observability configuration (see observability.go)
	Tracing TracingConfig `mapstructure:"tracing" json:"tracing"`
}

// Load loads configuration.
// Priority: Environment variables > Configuration file > Default values
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/ragserver")

	setDefaults(v)
	bindEnvVariables(v)

	if err := v.ReadInConfig(); err != nil {
		// Configuration file not found is not an error, use default values.
		var configNotFound viper.ConfigFileNotFoundError
		if !errors.As(err, &configNotFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		slog.Debug("configuration file not found, using default values",
			"search_paths", []string{".", "/etc/ragserver"},
			"config_name", "config.yaml")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing configuration: %w", err)
	}

	// DATABASE_URL overrides individual postgres_* settings.
	if err := cfg.parseDatabaseURL(); err != nil {
		return nil, fmt.Errorf("parsing DATABASE_URL: %w", err)
	}

	// Fail fast on invalid configuration.
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets all default configuration values.
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("listen_addr", ":8080")
	v.SetDefault("max_connections", 256)
	v.SetDefault("rate_limit_rps", 50)
	v.SetDefault("rate_limit_burst", 100)

	// Storage defaults
	v.SetDefault("storage_backend", StorageMemory)
	v.SetDefault("postgres_host", "localhost")
	v.SetDefault("postgres_port", 5432)
	v.SetDefault("postgres_user", "ragserver")
	v.SetDefault("postgres_password", "")
	v.SetDefault("postgres_db_name", "ragserver")
	v.SetDefault("postgres_ssl_mode", "disable")

	// Embedding defaults
	v.SetDefault("embedding_provider", EmbeddingDeterministic)
	v.SetDefault("embedding_model", "")
	v.SetDefault("embedding_dimension", 768)
	v.SetDefault("ollama_host", "http://localhost:11434")

	// Collection defaults
	v.SetDefault("collection_name", "document_chunks")

	// Chunking defaults
	v.SetDefault("chunk_target_tokens", 3000)
	v.SetDefault("chunk_overlap_tokens", 300)

	// Retrieval defaults
	v.SetDefault("retrieval_top_k", 3)
	v.SetDefault("retrieval_min_score", 0.5)

	// Chat defaults
	v.SetDefault("chat_model", "googleai/gemini-2.5-flash")
	v.SetDefault("chat_history_messages", 30)
	v.SetDefault("session_max_idle_minutes", 30)
	v.SetDefault("session_cleanup_minutes", 5)
	v.SetDefault("generation_enabled", false)
	v.SetDefault("classification_enabled", false)

	// Logging defaults
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "text")

	// Tracing defaults (disabled unless an endpoint is configured)
	v.SetDefault("tracing.endpoint", "")
	v.SetDefault("tracing.service_name", "ragserver")
	v.SetDefault("tracing.environment", "dev")
	v.SetDefault("tracing.sample_rate", 1.0)
}

// bindEnvVariables binds environment variable overrides explicitly.
// GEMINI_API_KEY is read directly by Genkit, not via Viper; its presence is
// checked in Validate() when the gemini provider is selected.
func bindEnvVariables(v *viper.Viper) {
	// Hardcoded keys cannot fail to bind; a panic here is a bug, not a runtime error.
	mustBind := func(key, envVar string) {
		if err := v.BindEnv(key, envVar); err != nil {
			panic(fmt.Sprintf("BUG: failed to bind %q to %q: %v", key, envVar, err))
		}
	}

	mustBind("listen_addr", "RAGSERVER_LISTEN_ADDR")
	mustBind("storage_backend", "RAGSERVER_STORAGE_BACKEND")
	mustBind("postgres_password", "RAGSERVER_POSTGRES_PASSWORD")
	mustBind("embedding_provider", "RAGSERVER_EMBEDDING_PROVIDER")
	mustBind("embedding_model", "RAGSERVER_EMBEDDING_MODEL")
	mustBind("ollama_host", "RAGSERVER_OLLAMA_HOST")
	mustBind("chat_model", "RAGSERVER_CHAT_MODEL")
	mustBind("log_level", "RAGSERVER_LOG_LEVEL")
	mustBind("log_format", "RAGSERVER_LOG_FORMAT")
	mustBind("tracing.endpoint", "OTEL_EXPORTER_OTLP_ENDPOINT")
}

// maskedValue is the placeholder for masked sensitive data.
// Full-width blocks avoid accidental substring matches against real secrets.
const maskedValue = "████████"

// maskSecret masks a secret string for safe logging.
// Secrets of 8 characters or fewer are fully masked; longer secrets keep the
// first and last 2 characters for debug utility.
func maskSecret(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 8 {
		return maskedValue
	}
	return s[:2] + "<" + maskedValue + ">" + s[len(s)-2:]
}

// MarshalJSON implements json.Marshaler with explicit sensitive field masking.
// When adding new sensitive fields, update this method.
func (c Config) MarshalJSON() ([]byte, error) {
	type alias Config
	a := alias(c)
	a.PostgresPassword = maskSecret(a.PostgresPassword)
	data, err := json.Marshal(a)
	if err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}
	return data, nil
}

// String implements Stringer to prevent accidental printing of secrets.
func (c Config) String() string {
	data, err := c.MarshalJSON()
	if err != nil {
		return fmt.Sprintf("Config{error: %v}", err)
	}
	return string(data)
}

// EmbeddingModelName returns the configured embedding model, falling back to
// the provider's default when unset.
func (c *Config) EmbeddingModelName() string {
	if c.EmbeddingModel != "" {
		return c.EmbeddingModel
	}
	switch c.EmbeddingProvider {
	case EmbeddingOllama:
		return "nomic-embed-text"
	case EmbeddingGemini:
		return DefaultGeminiEmbeddingModel
	default:
		return "deterministic"
	}
}

// FullChatModelName returns the provider-qualified model name for Genkit.
// If ChatModel already contains a "/", it is returned as-is.
func (c *Config) FullChatModelName() string {
	if strings.Contains(c.ChatModel, "/") {
		return c.ChatModel
	}
	return "googleai/" + c.ChatModel
}

// SessionMaxIdle returns the idle duration after which sessions are closed.
func (c *Config) SessionMaxIdle() time.Duration {
	return time.Duration(c.SessionMaxIdleMinutes) * time.Minute
}

// SessionCleanupInterval returns how often the cleanup loop runs.
func (c *Config) SessionCleanupInterval() time.Duration {
	return time.Duration(c.SessionCleanupMinutes) * time.Minute
}
