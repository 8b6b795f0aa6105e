package config

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

// validConfig returns a configuration that passes Validate.
func validConfig() *Config {
	return &Config{
		ListenAddr:     ":8080",
		MaxConnections: 256,
		RateLimitRPS:   50,
		RateLimitBurst: 100,

		StorageBackend:   StorageMemory,
		PostgresHost:     "localhost",
		PostgresPort:     5432,
		PostgresUser:     "ragserver",
		PostgresPassword: "secret-password",
		PostgresDBName:   "ragserver",
		PostgresSSLMode:  "disable",

		EmbeddingProvider:  EmbeddingDeterministic,
		EmbeddingDimension: 768,
		OllamaHost:         "http://localhost:11434",

		CollectionName: "document_chunks",

		ChunkTargetTokens:  3000,
		ChunkOverlapTokens: 300,

		RetrievalTopK:     3,
		RetrievalMinScore: 0.5,

		ChatModel:             "googleai/gemini-2.5-flash",
		ChatHistoryMessages:   30,
		SessionMaxIdleMinutes: 30,
		SessionCleanupMinutes: 5,

		LogLevel:  "info",
		LogFormat: "text",
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr error
	}{
		{
			name:   "valid config",
			mutate: func(c *Config) {},
		},
		{
			name:    "empty listen addr",
			mutate:  func(c *Config) { c.ListenAddr = "  " },
			wantErr: ErrInvalidListenAddr,
		},
		{
			name:    "zero max connections",
			mutate:  func(c *Config) { c.MaxConnections = 0 },
			wantErr: ErrInvalidListenAddr,
		},
		{
			name:    "burst below rps",
			mutate:  func(c *Config) { c.RateLimitBurst = 10 },
			wantErr: ErrInvalidRateLimit,
		},
		{
			name:    "unknown storage backend",
			mutate:  func(c *Config) { c.StorageBackend = "sqlite" },
			wantErr: ErrInvalidStorageBackend,
		},
		{
			name: "postgres backend with empty host",
			mutate: func(c *Config) {
				c.StorageBackend = StoragePostgres
				c.PostgresHost = ""
			},
			wantErr: ErrInvalidPostgresHost,
		},
		{
			name: "postgres backend with bad port",
			mutate: func(c *Config) {
				c.StorageBackend = StoragePostgres
				c.PostgresPort = 70000
			},
			wantErr: ErrInvalidPostgresPort,
		},
		{
			name: "postgres backend with empty db name",
			mutate: func(c *Config) {
				c.StorageBackend = StoragePostgres
				c.PostgresDBName = ""
			},
			wantErr: ErrInvalidPostgresDBName,
		},
		{
			name: "postgres backend with deprecated ssl mode",
			mutate: func(c *Config) {
				c.StorageBackend = StoragePostgres
				c.PostgresSSLMode = "prefer"
			},
			wantErr: ErrInvalidPostgresSSLMode,
		},
		{
			name:    "unknown embedding provider",
			mutate:  func(c *Config) { c.EmbeddingProvider = "openai" },
			wantErr: ErrInvalidEmbeddingProvider,
		},
		{
			name: "ollama provider with bad host",
			mutate: func(c *Config) {
				c.EmbeddingProvider = EmbeddingOllama
				c.OllamaHost = "localhost:11434"
			},
			wantErr: ErrInvalidOllamaHost,
		},
		{
			name:    "zero dimension",
			mutate:  func(c *Config) { c.EmbeddingDimension = 0 },
			wantErr: ErrInvalidEmbeddingDimension,
		},
		{
			name:    "dimension too large",
			mutate:  func(c *Config) { c.EmbeddingDimension = 5000 },
			wantErr: ErrInvalidEmbeddingDimension,
		},
		{
			name:    "empty collection name",
			mutate:  func(c *Config) { c.CollectionName = "" },
			wantErr: ErrInvalidCollectionName,
		},
		{
			name:    "zero chunk target",
			mutate:  func(c *Config) { c.ChunkTargetTokens = 0 },
			wantErr: ErrInvalidChunking,
		},
		{
			name:    "negative overlap",
			mutate:  func(c *Config) { c.ChunkOverlapTokens = -1 },
			wantErr: ErrInvalidChunking,
		},
		{
			name:    "overlap not below target",
			mutate:  func(c *Config) { c.ChunkOverlapTokens = c.ChunkTargetTokens },
			wantErr: ErrInvalidChunking,
		},
		{
			name:    "top k out of range",
			mutate:  func(c *Config) { c.RetrievalTopK = 0 },
			wantErr: ErrInvalidRetrieval,
		},
		{
			name:    "min score above one",
			mutate:  func(c *Config) { c.RetrievalMinScore = 1.5 },
			wantErr: ErrInvalidRetrieval,
		},
		{
			name:    "zero max idle",
			mutate:  func(c *Config) { c.SessionMaxIdleMinutes = 0 },
			wantErr: ErrInvalidSessionConfig,
		},
		{
			name:    "zero cleanup interval",
			mutate:  func(c *Config) { c.SessionCleanupMinutes = 0 },
			wantErr: ErrInvalidSessionConfig,
		},
		{
			name:    "negative history limit",
			mutate:  func(c *Config) { c.ChatHistoryMessages = -1 },
			wantErr: ErrInvalidSessionConfig,
		},
		{
			name:   "zero history limit disables context",
			mutate: func(c *Config) { c.ChatHistoryMessages = 0 },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr == nil {
				if err != nil {
					t.Fatalf("Validate() = %v, want nil", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Validate() = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateNil(t *testing.T) {
	var cfg *Config
	if err := cfg.Validate(); !errors.Is(err, ErrConfigNil) {
		t.Fatalf("Validate() = %v, want ErrConfigNil", err)
	}
}

func TestMarshalJSONMasksPassword(t *testing.T) {
	cfg := validConfig()
	cfg.PostgresPassword = "super-secret-value"

	data, err := json.Marshal(cfg)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if strings.Contains(string(data), "super-secret-value") {
		t.Error("marshaled config leaks postgres password")
	}
	if !strings.Contains(string(data), maskedValue) {
		t.Error("marshaled config does not contain mask placeholder")
	}
}

func TestMaskSecret(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"empty", "", ""},
		{"short fully masked", "abc123", maskedValue},
		{"exactly eight fully masked", "12345678", maskedValue},
		{"long keeps edges", "my_long_secret_key_123", "my<" + maskedValue + ">23"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := maskSecret(tt.input); got != tt.want {
				t.Errorf("maskSecret(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestEmbeddingModelName(t *testing.T) {
	cfg := validConfig()

	if got := cfg.EmbeddingModelName(); got != "deterministic" {
		t.Errorf("deterministic default = %q", got)
	}

	cfg.EmbeddingProvider = EmbeddingOllama
	if got := cfg.EmbeddingModelName(); got != "nomic-embed-text" {
		t.Errorf("ollama default = %q", got)
	}

	cfg.EmbeddingProvider = EmbeddingGemini
	if got := cfg.EmbeddingModelName(); got != DefaultGeminiEmbeddingModel {
		t.Errorf("gemini default = %q", got)
	}

	cfg.EmbeddingModel = "custom-model"
	if got := cfg.EmbeddingModelName(); got != "custom-model" {
		t.Errorf("explicit model = %q", got)
	}
}

func TestFullChatModelName(t *testing.T) {
	cfg := validConfig()

	cfg.ChatModel = "googleai/gemini-2.5-flash"
	if got := cfg.FullChatModelName(); got != "googleai/gemini-2.5-flash" {
		t.Errorf("qualified name = %q", got)
	}

	cfg.ChatModel = "gemini-2.5-flash"
	if got := cfg.FullChatModelName(); got != "googleai/gemini-2.5-flash" {
		t.Errorf("unqualified name = %q", got)
	}
}

func TestTracingEnabled(t *testing.T) {
	tc := TracingConfig{}
	if tc.Enabled() {
		t.Error("empty endpoint should disable tracing")
	}
	tc.Endpoint = "localhost:4318"
	if !tc.Enabled() {
		t.Error("non-empty endpoint should enable tracing")
	}
}
