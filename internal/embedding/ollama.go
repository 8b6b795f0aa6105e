package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

// Ollama defaults.
const (
	DefaultOllamaBaseURL   = "http://localhost:11434"
	DefaultOllamaModel     = "nomic-embed-text"
	DefaultOllamaDimension = 768

	// ollamaBatchSize caps how many texts go into one HTTP request.
	ollamaBatchSize = 16

	ollamaRequestTimeout = 60 * time.Second
)

// Ollama produces embeddings through a local Ollama server's /api/embed
// endpoint. Requests are rate limited to avoid saturating the model runner.
type Ollama struct {
	baseURL   string
	model     string
	dimension int
	client    *http.Client
	limiter   *rate.Limiter
	logger    *slog.Logger
}

// OllamaOption configures an Ollama provider.
type OllamaOption func(*Ollama)

// WithOllamaBaseURL overrides the server address.
func WithOllamaBaseURL(url string) OllamaOption {
	return func(o *Ollama) {
		if url != "" {
			o.baseURL = url
		}
	}
}

// WithOllamaModel overrides the embedding model name.
func WithOllamaModel(model string) OllamaOption {
	return func(o *Ollama) {
		if model != "" {
			o.model = model
		}
	}
}

// WithOllamaDimension declares the model's output dimension.
func WithOllamaDimension(dim int) OllamaOption {
	return func(o *Ollama) {
		if dim > 0 {
			o.dimension = dim
		}
	}
}

// WithOllamaHTTPClient replaces the HTTP client, mainly for tests.
func WithOllamaHTTPClient(client *http.Client) OllamaOption {
	return func(o *Ollama) {
		if client != nil {
			o.client = client
		}
	}
}

// NewOllama creates an Ollama-backed provider.
func NewOllama(logger *slog.Logger, opts ...OllamaOption) *Ollama {
	o := &Ollama{
		baseURL:   DefaultOllamaBaseURL,
		model:     DefaultOllamaModel,
		dimension: DefaultOllamaDimension,
		client:    &http.Client{Timeout: ollamaRequestTimeout},
		limiter:   rate.NewLimiter(rate.Limit(10), 10),
		logger:    logger,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

type ollamaEmbedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type ollamaEmbedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
}

// Embed implements Provider.
func (o *Ollama) Embed(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, fmt.Errorf("%w: text is empty", ErrEmptyInput)
	}

	vectors, err := o.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedBatch implements Provider. Inputs are split into sub-batches so a
// large document does not produce one oversized request.
func (o *Ollama) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, fmt.Errorf("%w: no texts", ErrEmptyInput)
	}

	vectors := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += ollamaBatchSize {
		end := min(start+ollamaBatchSize, len(texts))

		batch, err := o.embedBatch(ctx, texts[start:end])
		if err != nil {
			return nil, fmt.Errorf("batch %d-%d: %w", start, end, err)
		}
		vectors = append(vectors, batch...)
	}
	return vectors, nil
}

func (o *Ollama) embedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if err := o.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%w: rate limiter: %w", ErrEmbeddingFailed, err)
	}

	body, err := json.Marshal(ollamaEmbedRequest{Model: o.model, Input: texts})
	if err != nil {
		return nil, fmt.Errorf("%w: marshal request: %w", ErrEmbeddingFailed, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+"/api/embed", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %w", ErrEmbeddingFailed, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEmbeddingFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("%w: server returned %d: %s", ErrEmbeddingFailed, resp.StatusCode, msg)
	}

	var parsed ollamaEmbedResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("%w: decode response: %w", ErrEmbeddingFailed, err)
	}

	if len(parsed.Embeddings) != len(texts) {
		return nil, fmt.Errorf("%w: got %d embeddings for %d texts", ErrEmbeddingFailed, len(parsed.Embeddings), len(texts))
	}
	for i, vec := range parsed.Embeddings {
		if len(vec) != o.dimension {
			return nil, fmt.Errorf("%w: embedding %d has dimension %d, want %d", ErrEmbeddingFailed, i, len(vec), o.dimension)
		}
	}

	o.logger.Debug("embedded batch", "model", o.model, "texts", len(texts))
	return parsed.Embeddings, nil
}

// Dimension implements Provider.
func (o *Ollama) Dimension() int { return o.dimension }

// ModelName implements Provider.
func (o *Ollama) ModelName() string { return o.model }
