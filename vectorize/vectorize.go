// Package vectorize converts text to float32 vectors for relevance
// scoring, and provides the vector math the pipeline builds on.
//
// Three backends implement Embedder: any OpenAI-compatible
// /v1/embeddings server, the Gemini API, and a noop that returns zero
// vectors when nothing is configured. Vectors travel through the store
// as little-endian float32 blobs (SerializeVector) and are compared
// with CosineSimilarity.
package vectorize

import (
	"context"
	"log/slog"
	"time"
)

// Embedder converts text to vectors.
type Embedder interface {
	// Embed returns the embedding vector for a single text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch returns embeddings for multiple texts in one call.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimension returns the vector dimension, or 0 before the first
	// call when auto-detecting.
	Dimension() int

	// Model returns the backend model name.
	Model() string
}

// Config selects and configures an embedding backend.
type Config struct {
	// Provider picks the backend: "openai" (any compatible server),
	// "gemini", or "" to infer — Gemini when APIKey is set, the
	// OpenAI-compatible client when Endpoint is set, noop otherwise.
	Provider string `yaml:"provider"`

	// Endpoint is the base URL of an OpenAI-compatible embedding server.
	Endpoint string `yaml:"endpoint"`

	// Model is the model name sent with each request.
	Model string `yaml:"model"`

	// APIKey authenticates requests: Bearer token for the
	// OpenAI-compatible server, API key for Gemini.
	APIKey string `yaml:"api_key"`

	// Dimension is the expected vector size. 0 auto-detects on first call.
	Dimension int `yaml:"dimension"`

	// BatchSize caps texts per request. Default 32.
	BatchSize int `yaml:"batch_size"`

	// Timeout per HTTP request. Default 30s.
	Timeout time.Duration `yaml:"timeout"`

	Logger *slog.Logger `yaml:"-"`
}

func (c *Config) defaults() {
	if c.BatchSize <= 0 {
		c.BatchSize = 32
	}
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// New creates an Embedder for the configured backend. With nothing
// configured it returns a noop embedder producing zero vectors, so the
// pipeline runs end to end without a scoring backend.
func New(ctx context.Context, cfg Config) (Embedder, error) {
	cfg.defaults()

	provider := cfg.Provider
	if provider == "" {
		switch {
		case cfg.Endpoint != "":
			provider = "openai"
		case cfg.APIKey != "":
			provider = "gemini"
		}
	}

	switch provider {
	case "gemini":
		return newGeminiClient(ctx, cfg)
	case "openai":
		return newOpenAIClient(cfg), nil
	default:
		dim := cfg.Dimension
		if dim <= 0 {
			dim = 768
		}
		cfg.Logger.Warn("vectorize: no backend configured, scores will be zero")
		return &noopEmbedder{dim: dim, model: cfg.Model}, nil
	}
}

// noopEmbedder returns zero vectors. Callers detect them with
// IsZeroVector and treat the result as no signal, so every candidate
// scores below any threshold.
type noopEmbedder struct {
	dim   int
	model string
}

func (n *noopEmbedder) Embed(_ context.Context, _ string) ([]float32, error) {
	return make([]float32, n.dim), nil
}

func (n *noopEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range out {
		out[i] = make([]float32, n.dim)
	}
	return out, nil
}

func (n *noopEmbedder) Dimension() int { return n.dim }
func (n *noopEmbedder) Model() string  { return n.model }
