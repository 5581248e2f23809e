// Package embedding wraps an OpenAI-compatible embedding API behind a small
// client that validates input, normalizes text, and checks the returned
// vector's dimensionality.
package embedding

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/openai"
)

var (
	// ErrInvalidInput indicates empty or whitespace-only input text.
	ErrInvalidInput = errors.New("invalid input text")

	// ErrService wraps failures reported by the embedding provider,
	// including vectors of unexpected dimensionality.
	ErrService = errors.New("embedding service failure")
)

// defaultTimeout bounds a single embedding call when none is configured.
const defaultTimeout = 30 * time.Second

// Config holds the embedding provider settings.
type Config struct {
	// APIKey authenticates against the provider.
	APIKey string

	// BaseURL is the provider endpoint. Defaults to the OpenAI API.
	BaseURL string

	// Model is the embedding model name (e.g. text-embedding-3-small).
	Model string

	// Dimensions is the expected vector length. Vectors of any other
	// length are rejected.
	Dimensions int

	// Timeout bounds each embedding call. Defaults to 30s if <= 0.
	Timeout time.Duration
}

// queryEmbedder is the slice of langchaingo's embedder the client uses.
type queryEmbedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// Client converts text into fixed-length vectors via a remote embedding API.
// It performs no retries: provider failures surface to the caller wrapped in
// ErrService.
type Client struct {
	embedder   queryEmbedder
	dimensions int
	timeout    time.Duration
}

// NewClient builds a Client from cfg using langchaingo's OpenAI-compatible
// embedder.
func NewClient(cfg Config) (*Client, error) {
	if cfg.Model == "" {
		return nil, fmt.Errorf("embedding model is required")
	}

	opts := []openai.Option{
		openai.WithToken(cfg.APIKey),
		openai.WithEmbeddingModel(cfg.Model),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
	}

	llm, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("creating OpenAI client: %w", err)
	}
	embedder, err := embeddings.NewEmbedder(llm)
	if err != nil {
		return nil, fmt.Errorf("creating embedder: %w", err)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{embedder: embedder, dimensions: cfg.Dimensions, timeout: timeout}, nil
}

// Embed returns the embedding vector for text. Empty or whitespace-only
// text fails with ErrInvalidInput; newlines are flattened to spaces before
// the call, matching the provider's input expectations.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("%w: empty text", ErrInvalidInput)
	}
	text = strings.ReplaceAll(text, "\n", " ")

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	vector, err := c.embedder.EmbedQuery(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrService, err)
	}
	if c.dimensions > 0 && len(vector) != c.dimensions {
		return nil, fmt.Errorf("%w: provider returned vector of length %d, want %d",
			ErrService, len(vector), c.dimensions)
	}
	return vector, nil
}
