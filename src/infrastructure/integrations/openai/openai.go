package openai

import (
	"context"
	"fmt"
	"net/http"

	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/openai"

	"shelf/src/core/querycache"
)

const (
	DefaultModel = "text-embedding-3-small"
	// DefaultDimensions is the vector length of DefaultModel
	DefaultDimensions = 1536
)

// Client generates query embeddings with the OpenAI embeddings API
type Client struct {
	embedder embeddings.Embedder
	model    string
}

// NewClient creates an OpenAI embedding client. baseURL may be empty to use
// the public API.
func NewClient(apiKey, model, baseURL string, c *http.Client) (*Client, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openai api key is required")
	}
	if model == "" {
		model = DefaultModel
	}

	opts := []openai.Option{
		openai.WithToken(apiKey),
		openai.WithEmbeddingModel(model),
	}
	if baseURL != "" {
		opts = append(opts, openai.WithBaseURL(baseURL))
	}
	if c != nil {
		opts = append(opts, openai.WithHTTPClient(c))
	}

	llm, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create openai client: %w", err)
	}

	embedder, err := embeddings.NewEmbedder(llm, embeddings.WithStripNewLines(false))
	if err != nil {
		return nil, fmt.Errorf("failed to create openai embedder: %w", err)
	}

	return &Client{
		embedder: embedder,
		model:    model,
	}, nil
}

// Embed generates an embedding vector for the given text
func (c *Client) Embed(ctx context.Context, text string) (querycache.Embedding, error) {
	vec, err := c.embedder.EmbedQuery(ctx, text)
	if err != nil {
		return querycache.Embedding{}, fmt.Errorf("openai embedding failed: %w", err)
	}
	return querycache.Embedding{Vector: vec, Model: c.model}, nil
}
