package ollama

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/ollama/ollama/api"

	"shelf/src/core/querycache"
)

const (
	DefaultURL   = "http://localhost:11434"
	DefaultModel = "nomic-embed-text"
)

// Client generates query embeddings with a local Ollama server
type Client struct {
	api   *api.Client
	model string
}

// NewClient creates a new Ollama embedding client
func NewClient(baseURL, model string, c *http.Client) (*Client, error) {
	if baseURL == "" {
		baseURL = DefaultURL
	}
	if model == "" {
		model = DefaultModel
	}

	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid ollama url %q: %w", baseURL, err)
	}

	return &Client{
		api:   api.NewClient(u, c),
		model: model,
	}, nil
}

// Embed generates an embedding vector for the given text
func (c *Client) Embed(ctx context.Context, text string) (querycache.Embedding, error) {
	resp, err := c.api.Embed(ctx, &api.EmbedRequest{
		Model: c.model,
		Input: text,
	})
	if err != nil {
		return querycache.Embedding{}, fmt.Errorf("error making request: %w", err)
	}
	if len(resp.Embeddings) == 0 {
		return querycache.Embedding{}, fmt.Errorf("ollama returned no embeddings")
	}

	model := resp.Model
	if model == "" {
		model = c.model
	}

	return querycache.Embedding{
		Vector: resp.Embeddings[0],
		Model:  model,
	}, nil
}

// Ping checks that the server is reachable
func (c *Client) Ping(ctx context.Context) error {
	return c.api.Heartbeat(ctx)
}
