package ollama

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/ollama/ollama/api"
)

const (
	DefaultURL = "http://localhost:11434/api"
)

// Client wraps the ollama API for embedding generation
type Client struct {
	api *api.Client
}

// NewClient creates a new Ollama API client. The configured URL may carry
// the legacy /api suffix; the underlying client adds its own path prefix.
func NewClient(baseURL string, c *http.Client) (*Client, error) {
	if baseURL == "" {
		baseURL = DefaultURL
	}

	base, err := url.Parse(strings.TrimSuffix(baseURL, "/api"))
	if err != nil {
		return nil, fmt.Errorf("invalid ollama url %q: %w", baseURL, err)
	}

	return &Client{
		api: api.NewClient(base, c),
	}, nil
}

// Embed generates an embedding vector for the given text using the specified model
func (c *Client) Embed(ctx context.Context, model string, text string) ([]float32, error) {
	resp, err := c.api.Embeddings(ctx, &api.EmbeddingRequest{
		Model:  model,
		Prompt: text,
	})
	if err != nil {
		return nil, fmt.Errorf("error making request: %w", err)
	}

	if len(resp.Embedding) == 0 {
		return nil, fmt.Errorf("no embedding returned for model %s", model)
	}

	// Convert float64 to float32
	embedding32 := make([]float32, len(resp.Embedding))
	for i, v := range resp.Embedding {
		embedding32[i] = float32(v)
	}

	return embedding32, nil
}

// Probe returns a health check that lists the server's local models.
func (c *Client) Probe() func(ctx context.Context) error {
	return func(ctx context.Context) error {
		if _, err := c.api.List(ctx); err != nil {
			return fmt.Errorf("ollama unreachable: %w", err)
		}
		return nil
	}
}
