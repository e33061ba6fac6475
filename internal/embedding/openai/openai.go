package openai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"virtualta/internal/domain"
)

// Client is an OpenAI-compatible embeddings client implementing domain.Embedder.
type Client struct {
	api       *openai.Client
	model     string
	dimension int
}

// Config configures the OpenAI-compatible embeddings client.
type Config struct {
	BaseURL   string
	APIKeyEnv string
	Model     string
	Timeout   time.Duration
	Dimension int
}

// NewClient creates a new embeddings client using the provided configuration.
func NewClient(cfg Config) (*Client, error) {
	if cfg.Model == "" {
		cfg.Model = "text-embedding-ada-002"
	}
	api, err := NewAPIClient(cfg.BaseURL, cfg.APIKeyEnv, cfg.Timeout)
	if err != nil {
		return nil, err
	}
	return &Client{api: api, model: cfg.Model, dimension: cfg.Dimension}, nil
}

// NewAPIClient builds a go-openai client with the key read from apiKeyEnv.
func NewAPIClient(baseURL, apiKeyEnv string, timeout time.Duration) (*openai.Client, error) {
	if apiKeyEnv == "" {
		apiKeyEnv = "OPENAI_API_KEY"
	}
	key := strings.TrimSpace(os.Getenv(apiKeyEnv))
	if key == "" {
		return nil, fmt.Errorf("missing API key in env %s", apiKeyEnv)
	}
	if timeout == 0 {
		timeout = 60 * time.Second
	}
	oc := openai.DefaultConfig(key)
	if baseURL != "" {
		oc.BaseURL = strings.TrimRight(baseURL, "/")
	}
	oc.HTTPClient = &http.Client{Timeout: timeout}
	return openai.NewClientWithConfig(oc), nil
}

// Name returns the identifier of this embedder implementation.
func (c *Client) Name() string { return "openai" }

// Dimension returns the dimensionality of the produced embedding vectors.
// Zero until the first embedding when not configured.
func (c *Client) Dimension() int { return c.dimension }

// Embed returns an embedding vector for the given text.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := c.api.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Model: openai.EmbeddingModel(c.model),
		Input: []string{text},
	})
	if err != nil {
		return nil, ClassifyError("openai embeddings", err)
	}
	if len(resp.Data) == 0 || len(resp.Data[0].Embedding) == 0 {
		return nil, domain.ErrNoEmbedding
	}
	v := resp.Data[0].Embedding
	if c.dimension == 0 {
		c.dimension = len(v)
	} else if len(v) != c.dimension {
		return nil, fmt.Errorf("openai embeddings: got %d, want %d: %w", len(v), c.dimension, domain.ErrDimensionMismatch)
	}
	return v, nil
}

// ClassifyError maps a go-openai failure to the provider error taxonomy.
// HTTP 429 is a rate limit; every other call failure is transient.
func ClassifyError(op string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w", op, err)
	}
	status := 0
	var apiErr *openai.APIError
	var reqErr *openai.RequestError
	switch {
	case errors.As(err, &apiErr):
		status = apiErr.HTTPStatusCode
	case errors.As(err, &reqErr):
		status = reqErr.HTTPStatusCode
	}
	if status == http.StatusTooManyRequests {
		return fmt.Errorf("%s: %v: %w", op, err, domain.ErrRateLimited)
	}
	return fmt.Errorf("%s: %v: %w", op, err, domain.ErrTransientProvider)
}
