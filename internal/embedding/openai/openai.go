package openai

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	sdk "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// EmbeddingsAPI is the subset of the SDK client used here.
type EmbeddingsAPI interface {
	New(ctx context.Context, body sdk.EmbeddingNewParams, opts ...option.RequestOption) (*sdk.CreateEmbeddingResponse, error)
}

// Client is an OpenAI-compatible embeddings client implementing the Embedder interface.
type Client struct {
	api       EmbeddingsAPI
	model     string
	dimension int
}

// Config configures the OpenAI-compatible embeddings client.
type Config struct {
	BaseURL    string
	APIKeyEnv  string
	Model      string
	Dimension  int
	Timeout    time.Duration
	MaxRetries int
}

// NewClient creates a new embeddings client using the provided configuration.
func NewClient(cfg Config) (*Client, error) {
	key := os.Getenv(cfg.APIKeyEnv)
	if key == "" {
		return nil, fmt.Errorf("missing API key in env %s", cfg.APIKeyEnv)
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	client := sdk.NewClient(
		option.WithAPIKey(key),
		option.WithBaseURL(cfg.BaseURL),
		option.WithMaxRetries(cfg.MaxRetries),
		option.WithRequestTimeout(cfg.Timeout),
	)
	return NewWithAPI(&client.Embeddings, cfg.Model, cfg.Dimension), nil
}

// NewWithAPI builds a client around an existing embeddings API.
func NewWithAPI(api EmbeddingsAPI, model string, dimension int) *Client {
	if model == "" {
		model = "text-embedding-3-small"
	}
	return &Client{api: api, model: model, dimension: dimension}
}

// Name returns the identifier of this embedder implementation.
func (c *Client) Name() string { return "openai" }

// Dimension returns the dimensionality of the produced embedding vectors.
func (c *Client) Dimension() int { return c.dimension }

// Embed returns an embedding vector for the given text.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	params := sdk.EmbeddingNewParams{
		Input: sdk.EmbeddingNewParamsInputUnion{OfString: sdk.String(text)},
		Model: sdk.EmbeddingModel(c.model),
	}
	// Only the v3 family accepts a requested output size.
	if c.dimension > 0 && strings.HasPrefix(c.model, "text-embedding-3") {
		params.Dimensions = sdk.Int(int64(c.dimension))
	}
	resp, err := c.api.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("openai embeddings: %w", err)
	}
	if len(resp.Data) == 0 || len(resp.Data[0].Embedding) == 0 {
		return nil, errors.New("no embedding returned")
	}
	raw := resp.Data[0].Embedding
	if c.dimension > 0 && len(raw) != c.dimension {
		return nil, fmt.Errorf("embedding dimension %d, configured %d", len(raw), c.dimension)
	}
	vec := make([]float32, len(raw))
	for i, v := range raw {
		vec[i] = float32(v)
	}
	return vec, nil
}
