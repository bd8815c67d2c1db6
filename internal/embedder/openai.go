// Package embedder wraps an OpenAI-compatible embeddings endpoint
// (llama.cpp server, Ollama in OpenAI mode, or a hosted service). The client
// is constructed once and injected wherever embeddings are needed.
package embedder

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

// Config selects the embeddings endpoint and model.
type Config struct {
	BaseURL string // e.g. "http://127.0.0.1:8080/v1"
	APIKey  string // empty for local servers without auth
	Model   string
	Timeout time.Duration
}

// Client calls the /v1/embeddings endpoint.
type Client struct {
	api   *openai.Client
	model string
}

func New(cfg Config) *Client {
	c := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		c.BaseURL = cfg.BaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	c.HTTPClient = &http.Client{Timeout: timeout}
	return &Client{api: openai.NewClientWithConfig(c), model: cfg.Model}
}

// Model returns the configured model name.
func (c *Client) Model() string { return c.model }

// Embed returns one vector per input text, in input order, each L2-normalized
// after receipt (never assumed from the provider). Empty input yields empty
// output without a request.
func (c *Client) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	resp, err := c.api.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Model: openai.EmbeddingModel(c.model),
		Input: texts,
	})
	if err != nil {
		return nil, fmt.Errorf("embeddings request: %w", err)
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("expected %d embeddings, got %d", len(texts), len(resp.Data))
	}

	vectors := make([][]float32, len(resp.Data))
	for i, d := range resp.Data {
		vectors[i] = normalize(d.Embedding)
	}
	return vectors, nil
}

// EmbedOne embeds a single text, asserting exactly one vector comes back.
func (c *Client) EmbedOne(ctx context.Context, text string) ([]float32, error) {
	vectors, err := c.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vectors) != 1 {
		return nil, fmt.Errorf("expected 1 embedding, got %d", len(vectors))
	}
	return vectors[0], nil
}

// normalize scales v to unit L2 length in place. The epsilon guards against
// zero vectors.
func normalize(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	norm := math.Sqrt(sum) + 1e-8
	for i := range v {
		v[i] = float32(float64(v[i]) / norm)
	}
	return v
}
