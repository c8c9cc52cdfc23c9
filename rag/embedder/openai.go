package embedder

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/sashabaranov/go-openai"

	"github.com/smallnest/ragflow/graph"
)

// OpenAIProvider embeds texts with an OpenAI compatible embeddings endpoint.
// Rate limits and server errors are retried with exponential backoff before
// the chain falls back to its next model.
type OpenAIProvider struct {
	client *openai.Client
	model  string
	dim    int
	retry  *graph.RetryConfig
}

// OpenAIOption configures an OpenAIProvider
type OpenAIOption func(*OpenAIProvider)

// WithRetry overrides the retry policy for transient failures.
func WithRetry(config *graph.RetryConfig) OpenAIOption {
	return func(p *OpenAIProvider) {
		p.retry = config
	}
}

// NewOpenAIProvider creates a provider for model with the given dimension.
func NewOpenAIProvider(client *openai.Client, model string, dim int, opts ...OpenAIOption) *OpenAIProvider {
	p := &OpenAIProvider{
		client: client,
		model:  model,
		dim:    dim,
		retry:  graph.DefaultRetryConfig(),
	}
	for _, opt := range opts {
		opt(p)
	}
	retry := *p.retry
	retry.RetryableErrors = isTransient
	p.retry = &retry
	return p
}

// NewOpenAIProviderFromKey builds the client from an API key and optional base URL.
func NewOpenAIProviderFromKey(apiKey, baseURL, model string, dim int, opts ...OpenAIOption) *OpenAIProvider {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return NewOpenAIProvider(openai.NewClientWithConfig(cfg), model, dim, opts...)
}

func (p *OpenAIProvider) Name() string   { return p.model }
func (p *OpenAIProvider) Dimension() int { return p.dim }

// EmbedBatch implements Provider
func (p *OpenAIProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	resp, err := graph.Retry(ctx, p.retry, func(ctx context.Context) (openai.EmbeddingResponse, error) {
		return p.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
			Input: texts,
			Model: openai.EmbeddingModel(p.model),
		})
	})
	if err != nil {
		return nil, fmt.Errorf("openai embeddings: %w", err)
	}

	out := make([][]float32, len(texts))
	for _, d := range resp.Data {
		if d.Index < 0 || d.Index >= len(out) {
			return nil, fmt.Errorf("openai embeddings: index %d out of range", d.Index)
		}
		out[d.Index] = d.Embedding
	}
	for i, v := range out {
		if v == nil {
			return nil, fmt.Errorf("openai embeddings: missing vector for text %d", i)
		}
	}
	return out, nil
}

// isTransient reports whether err is worth retrying: rate limits, server
// errors and transport failures. Client errors such as a bad key are not.
func isTransient(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return retryableStatus(apiErr.HTTPStatusCode)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return retryableStatus(reqErr.HTTPStatusCode)
	}
	return true
}

func retryableStatus(code int) bool {
	return code == http.StatusTooManyRequests || code >= http.StatusInternalServerError
}
