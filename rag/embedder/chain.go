package embedder

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/smallnest/ragflow/log"
	"github.com/smallnest/ragflow/rag"
)

const (
	// DefaultBatchSize is the number of texts sent to a provider per call.
	DefaultBatchSize = 32
	// DefaultTimeout bounds a single provider call.
	DefaultTimeout = 30 * time.Second
)

// Provider is one embedding model.
type Provider interface {
	// Name identifies the model, e.g. "text-embedding-3-small".
	Name() string
	// Dimension is the length of every vector the model returns.
	Dimension() int
	// EmbedBatch embeds texts, returning one vector per text in input order.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// Chain embeds texts with the first provider that succeeds for the whole
// input. The provider order is fixed at construction; a failure never changes
// which model the next call starts with.
type Chain struct {
	providers []Provider
	byName    map[string]Provider
	batchSize int
	timeout   time.Duration
	logger    log.Logger
}

// Option configures a Chain
type Option func(*Chain)

// WithBatchSize sets how many texts go into one provider call
func WithBatchSize(n int) Option {
	return func(c *Chain) {
		c.batchSize = n
	}
}

// WithTimeout sets the per-call timeout
func WithTimeout(d time.Duration) Option {
	return func(c *Chain) {
		c.timeout = d
	}
}

// WithLogger sets the logger
func WithLogger(l log.Logger) Option {
	return func(c *Chain) {
		c.logger = l
	}
}

var _ rag.Embedder = (*Chain)(nil)

// NewChain creates a fallback chain over providers, tried in the given order.
func NewChain(providers []Provider, opts ...Option) (*Chain, error) {
	if len(providers) == 0 {
		return nil, rag.NewConfigError("embedding_models", "at least one model is required")
	}

	c := &Chain{
		providers: providers,
		byName:    make(map[string]Provider, len(providers)),
		batchSize: DefaultBatchSize,
		timeout:   DefaultTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = log.Named(log.OrDefault(c.logger), "embedder")

	if c.batchSize <= 0 {
		return nil, rag.NewConfigError("embedding_batch_size", "must be positive, got %d", c.batchSize)
	}
	for _, p := range providers {
		if p.Dimension() <= 0 {
			return nil, rag.NewConfigError("embedding_models", "model %s has no dimension", p.Name())
		}
		if _, dup := c.byName[p.Name()]; dup {
			return nil, rag.NewConfigError("embedding_models", "model %s listed twice", p.Name())
		}
		c.byName[p.Name()] = p
	}
	return c, nil
}

// Models returns the model names in fallback order.
func (c *Chain) Models() []string {
	names := make([]string, len(c.providers))
	for i, p := range c.providers {
		names[i] = p.Name()
	}
	return names
}

// Dimension returns the dimension of the named model, or 0 if unknown.
func (c *Chain) Dimension(model string) int {
	if p, ok := c.byName[model]; ok {
		return p.Dimension()
	}
	return 0
}

// Embed implements rag.Embedder using the configured order.
func (c *Chain) Embed(ctx context.Context, texts []string) (*rag.Embedding, error) {
	return c.embed(ctx, c.providers, texts)
}

// EmbedWith implements rag.Embedder, trying only the named models in the
// given order. Use it when vectors must land in the semantic space of an
// existing index.
func (c *Chain) EmbedWith(ctx context.Context, models []string, texts []string) (*rag.Embedding, error) {
	if len(models) == 0 {
		return c.Embed(ctx, texts)
	}
	providers := make([]Provider, 0, len(models))
	for _, name := range models {
		p, ok := c.byName[name]
		if !ok {
			return nil, rag.NewConfigError("embedding_model", "unknown model %q", name)
		}
		providers = append(providers, p)
	}
	return c.embed(ctx, providers, texts)
}

func (c *Chain) embed(ctx context.Context, providers []Provider, texts []string) (*rag.Embedding, error) {
	if len(texts) == 0 {
		return &rag.Embedding{Model: providers[0].Name(), Dimension: providers[0].Dimension()}, nil
	}

	unavailable := &rag.EmbeddingUnavailableError{}
	for i, p := range providers {
		vectors, err := c.embedAll(ctx, p, texts)
		if err == nil {
			if i > 0 {
				c.logger.Warn("embedded %d texts with fallback model %s", len(texts), p.Name())
			}
			return &rag.Embedding{Model: p.Name(), Dimension: p.Dimension(), Vectors: vectors}, nil
		}

		var cfgErr *rag.ConfigError
		if errors.As(err, &cfgErr) {
			return nil, err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}

		unavailable.Failures = append(unavailable.Failures, rag.ModelFailure{Model: p.Name(), Err: err})
		if i < len(providers)-1 {
			c.logger.Warn("embedding model %s failed, trying %s: %v", p.Name(), providers[i+1].Name(), err)
		}
	}

	c.logger.Error("all embedding models failed: %v", unavailable)
	return nil, unavailable
}

// embedAll embeds every text with one provider. Any failing batch discards
// the whole result so that vectors of different models are never mixed.
func (c *Chain) embedAll(ctx context.Context, p Provider, texts []string) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += c.batchSize {
		end := min(start+c.batchSize, len(texts))
		batch := texts[start:end]

		vectors, err := c.call(ctx, p, batch)
		if err != nil {
			return nil, fmt.Errorf("batch %d-%d: %w", start, end, err)
		}
		if len(vectors) != len(batch) {
			return nil, fmt.Errorf("batch %d-%d: got %d vectors for %d texts", start, end, len(vectors), len(batch))
		}
		for j, v := range vectors {
			if len(v) != p.Dimension() {
				return nil, rag.NewConfigError("embedding_dimension",
					"model %s returned %d values for text %d, expected %d", p.Name(), len(v), start+j, p.Dimension())
			}
		}
		out = append(out, vectors...)
	}
	return out, nil
}

func (c *Chain) call(ctx context.Context, p Provider, batch []string) ([][]float32, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}
	return p.EmbedBatch(ctx, batch)
}
