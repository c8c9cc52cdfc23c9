package embedder

import (
	"context"

	"github.com/tmc/langchaingo/embeddings"
)

// LangChainProvider adapts langchaingo's embeddings.Embedder to Provider
type LangChainProvider struct {
	name     string
	dim      int
	embedder embeddings.Embedder
}

// NewLangChainProvider creates a new adapter for langchaingo embedders.
// langchaingo embedders do not expose their dimension, so it must be given.
func NewLangChainProvider(name string, dim int, embedder embeddings.Embedder) *LangChainProvider {
	return &LangChainProvider{
		name:     name,
		dim:      dim,
		embedder: embedder,
	}
}

func (l *LangChainProvider) Name() string   { return l.name }
func (l *LangChainProvider) Dimension() int { return l.dim }

// EmbedBatch embeds texts using the underlying langchaingo embedder
func (l *LangChainProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	vectors, err := l.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		return nil, err
	}

	result := make([][]float32, len(vectors))
	for i, embedding := range vectors {
		result[i] = make([]float32, len(embedding))
		for j, val := range embedding {
			result[i][j] = float32(val)
		}
	}
	return result, nil
}
