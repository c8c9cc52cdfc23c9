package retriever

import (
	"context"
	"fmt"

	"github.com/smallnest/ragflow/rag"
)

// DefaultTopK is the number of results a retriever returns when the query
// does not say otherwise.
const DefaultTopK = 5

// VectorRetriever implements retrieval by vector similarity
type VectorRetriever struct {
	index    rag.VectorIndex
	embedder rag.Embedder
}

var _ rag.Retriever = (*VectorRetriever)(nil)

// NewVectorRetriever creates a new vector retriever. The embedder is used for
// queries that carry text but no vector; it may be nil otherwise.
func NewVectorRetriever(index rag.VectorIndex, embedder rag.Embedder) *VectorRetriever {
	return &VectorRetriever{
		index:    index,
		embedder: embedder,
	}
}

// Retrieve implements rag.Retriever
func (r *VectorRetriever) Retrieve(ctx context.Context, q rag.RetrievalQuery) ([]rag.RetrievalResult, error) {
	k := q.TopK
	if k <= 0 {
		k = DefaultTopK
	}

	vector := q.Vector
	if len(vector) == 0 {
		if r.embedder == nil {
			return nil, rag.NewConfigError("query", "no vector and no embedder")
		}
		emb, err := r.embedder.EmbedWith(ctx, q.Models, []string{q.Text})
		if err != nil {
			return nil, fmt.Errorf("failed to embed query: %w", err)
		}
		vector = emb.Vectors[0]
	}

	matches, err := r.index.Query(ctx, q.Namespace, vector, k)
	if err != nil {
		return nil, fmt.Errorf("vector search failed: %w", err)
	}

	results := make([]rag.RetrievalResult, len(matches))
	for i, m := range matches {
		results[i] = rag.RetrievalResult{
			Chunk:  m.Record.Chunk(),
			Score:  m.Score,
			Origin: rag.OriginVector,
		}
	}
	return results, nil
}
