package retriever

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/smallnest/ragflow/log"
	"github.com/smallnest/ragflow/rag"
)

// HybridResult holds the results of both retrieval paths. Degraded is set
// when exactly one path failed; the other path's results are still usable.
type HybridResult struct {
	Vector   []rag.RetrievalResult
	Graph    []rag.RetrievalResult
	Degraded *rag.RetrievalDegradedError
}

// HybridRetriever queries a vector and a graph retriever concurrently.
type HybridRetriever struct {
	vector rag.Retriever
	graph  rag.Retriever
	logger log.Logger
}

// NewHybridRetriever creates a hybrid retriever. graph may be nil, in which
// case only the vector path runs.
func NewHybridRetriever(vector, graph rag.Retriever, logger log.Logger) *HybridRetriever {
	return &HybridRetriever{
		vector: vector,
		graph:  graph,
		logger: log.OrDefault(logger),
	}
}

// Retrieve runs both paths. A failing path does not cancel the other one.
// If every configured path fails, the returned error is a
// *rag.RetrievalDegradedError carrying both causes.
func (h *HybridRetriever) Retrieve(ctx context.Context, q rag.RetrievalQuery) (*HybridResult, error) {
	var res HybridResult
	var vectorErr, graphErr error
	var g errgroup.Group

	g.Go(func() error {
		res.Vector, vectorErr = h.vector.Retrieve(ctx, q)
		return nil
	})
	if h.graph != nil {
		g.Go(func() error {
			res.Graph, graphErr = h.graph.Retrieve(ctx, q)
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	switch {
	case vectorErr != nil && (graphErr != nil || h.graph == nil):
		return nil, &rag.RetrievalDegradedError{VectorErr: vectorErr, GraphErr: graphErr}
	case vectorErr != nil || graphErr != nil:
		res.Degraded = &rag.RetrievalDegradedError{VectorErr: vectorErr, GraphErr: graphErr}
		h.logger.Warn("retrieval degraded in namespace %s: %v", q.Namespace, res.Degraded)
	}
	return &res, nil
}
