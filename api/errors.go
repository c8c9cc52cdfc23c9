package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/smallnest/ragflow/rag"
)

// Error kinds reported in ErrorResponse.Kind.
const (
	KindBadRequest           = "bad_request"
	KindConfig               = "config"
	KindEmbeddingUnavailable = "embedding_unavailable"
	KindIndexWrite           = "index_write"
	KindRetrievalUnavailable = "retrieval_unavailable"
	KindGeneration           = "generation"
	KindCancelled            = "cancelled"
	KindInternal             = "internal"
)

// errorResponse maps err to a status code and a body. Unknown errors are
// reported without their message.
func errorResponse(err error) (int, ErrorResponse) {
	var (
		cfgErr      *rag.ConfigError
		unavailable *rag.EmbeddingUnavailableError
		writeErr    *rag.IndexWriteError
		genErr      *rag.GenerationError
		degraded    *rag.RetrievalDegradedError
	)

	switch {
	case errors.Is(err, rag.ErrEmptyQuestion), errors.As(err, &cfgErr):
		return http.StatusBadRequest, ErrorResponse{Error: err.Error(), Kind: KindConfig}
	case errors.As(err, &unavailable):
		return http.StatusServiceUnavailable, ErrorResponse{Error: unavailable.Error(), Kind: KindEmbeddingUnavailable}
	case errors.As(err, &writeErr):
		return http.StatusBadGateway, ErrorResponse{Error: writeErr.Error(), Kind: KindIndexWrite, UnwrittenIDs: writeErr.Unwritten}
	case errors.As(err, &genErr):
		return http.StatusBadGateway, ErrorResponse{Error: genErr.Error(), Kind: KindGeneration}
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable, ErrorResponse{Error: "request cancelled", Kind: KindCancelled}
	case errors.As(err, &degraded):
		return http.StatusServiceUnavailable, ErrorResponse{Error: degraded.Error(), Kind: KindRetrievalUnavailable}
	}
	return http.StatusInternalServerError, ErrorResponse{Error: "internal error", Kind: KindInternal}
}
