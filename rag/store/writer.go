package store

import (
	"context"
	"errors"

	"github.com/smallnest/ragflow/graph"
	"github.com/smallnest/ragflow/log"
	"github.com/smallnest/ragflow/rag"
)

// DefaultWriteBatchSize is the number of records per Upsert call.
const DefaultWriteBatchSize = 100

// Writer wraps a rag.VectorIndex with dimension validation, batching and
// retries. Writes that still fail are reported as *rag.IndexWriteError
// listing exactly the records that were not persisted.
type Writer struct {
	index     rag.VectorIndex
	dimension int
	batchSize int
	retry     *graph.RetryConfig
	logger    log.Logger
}

var _ rag.VectorIndex = (*Writer)(nil)

// WriterOption configures a Writer
type WriterOption func(*Writer)

// WithDimension requires every written vector to have dimension d.
func WithDimension(d int) WriterOption {
	return func(w *Writer) {
		w.dimension = d
	}
}

// WithWriteBatchSize sets the Upsert batch size.
func WithWriteBatchSize(n int) WriterOption {
	return func(w *Writer) {
		if n > 0 {
			w.batchSize = n
		}
	}
}

// WithWriteRetry sets the retry policy for failed writes.
func WithWriteRetry(config *graph.RetryConfig) WriterOption {
	return func(w *Writer) {
		w.retry = config
	}
}

// WithWriterLogger sets the logger.
func WithWriterLogger(l log.Logger) WriterOption {
	return func(w *Writer) {
		w.logger = l
	}
}

// NewWriter wraps index.
func NewWriter(index rag.VectorIndex, opts ...WriterOption) *Writer {
	w := &Writer{
		index:     index,
		batchSize: DefaultWriteBatchSize,
		retry:     graph.DefaultRetryConfig(),
	}
	for _, opt := range opts {
		opt(w)
	}
	w.logger = log.OrDefault(w.logger)

	retry := *w.retry
	retry.RetryableErrors = func(err error) bool {
		var cfgErr *rag.ConfigError
		return !errors.As(err, &cfgErr)
	}
	w.retry = &retry
	return w
}

// validate checks that all records share one dimension, and the configured one if set.
func (w *Writer) validate(records []rag.VectorRecord) error {
	dim := w.dimension
	for _, r := range records {
		if dim == 0 {
			dim = len(r.Vector)
		}
		if len(r.Vector) != dim || dim == 0 {
			return rag.NewConfigError("vector", "record %s has dimension %d, expected %d", r.ID, len(r.Vector), dim)
		}
	}
	return nil
}

// Upsert implements rag.VectorIndex. Batches are written independently; a
// batch that fails after all retries does not stop the remaining ones.
func (w *Writer) Upsert(ctx context.Context, namespace string, records []rag.VectorRecord) error {
	if err := w.validate(records); err != nil {
		return err
	}

	var unwritten []string
	var lastErr error
	for start := 0; start < len(records); start += w.batchSize {
		batch := records[start:min(start+w.batchSize, len(records))]
		_, err := graph.Retry(ctx, w.retry, func(ctx context.Context) (struct{}, error) {
			return struct{}{}, w.index.Upsert(ctx, namespace, batch)
		})
		if err == nil {
			continue
		}

		var cfgErr *rag.ConfigError
		if errors.As(err, &cfgErr) {
			return err
		}
		w.logger.Error("failed to write %d records to %s: %v", len(batch), namespace, err)
		lastErr = err
		for _, r := range batch {
			unwritten = append(unwritten, r.ID)
		}
		if ctx.Err() != nil {
			for _, r := range records[start+len(batch):] {
				unwritten = append(unwritten, r.ID)
			}
			break
		}
	}

	if len(unwritten) > 0 {
		return &rag.IndexWriteError{Namespace: namespace, Unwritten: unwritten, Err: lastErr}
	}
	return nil
}

// ReplaceSource implements rag.VectorIndex. The replacement is retried as a
// whole; on failure the previous records of the source remain in place.
func (w *Writer) ReplaceSource(ctx context.Context, namespace, sourceID string, records []rag.VectorRecord) error {
	if err := w.validate(records); err != nil {
		return err
	}

	_, err := graph.Retry(ctx, w.retry, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, w.index.ReplaceSource(ctx, namespace, sourceID, records)
	})
	if err == nil {
		return nil
	}

	var cfgErr *rag.ConfigError
	if errors.As(err, &cfgErr) {
		return err
	}
	w.logger.Error("failed to replace source %s in %s: %v", sourceID, namespace, err)
	ids := make([]string, len(records))
	for i, r := range records {
		ids[i] = r.ID
	}
	return &rag.IndexWriteError{Namespace: namespace, Unwritten: ids, Err: err}
}

// DeleteSource implements rag.VectorIndex
func (w *Writer) DeleteSource(ctx context.Context, namespace, sourceID string) error {
	return w.index.DeleteSource(ctx, namespace, sourceID)
}

// Query implements rag.VectorIndex
func (w *Writer) Query(ctx context.Context, namespace string, vector []float32, k int) ([]rag.VectorMatch, error) {
	return w.index.Query(ctx, namespace, vector, k)
}

// Count implements rag.VectorIndex
func (w *Writer) Count(ctx context.Context, namespace string) (int, error) {
	return w.index.Count(ctx, namespace)
}
