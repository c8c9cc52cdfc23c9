package orchestrator

import (
	"context"
	"net/http"
	"slices"
	"sync"

	"github.com/smallnest/ragflow/graph"
	"github.com/smallnest/ragflow/log"
	"github.com/smallnest/ragflow/memory"
	"github.com/smallnest/ragflow/rag"
	"github.com/smallnest/ragflow/rag/generator"
	"github.com/smallnest/ragflow/rag/retriever"
	"github.com/smallnest/ragflow/rag/splitter"
	"github.com/smallnest/ragflow/rag/store"
)

const (
	// DefaultNamespace is used when a request names none.
	DefaultNamespace = "default"

	nodeChunk    = "chunk"
	nodeEmbed    = "embed"
	nodeIndex    = "index"
	nodeRetrieve = "retrieve"
	nodeMerge    = "merge"
	nodeGenerate = "generate"
)

// Embedder is an embedding chain that can list its models.
type Embedder interface {
	rag.Embedder
	Models() []string
}

// Orchestrator drives the write path (chunk, embed, index) and the read path
// (retrieve, merge, generate) of the pipeline.
type Orchestrator struct {
	embedder  Embedder
	index     rag.VectorIndex
	graph     rag.GraphStore
	generator rag.Generator
	history   memory.Store
	logger    log.Logger

	chunkSize    int
	chunkOverlap int
	namespace    string
	topK         int
	budget       int
	historyTurns int
	httpClient   *http.Client
	writerOpts   []store.WriterOption

	writer    *store.Writer
	retriever *retriever.HybridRetriever
	indexer   *graph.StateRunnable[indexState]
	answerer  *graph.StateRunnable[queryState]
	locks     *keyedLock

	mu     sync.RWMutex
	models map[string]string
}

// Option configures the Orchestrator
type Option func(*Orchestrator)

// WithGraphStore enables the graph path. Without it the pipeline is vector only.
func WithGraphStore(g rag.GraphStore) Option {
	return func(o *Orchestrator) {
		o.graph = g
	}
}

// WithHistory stores the turns of sessions named in queries.
func WithHistory(m memory.Store) Option {
	return func(o *Orchestrator) {
		o.history = m
	}
}

// WithLogger sets the logger
func WithLogger(l log.Logger) Option {
	return func(o *Orchestrator) {
		o.logger = l
	}
}

// WithChunking sets the chunk size and overlap in runes.
func WithChunking(size, overlap int) Option {
	return func(o *Orchestrator) {
		o.chunkSize = size
		o.chunkOverlap = overlap
	}
}

// WithDefaultNamespace sets the namespace used when a request names none.
func WithDefaultNamespace(ns string) Option {
	return func(o *Orchestrator) {
		o.namespace = ns
	}
}

// WithTopK sets the default number of results per retrieval path.
func WithTopK(k int) Option {
	return func(o *Orchestrator) {
		o.topK = k
	}
}

// WithBudget sets the default context budget in runes.
func WithBudget(n int) Option {
	return func(o *Orchestrator) {
		o.budget = n
	}
}

// WithHistoryTurns sets how many stored turns are loaded per session.
func WithHistoryTurns(n int) Option {
	return func(o *Orchestrator) {
		o.historyTurns = n
	}
}

// WithHTTPClient sets the client used to fetch URL sources.
func WithHTTPClient(c *http.Client) Option {
	return func(o *Orchestrator) {
		o.httpClient = c
	}
}

// WithWriterOptions configures the vector writer.
func WithWriterOptions(opts ...store.WriterOption) Option {
	return func(o *Orchestrator) {
		o.writerOpts = append(o.writerOpts, opts...)
	}
}

// WithNamespaceModel records that namespace holds vectors of model, as if
// it had been indexed by this process.
func WithNamespaceModel(namespace, model string) Option {
	return func(o *Orchestrator) {
		o.models[namespace] = model
	}
}

// New creates an Orchestrator.
func New(embedder Embedder, index rag.VectorIndex, gen rag.Generator, opts ...Option) (*Orchestrator, error) {
	if embedder == nil {
		return nil, rag.NewConfigError("embedder", "is required")
	}
	if index == nil {
		return nil, rag.NewConfigError("vector_index", "is required")
	}
	if gen == nil {
		return nil, rag.NewConfigError("generator", "is required")
	}

	o := &Orchestrator{
		embedder:     embedder,
		index:        index,
		generator:    gen,
		chunkSize:    splitter.DefaultChunkSize,
		chunkOverlap: splitter.DefaultChunkOverlap,
		namespace:    DefaultNamespace,
		topK:         retriever.DefaultTopK,
		budget:       retriever.DefaultBudget,
		historyTurns: generator.DefaultHistoryTurns,
		locks:        newKeyedLock(),
		models:       make(map[string]string),
	}
	for _, opt := range opts {
		opt(o)
	}
	o.logger = log.OrDefault(o.logger)

	if _, err := splitter.NewWindowSplitter(o.chunkSize, o.chunkOverlap); err != nil {
		return nil, err
	}
	if o.topK <= 0 {
		return nil, rag.NewConfigError("top_k", "must be positive, got %d", o.topK)
	}

	o.writer = store.NewWriter(index, append([]store.WriterOption{store.WithWriterLogger(log.Named(o.logger, "writer"))}, o.writerOpts...)...)

	var graphPath rag.Retriever
	if o.graph != nil {
		graphPath = retriever.NewGraphRetriever(o.graph)
	}
	o.retriever = retriever.NewHybridRetriever(retriever.NewVectorRetriever(o.writer, embedder), graphPath, log.Named(o.logger, "retriever"))

	var err error
	if o.indexer, err = o.buildIndexGraph(); err != nil {
		return nil, err
	}
	if o.answerer, err = o.buildQueryGraph(); err != nil {
		return nil, err
	}
	return o, nil
}

// modelOrder returns the embedding models to try for namespace. The model the
// namespace was indexed with comes first so that query vectors share its space.
func (o *Orchestrator) modelOrder(namespace string) []string {
	o.mu.RLock()
	model, ok := o.models[namespace]
	o.mu.RUnlock()

	all := o.embedder.Models()
	if !ok || !slices.Contains(all, model) {
		return all
	}
	order := []string{model}
	for _, m := range all {
		if m != model {
			order = append(order, m)
		}
	}
	return order
}

func (o *Orchestrator) learnModel(namespace, model string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.models[namespace] = model
}

// NamespaceModel returns the embedding model namespace was last indexed with.
func (o *Orchestrator) NamespaceModel(namespace string) (string, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	m, ok := o.models[namespace]
	return m, ok
}

// Count returns the number of chunks stored in namespace.
func (o *Orchestrator) Count(ctx context.Context, namespace string) (int, error) {
	return o.index.Count(ctx, o.resolveNamespace(namespace))
}

// Diagrams renders the write path and the read path as Mermaid flowcharts.
func (o *Orchestrator) Diagrams() (index, query string) {
	return o.indexer.DrawMermaid(), o.answerer.DrawMermaid()
}

func (o *Orchestrator) resolveNamespace(ns string) string {
	if ns == "" {
		return o.namespace
	}
	return ns
}
