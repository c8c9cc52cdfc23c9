// Package rag defines the data model shared by the ragflow retrieval pipeline.
//
// The pipeline turns Sources into Chunks, embeds them, stores the vectors in a
// VectorIndex and the document structure in a GraphStore. On query both stores
// are searched, the results merged into a budgeted Context and handed to a
// Generator together with recent ConversationTurns.
//
// # Subpackages
//
//   - splitter: fixed-window and language-aware chunking
//   - embedder: model fallback chain and embedding providers
//   - store: VectorIndex and GraphStore backends (memory, Redis, pgvector, FalkorDB)
//   - retriever: vector, graph and hybrid retrieval plus the context merger
//   - generator: prompt construction and chat-completion backends
//   - loader: turns files, HTML, Markdown and URLs into source text
//
// # Errors
//
// Failures are reported with typed errors that callers inspect with errors.As:
//
//	var unavailable *rag.EmbeddingUnavailableError
//	if errors.As(err, &unavailable) {
//		// every embedding model failed
//	}
//
// ConfigError is never retried. IndexWriteError lists the record IDs that were
// not persisted. RetrievalDegradedError accompanies a successful answer that
// used only one retrieval path.
package rag
