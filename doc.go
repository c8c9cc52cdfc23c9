// ragflow - Retrieval Augmented Generation over Vectors and Graphs
//
// ragflow indexes text sources into a vector index and a knowledge graph and
// answers questions from the merged context of both. Every request is driven by
// a small state machine, so each run leaves a transition log that shows how far
// it got and why it stopped.
//
// # Quick Start
//
// Install the command:
//
//	go install github.com/smallnest/ragflow/cmd/ragflow@latest
//
// Run the HTTP API with local embeddings and in-memory stores:
//
//	export EMBEDDING_MODELS=local/hashing:256
//	export OPENAI_API_KEY=sk-...
//	ragflow serve
//
// Index a source and ask a question:
//
//	curl -X POST localhost:8080/index -d '{"source_id": "doc1", "text": "..."}'
//	curl -X POST localhost:8080/query -d '{"question": "..."}'
//
// # Packages
//
//   - rag: data model, adapter interfaces and error taxonomy
//   - rag/splitter: fixed window and language aware chunking
//   - rag/embedder: embedding model fallback chain and providers
//   - rag/store: vector indexes (memory, Redis, pgvector) and graph stores (memory, FalkorDB)
//   - rag/retriever: vector, graph and hybrid retrieval plus the context merger
//   - rag/generator: prompt building and chat completion backends
//   - rag/loader: text, Markdown, HTML, PDF and URL sources
//   - graph: the typed state machine behind the orchestrator
//   - orchestrator: the index and query paths
//   - memory: conversation history stores
//   - api: HTTP handlers
//   - config: environment configuration
//   - log: leveled logging
//
// # Write Path
//
//	Idle -> Chunking -> Embedding -> Indexing -> Ready
//
// A source is chunked, embedded with the first model of the chain that
// answers, and replaces its previous version in the vector index. The graph
// gets Collection, Source and Chunk nodes. A graph failure leaves the vectors in
// place and marks the result as degraded.
//
// # Read Path
//
//	Idle -> Retrieving -> Merging -> Generating -> Done
//
// Vector and graph retrieval run concurrently. When one of them fails the
// answer is still produced and flagged as degraded; when both fail the query
// fails.
package ragflow // import "github.com/smallnest/ragflow"
