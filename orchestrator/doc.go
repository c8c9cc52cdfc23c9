// Package orchestrator drives the retrieval pipeline.
//
// The write path runs as a three node state graph,
//
//	idle -> chunking -> embedding -> indexing -> ready
//
// and the read path as
//
//	idle -> retrieving -> merging -> generating -> done
//
// Either path moves to failed with the originating error when a stage fails.
// Every run gets an ID and records its transitions in Run.States.
//
// Writes for the same source in the same namespace are serialized. The new
// chunks of a source replace the old ones in one step, so a failed or
// cancelled run leaves the previous version intact. The graph structure is
// written after the vectors; if that fails the result is marked
// GraphDegraded but the vectors stay committed.
//
// Example:
//
//	chain, _ := embedder.NewChain([]embedder.Provider{
//	    embedder.NewOpenAIProviderFromKey(key, "", "text-embedding-3-small", 1536),
//	    embedder.NewHashingProvider("local", 256),
//	})
//	o, err := orchestrator.New(chain, store.NewMemoryIndex(), gen,
//	    orchestrator.WithGraphStore(store.NewMemoryGraph()),
//	    orchestrator.WithHistory(memory.NewSlidingWindowMemory(50)),
//	)
//	_, err = o.Index(ctx, orchestrator.IndexRequest{SourceID: "doc1", Text: text})
//	res, err := o.Query(ctx, orchestrator.QueryRequest{Question: "What is Alpha?"})
package orchestrator
