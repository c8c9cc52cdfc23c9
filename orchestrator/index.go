package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"time"

	"github.com/smallnest/ragflow/graph"
	"github.com/smallnest/ragflow/rag"
	"github.com/smallnest/ragflow/rag/loader"
	"github.com/smallnest/ragflow/rag/retriever"
	"github.com/smallnest/ragflow/rag/splitter"
)

// graphCleanupTimeout bounds the removal of a half-written source from the graph.
const graphCleanupTimeout = 30 * time.Second

// IndexRequest describes one Source to (re)index. Exactly one of Text, Files,
// URL or Documents provides its content.
type IndexRequest struct {
	SourceID  string
	Namespace string
	Kind      rag.SourceKind
	Text      string
	Files     []loader.File
	URL       string
	Documents []loader.Document
	Metadata  map[string]string
}

// IndexResult reports a write path run. It is returned on failure too, so
// the caller can inspect the run.
type IndexResult struct {
	SourceID      string
	Namespace     string
	ChunksIndexed int
	Model         string
	GraphDegraded bool
	Warnings      []string
	Run           *Run
}

type indexState struct {
	Request   IndexRequest
	Namespace string
	Kind      rag.SourceKind
	Chunks    []rag.Chunk
	Model     string
	GraphErr  error
}

func (o *Orchestrator) buildIndexGraph() (*graph.StateRunnable[indexState], error) {
	g := graph.NewStateGraph[indexState]()
	g.AddNode(nodeChunk, "Load the source and split it into chunks", o.chunkNode)
	g.AddNode(nodeEmbed, "Embed every chunk with one model", o.embedNode)
	g.AddNode(nodeIndex, "Replace the source in the vector index and graph", o.indexNode)
	g.SetEntryPoint(nodeChunk)
	g.AddEdge(nodeChunk, nodeEmbed)
	g.AddEdge(nodeEmbed, nodeIndex)
	g.AddEdge(nodeIndex, graph.END)
	return g.Compile()
}

// Index runs the write path for one Source. Runs for the same Source in the
// same namespace are serialized; a run either commits all new chunks or
// leaves the previous version in place.
func (o *Orchestrator) Index(ctx context.Context, req IndexRequest) (*IndexResult, error) {
	run := newRun()
	ns := o.resolveNamespace(req.Namespace)
	res := &IndexResult{SourceID: req.SourceID, Namespace: ns, Run: run}

	kind, err := validateIndex(req)
	if err != nil {
		run.fail(err)
		return res, err
	}

	release, err := o.locks.Lock(ctx, retriever.SourceKey(ns, req.SourceID))
	if err != nil {
		run.fail(err)
		return res, err
	}
	defer release()

	o.logger.Info("indexing source %s into %s (run %s)", req.SourceID, ns, run.ID)
	state, err := o.indexer.Invoke(ctx, indexState{Request: req, Namespace: ns, Kind: kind}, tracker[indexState](run, o.logger))
	if err != nil {
		err = stageError(err)
		run.fail(err)
		o.logger.Error("indexing source %s failed: %v", req.SourceID, err)
		return res, err
	}

	res.ChunksIndexed = len(state.Chunks)
	res.Model = state.Model
	if state.GraphErr != nil {
		res.GraphDegraded = true
		res.Warnings = append(res.Warnings, "graph write failed: "+state.GraphErr.Error())
	}
	run.enter(StateReady)
	return res, nil
}

func validateIndex(req IndexRequest) (rag.SourceKind, error) {
	if req.SourceID == "" {
		return "", rag.NewConfigError("source_id", "is required")
	}

	inputs := 0
	kind := rag.SourceDocument
	if req.Text != "" {
		inputs++
	}
	if len(req.Documents) > 0 {
		inputs++
	}
	if len(req.Files) > 0 {
		inputs++
		kind = rag.SourceFile
	}
	if req.URL != "" {
		inputs++
		kind = rag.SourceURL
	}
	if inputs > 1 {
		return "", rag.NewConfigError("source", "only one of text, files or url may be given")
	}

	if req.Kind != "" {
		if !req.Kind.Valid() {
			return "", rag.NewConfigError("kind", "unknown source kind %q", req.Kind)
		}
		kind = req.Kind
	}
	return kind, nil
}

func (o *Orchestrator) loaderFor(req IndexRequest) loader.Loader {
	switch {
	case len(req.Documents) > 0:
		return loader.NewStaticLoader(req.Documents...)
	case req.URL != "":
		var opts []loader.URLLoaderOption
		if o.httpClient != nil {
			opts = append(opts, loader.WithHTTPClient(o.httpClient))
		}
		return loader.NewURLLoader(req.URL, opts...)
	case len(req.Files) > 0:
		return loader.NewFilesLoader(req.Files)
	default:
		return loader.NewStaticLoader(loader.FromText(req.Text, nil))
	}
}

// split chunks plain text by rune windows and code on its own structure.
func (o *Orchestrator) split(doc loader.Document) ([]string, error) {
	if doc.Language == "" || doc.Language == "text" {
		return splitter.Chunk(doc.Text, o.chunkSize, o.chunkOverlap)
	}
	s, err := splitter.ForLanguage(doc.Language, o.chunkSize, o.chunkOverlap)
	if err != nil {
		return nil, err
	}
	return s.Split(doc.Text)
}

func (o *Orchestrator) chunkNode(ctx context.Context, state indexState) (indexState, error) {
	req := state.Request
	docs, err := o.loaderFor(req).Load(ctx)
	if err != nil {
		return state, fmt.Errorf("failed to load source %s: %w", req.SourceID, err)
	}

	var chunks []rag.Chunk
	for _, doc := range docs {
		texts, err := o.split(doc)
		if err != nil {
			return state, err
		}
		for _, text := range texts {
			seq := len(chunks)
			md := map[string]string{"kind": string(state.Kind)}
			maps.Copy(md, req.Metadata)
			maps.Copy(md, doc.Metadata)
			chunks = append(chunks, rag.Chunk{
				ID:            rag.ChunkID(req.SourceID, seq),
				SourceID:      req.SourceID,
				Text:          text,
				SequenceIndex: seq,
				Metadata:      md,
			})
		}
	}

	state.Chunks = chunks
	o.logger.Debug("source %s split into %d chunks from %d documents", req.SourceID, len(chunks), len(docs))
	return state, nil
}

func (o *Orchestrator) embedNode(ctx context.Context, state indexState) (indexState, error) {
	if len(state.Chunks) == 0 {
		return state, nil
	}

	texts := make([]string, len(state.Chunks))
	for i, c := range state.Chunks {
		texts[i] = c.Text
	}
	emb, err := o.embedder.EmbedWith(ctx, o.modelOrder(state.Namespace), texts)
	if err != nil {
		return state, err
	}
	if len(emb.Vectors) != len(texts) {
		return state, fmt.Errorf("model %s returned %d vectors for %d chunks", emb.Model, len(emb.Vectors), len(texts))
	}

	chunks := slices.Clone(state.Chunks)
	for i := range chunks {
		chunks[i].Vector = emb.Vectors[i]
	}
	state.Chunks = chunks
	state.Model = emb.Model
	return state, nil
}

func (o *Orchestrator) indexNode(ctx context.Context, state indexState) (indexState, error) {
	records := make([]rag.VectorRecord, len(state.Chunks))
	for i, c := range state.Chunks {
		records[i] = rag.RecordFromChunk(c)
	}
	if err := o.writer.ReplaceSource(ctx, state.Namespace, state.Request.SourceID, records); err != nil {
		return state, err
	}
	if state.Model != "" {
		o.learnModel(state.Namespace, state.Model)
	}

	if o.graph != nil {
		if err := o.writeGraph(ctx, state.Namespace, state.Request.SourceID, state.Kind, state.Chunks); err != nil {
			o.logger.Warn("graph write for source %s in %s failed: %v", state.Request.SourceID, state.Namespace, err)
			state.GraphErr = err
			o.dropGraphSource(ctx, state.Namespace, state.Request.SourceID, state.Chunks)
		}
	}
	return state, nil
}

// writeGraph records the structure of a source:
//
//	(:Collection)-[:CONTAINS]->(:Source)-[:HAS_CHUNK]->(:Chunk)-[:NEXT]->(:Chunk)
//
// Chunk nodes left over from a previous, longer version are deleted.
func (o *Orchestrator) writeGraph(ctx context.Context, ns, sourceID string, kind rag.SourceKind, chunks []rag.Chunk) error {
	collection := rag.NodeRef{Label: retriever.LabelCollection, Key: ns}
	source := rag.NodeRef{Label: retriever.LabelSource, Key: retriever.SourceKey(ns, sourceID)}

	if err := o.graph.UpsertNode(ctx, collection.Label, collection.Key, map[string]any{
		retriever.PropNamespace: ns,
	}); err != nil {
		return err
	}
	if err := o.graph.UpsertNode(ctx, source.Label, source.Key, map[string]any{
		retriever.PropSourceID:  sourceID,
		retriever.PropNamespace: ns,
		"kind":                  string(kind),
	}); err != nil {
		return err
	}
	if err := o.graph.UpsertRelationship(ctx, collection, source, retriever.RelContains, nil); err != nil {
		return err
	}

	existing, err := o.graph.Match(ctx, rag.Pattern{
		Label:        retriever.LabelSource,
		Where:        map[string]any{"key": "$key"},
		Relationship: retriever.RelHasChunk,
		TargetLabel:  retriever.LabelChunk,
	}, map[string]any{"key": source.Key})
	if err != nil {
		return err
	}

	current := make(map[string]bool, len(chunks))
	var prev *rag.NodeRef
	for _, c := range chunks {
		ref := rag.NodeRef{Label: retriever.LabelChunk, Key: retriever.ChunkKey(ns, c.ID)}
		current[ref.Key] = true
		if err := o.graph.UpsertNode(ctx, ref.Label, ref.Key, map[string]any{
			retriever.PropChunkID:       c.ID,
			retriever.PropText:          c.Text,
			retriever.PropSourceID:      c.SourceID,
			retriever.PropSequenceIndex: c.SequenceIndex,
			retriever.PropNamespace:     ns,
		}); err != nil {
			return err
		}
		if err := o.graph.UpsertRelationship(ctx, source, ref, retriever.RelHasChunk, map[string]any{
			retriever.PropSequenceIndex: c.SequenceIndex,
		}); err != nil {
			return err
		}
		if prev != nil {
			if err := o.graph.UpsertRelationship(ctx, *prev, ref, retriever.RelNext, nil); err != nil {
				return err
			}
		}
		prev = &ref
	}

	var stale []string
	for _, rec := range existing {
		if rec.Related != nil && !current[rec.Related.Key] {
			stale = append(stale, rec.Related.Key)
		}
	}
	if len(stale) > 0 {
		o.logger.Debug("removing %d stale chunks of source %s", len(stale), sourceID)
		return o.graph.DeleteNodes(ctx, retriever.LabelChunk, stale)
	}
	return nil
}

// DeleteSource removes a source's chunks from the vector index and graph.
func (o *Orchestrator) DeleteSource(ctx context.Context, namespace, sourceID string) error {
	if sourceID == "" {
		return rag.NewConfigError("source_id", "is required")
	}
	ns := o.resolveNamespace(namespace)

	release, err := o.locks.Lock(ctx, retriever.SourceKey(ns, sourceID))
	if err != nil {
		return err
	}
	defer release()

	if err := o.writer.DeleteSource(ctx, ns, sourceID); err != nil {
		return err
	}
	if o.graph == nil {
		return nil
	}

	return o.removeGraphSource(ctx, ns, sourceID, nil)
}

// removeGraphSource deletes the Source node of sourceID with every Chunk
// linked to it, plus the chunk keys in extra.
func (o *Orchestrator) removeGraphSource(ctx context.Context, ns, sourceID string, extra []string) error {
	existing, err := o.graph.Match(ctx, rag.Pattern{
		Label:        retriever.LabelSource,
		Where:        map[string]any{"key": "$key"},
		Relationship: retriever.RelHasChunk,
		TargetLabel:  retriever.LabelChunk,
	}, map[string]any{"key": retriever.SourceKey(ns, sourceID)})
	if err != nil {
		return err
	}
	keys := slices.Clone(extra)
	for _, rec := range existing {
		if rec.Related != nil && !slices.Contains(keys, rec.Related.Key) {
			keys = append(keys, rec.Related.Key)
		}
	}
	if len(keys) > 0 {
		if err := o.graph.DeleteNodes(ctx, retriever.LabelChunk, keys); err != nil {
			return err
		}
	}
	return o.graph.DeleteNodes(ctx, retriever.LabelSource, []string{retriever.SourceKey(ns, sourceID)})
}

// dropGraphSource clears a source whose graph write failed partway, so the
// graph path holds no version of it instead of a mix of two. It runs even
// when ctx was cancelled, bounded by graphCleanupTimeout.
func (o *Orchestrator) dropGraphSource(ctx context.Context, ns, sourceID string, chunks []rag.Chunk) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), graphCleanupTimeout)
	defer cancel()

	written := make([]string, len(chunks))
	for i, c := range chunks {
		written[i] = retriever.ChunkKey(ns, c.ID)
	}
	if err := o.removeGraphSource(ctx, ns, sourceID, written); err != nil {
		o.logger.Error("failed to clear graph entries of source %s in %s: %v", sourceID, ns, err)
	}
}

// stageError strips the node wrapper so callers see the stage's own error.
func stageError(err error) error {
	var nodeErr *graph.NodeError
	if errors.As(err, &nodeErr) {
		return nodeErr.Err
	}
	return err
}
