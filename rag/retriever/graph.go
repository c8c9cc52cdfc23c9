package retriever

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"unicode"

	"github.com/smallnest/ragflow/rag"
)

// Graph labels and relationship types written by the indexer and read by the
// graph retriever.
const (
	LabelCollection = "Collection"
	LabelSource     = "Source"
	LabelChunk      = "Chunk"

	RelContains = "CONTAINS"
	RelHasChunk = "HAS_CHUNK"
	RelNext     = "NEXT"
)

// Chunk node property names.
const (
	PropChunkID       = "chunk_id"
	PropText          = "text"
	PropSourceID      = "source_id"
	PropSequenceIndex = "sequence_index"
	PropNamespace     = "namespace"
)

// DefaultMaxTerms caps the number of keywords matched per query.
const DefaultMaxTerms = 8

var stopWords = map[string]bool{
	"the": true, "and": true, "for": true, "are": true, "but": true, "not": true,
	"you": true, "all": true, "any": true, "can": true, "her": true, "was": true,
	"one": true, "our": true, "out": true, "has": true, "have": true, "how": true,
	"what": true, "when": true, "where": true, "which": true, "who": true, "why": true,
	"with": true, "this": true, "that": true, "from": true, "does": true, "into": true,
	"about": true, "there": true, "their": true, "they": true, "them": true, "is": true,
}

// Keywords returns the distinct lowercased words of text worth matching,
// in order of first appearance, at most limit of them.
func Keywords(text string, limit int) []string {
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})

	seen := make(map[string]bool)
	var out []string
	for _, w := range words {
		if len([]rune(w)) < 3 || stopWords[w] || seen[w] {
			continue
		}
		seen[w] = true
		out = append(out, w)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out
}

// ChunkKey is the graph key of a chunk node. Keys are namespaced so the same
// source may be indexed into several namespaces.
func ChunkKey(namespace, chunkID string) string {
	return namespace + "/" + chunkID
}

// SourceKey is the graph key of a source node.
func SourceKey(namespace, sourceID string) string {
	return namespace + "/" + sourceID
}

// GraphRetriever finds chunks whose text contains the query's keywords.
// A chunk's score is the fraction of keywords it contains.
type GraphRetriever struct {
	store    rag.GraphStore
	maxTerms int
}

var _ rag.Retriever = (*GraphRetriever)(nil)

// NewGraphRetriever creates a new graph retriever
func NewGraphRetriever(store rag.GraphStore) *GraphRetriever {
	return &GraphRetriever{store: store, maxTerms: DefaultMaxTerms}
}

// WithMaxTerms sets the keyword cap.
func (r *GraphRetriever) WithMaxTerms(n int) *GraphRetriever {
	if n > 0 {
		r.maxTerms = n
	}
	return r
}

type graphHit struct {
	node rag.GraphNode
	hits int
}

// Retrieve implements rag.Retriever
func (r *GraphRetriever) Retrieve(ctx context.Context, q rag.RetrievalQuery) ([]rag.RetrievalResult, error) {
	k := q.TopK
	if k <= 0 {
		k = DefaultTopK
	}
	terms := Keywords(q.Text, r.maxTerms)
	if len(terms) == 0 {
		return []rag.RetrievalResult{}, nil
	}

	pattern := rag.Pattern{
		Label:    LabelChunk,
		Where:    map[string]any{PropNamespace: "$ns"},
		Contains: map[string]any{PropText: "$term"},
	}

	hits := make(map[string]*graphHit)
	for _, term := range terms {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		recs, err := r.store.Match(ctx, pattern, map[string]any{"ns": q.Namespace, "term": term})
		if err != nil {
			return nil, fmt.Errorf("graph query failed: %w", err)
		}
		for _, rec := range recs {
			h, ok := hits[rec.Node.Key]
			if !ok {
				h = &graphHit{node: rec.Node}
				hits[rec.Node.Key] = h
			}
			h.hits++
		}
	}

	ranked := make([]*graphHit, 0, len(hits))
	for _, h := range hits {
		ranked = append(ranked, h)
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].hits != ranked[j].hits {
			return ranked[i].hits > ranked[j].hits
		}
		return ranked[i].node.Key < ranked[j].node.Key
	})
	if len(ranked) > k {
		ranked = ranked[:k]
	}

	results := make([]rag.RetrievalResult, len(ranked))
	for i, h := range ranked {
		results[i] = rag.RetrievalResult{
			Chunk:  chunkFromNode(h.node),
			Score:  float64(h.hits) / float64(len(terms)),
			Origin: rag.OriginGraph,
		}
	}
	return results, nil
}

// chunkFromNode rebuilds a chunk from the properties of a Chunk node.
func chunkFromNode(n rag.GraphNode) rag.Chunk {
	c := rag.Chunk{
		ID:       stringProp(n.Properties, PropChunkID),
		SourceID: stringProp(n.Properties, PropSourceID),
		Text:     stringProp(n.Properties, PropText),
	}
	if c.ID == "" {
		c.ID = n.Key
	}
	switch v := n.Properties[PropSequenceIndex].(type) {
	case int:
		c.SequenceIndex = v
	case int64:
		c.SequenceIndex = int(v)
	case float64:
		c.SequenceIndex = int(v)
	case string:
		c.SequenceIndex, _ = strconv.Atoi(v)
	}
	return c
}

func stringProp(props map[string]any, key string) string {
	v, ok := props[key]
	if !ok || v == nil {
		return ""
	}
	return fmt.Sprint(v)
}
