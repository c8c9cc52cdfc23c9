package store

import (
	"context"
	"testing"

	"github.com/smallnest/ragflow/rag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewGraphStore(t *testing.T) {
	g, err := NewGraphStore("memory://")
	require.NoError(t, err)
	assert.IsType(t, &MemoryGraph{}, g)

	g, err = NewGraphStore("falkordb://localhost:6379/kb")
	require.NoError(t, err)
	fg := g.(*FalkorDBGraph)
	assert.Equal(t, "kb", fg.graphName)
	_ = fg.Close()

	_, err = NewGraphStore("neo4j://localhost")
	var cfg *rag.ConfigError
	assert.ErrorAs(t, err, &cfg)
}

func TestMemoryGraph(t *testing.T) {
	ctx := context.Background()
	g := NewMemoryGraph()

	collection := rag.NodeRef{Label: "Collection", Key: "docs"}
	source := rag.NodeRef{Label: "Source", Key: "docs/readme"}

	t.Run("Upsert merges properties", func(t *testing.T) {
		require.NoError(t, g.UpsertNode(ctx, "Source", "docs/readme", map[string]any{"kind": "file"}))
		require.NoError(t, g.UpsertNode(ctx, "Source", "docs/readme", map[string]any{"title": "Readme"}))

		recs, err := g.Match(ctx, rag.Pattern{Label: "Source"}, nil)
		require.NoError(t, err)
		require.Len(t, recs, 1)
		assert.Equal(t, "file", recs[0].Node.Properties["kind"])
		assert.Equal(t, "Readme", recs[0].Node.Properties["title"])
	})

	t.Run("Relationships are idempotent", func(t *testing.T) {
		require.NoError(t, g.UpsertRelationship(ctx, collection, source, "CONTAINS", nil))
		require.NoError(t, g.UpsertRelationship(ctx, collection, source, "CONTAINS", nil))

		for i, text := range []string{"Alpha beta", "Gamma delta", "beta gamma"} {
			key := "docs/c" + string(rune('0'+i))
			require.NoError(t, g.UpsertNode(ctx, "Chunk", key, map[string]any{"text": text, "namespace": "docs"}))
			require.NoError(t, g.UpsertRelationship(ctx, source, rag.NodeRef{Label: "Chunk", Key: key}, "HAS_CHUNK", nil))
		}
		nodes, rels := g.Stats()
		assert.Equal(t, 5, nodes)
		assert.Equal(t, 4, rels)
	})

	t.Run("Match relationship", func(t *testing.T) {
		recs, err := g.Match(ctx, rag.Pattern{
			Label:        "Source",
			Where:        map[string]any{"key": "$source"},
			Relationship: "HAS_CHUNK",
			TargetLabel:  "Chunk",
		}, map[string]any{"source": "docs/readme"})
		require.NoError(t, err)
		require.Len(t, recs, 3)
		assert.Equal(t, "docs/c0", recs[0].Related.Key)
		assert.Equal(t, "docs/c2", recs[2].Related.Key)
		assert.Equal(t, "Chunk", recs[0].Related.Label)
	})

	t.Run("Match contains is case insensitive", func(t *testing.T) {
		recs, err := g.Match(ctx, rag.Pattern{
			Label:    "Chunk",
			Where:    map[string]any{"namespace": "$ns"},
			Contains: map[string]any{"text": "$term"},
		}, map[string]any{"ns": "docs", "term": "BETA"})
		require.NoError(t, err)
		require.Len(t, recs, 2)
		assert.Equal(t, "docs/c0", recs[0].Node.Key)
		assert.Equal(t, "docs/c2", recs[1].Node.Key)
	})

	t.Run("Match limit", func(t *testing.T) {
		recs, err := g.Match(ctx, rag.Pattern{Label: "Chunk", Limit: 2}, nil)
		require.NoError(t, err)
		assert.Len(t, recs, 2)
	})

	t.Run("Missing parameter", func(t *testing.T) {
		_, err := g.Match(ctx, rag.Pattern{Label: "Chunk", Where: map[string]any{"namespace": "$ns"}}, nil)
		var cfg *rag.ConfigError
		assert.ErrorAs(t, err, &cfg)
	})

	t.Run("Delete removes relationships", func(t *testing.T) {
		require.NoError(t, g.DeleteNodes(ctx, "Chunk", []string{"docs/c0", "docs/c1"}))
		nodes, rels := g.Stats()
		assert.Equal(t, 3, nodes)
		assert.Equal(t, 2, rels)
	})

	t.Run("Validation", func(t *testing.T) {
		assert.Error(t, g.UpsertNode(ctx, "", "k", nil))
		assert.Error(t, g.UpsertRelationship(ctx, collection, source, "", nil))
	})
}
