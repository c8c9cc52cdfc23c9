package store

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/smallnest/ragflow/rag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFalkorDBGraph(t *testing.T) {
	t.Run("Invalid URL", func(t *testing.T) {
		g, err := NewFalkorDBGraph("falkordb:///graph")
		assert.Error(t, err)
		assert.Nil(t, g)
	})

	t.Run("Default graph name", func(t *testing.T) {
		g, err := NewFalkorDBGraph("falkordb://localhost:6379")
		require.NoError(t, err)
		assert.Equal(t, "rag", g.graphName)
		_ = g.Close()
	})

	t.Run("Sanitize Label", func(t *testing.T) {
		assert.Equal(t, "Person", sanitizeLabel("Person"))
		assert.Equal(t, "Person_Age", sanitizeLabel("Person Age"))
		assert.Equal(t, "a___DETACH_DELETE", sanitizeLabel("a}) DETACH DELETE"))
		assert.Equal(t, "Entity", sanitizeLabel(""))
	})

	t.Run("Query errors surface", func(t *testing.T) {
		// miniredis does not know GRAPH.QUERY, which stands in for a broken server.
		mr, err := miniredis.Run()
		require.NoError(t, err)
		defer mr.Close()

		g := NewFalkorDBGraphWithClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}), "kb")
		defer g.Close()

		err = g.UpsertNode(context.Background(), "Chunk", "k", nil)
		assert.ErrorContains(t, err, "falkordb query failed")

		_, err = g.Match(context.Background(), rag.Pattern{Label: "Chunk"}, nil)
		assert.Error(t, err)
	})
}

func TestCypherParameters(t *testing.T) {
	assert.Equal(t, `"say \"hi\" \\ bye"`, quoteString(`say "hi" \ bye`))
	assert.Equal(t, "null", cypherLiteral(nil))
	assert.Equal(t, "42", cypherLiteral(42))
	assert.Equal(t, "true", cypherLiteral(true))
	assert.Equal(t, "0.5", cypherLiteral(0.5))
	assert.Equal(t, `["a", "b"]`, cypherLiteral([]string{"a", "b"}))
	assert.Equal(t, `[1, "x"]`, cypherLiteral([]any{1, "x"}))

	q := withParams("MATCH (n) RETURN n", map[string]any{"b": 2, "a": "x"})
	assert.Equal(t, `CYPHER a="x" b=2 MATCH (n) RETURN n`, q)
	assert.Equal(t, "RETURN 1", withParams("RETURN 1", nil))
}

func TestBuildUpsertNode(t *testing.T) {
	q, params := buildUpsertNode("Chunk", "docs/c0", map[string]any{"text": "hello", "sequence_index": 0})
	assert.Equal(t, "MERGE (n:Chunk {key: $key}) SET n.sequence_index = $p0, n.text = $p1", q)
	assert.Equal(t, map[string]any{"key": "docs/c0", "p0": 0, "p1": "hello"}, params)

	q, params = buildUpsertNode("Collection", "docs", nil)
	assert.Equal(t, "MERGE (n:Collection {key: $key})", q)
	assert.Len(t, params, 1)
}

func TestBuildUpsertRelationship(t *testing.T) {
	q, params := buildUpsertRelationship(
		rag.NodeRef{Label: "Source", Key: "docs/a"},
		rag.NodeRef{Label: "Chunk", Key: "docs/c0"},
		"HAS_CHUNK", nil)
	assert.Equal(t, "MERGE (a:Source {key: $from}) MERGE (b:Chunk {key: $to}) MERGE (a)-[r:HAS_CHUNK]->(b)", q)
	assert.Equal(t, map[string]any{"from": "docs/a", "to": "docs/c0"}, params)
}

func TestBuildMatch(t *testing.T) {
	q, params := buildMatch(rag.Pattern{
		Label:    "Chunk",
		Where:    map[string]any{"namespace": "docs"},
		Contains: map[string]any{"text": "beta"},
		Limit:    5,
	})
	assert.Equal(t, "MATCH (n:Chunk) WHERE n.namespace = $w0 AND toLower(n.text) CONTAINS toLower($c0)"+
		" RETURN n.key, labels(n)[0], properties(n) ORDER BY n.key LIMIT 5", q)
	assert.Equal(t, map[string]any{"w0": "docs", "c0": "beta"}, params)

	q, _ = buildMatch(rag.Pattern{Label: "Source", Relationship: "HAS_CHUNK", TargetLabel: "Chunk"})
	assert.Equal(t, "MATCH (n:Source)-[:HAS_CHUNK]->(m:Chunk)"+
		" RETURN n.key, labels(n)[0], properties(n), m.key, labels(m)[0], properties(m) ORDER BY n.key, m.key", q)
}

func TestParseQueryResponse(t *testing.T) {
	t.Run("Header rows and stats", func(t *testing.T) {
		res := []any{
			[]any{"n.key", "labels(n)[0]", "properties(n)"},
			[]any{
				[]any{"docs/c0", "Chunk", []any{"text", "hello", "sequence_index", int64(0)}},
				[]any{[]byte("docs/c1"), "Chunk", map[any]any{"text": "world"}},
			},
			[]any{"Cached execution: 0"},
		}
		qr, err := parseQueryResponse(res)
		require.NoError(t, err)
		assert.Len(t, qr.Header, 3)
		assert.Len(t, qr.Statistics, 1)

		recs := parseRecords(qr, false)
		require.Len(t, recs, 2)
		assert.Equal(t, "docs/c0", recs[0].Node.Key)
		assert.Equal(t, "Chunk", recs[0].Node.Label)
		assert.Equal(t, "hello", recs[0].Node.Properties["text"])
		assert.Equal(t, int64(0), recs[0].Node.Properties["sequence_index"])
		assert.Equal(t, "docs/c1", recs[1].Node.Key)
		assert.Equal(t, "world", recs[1].Node.Properties["text"])
	})

	t.Run("Statistics only", func(t *testing.T) {
		qr, err := parseQueryResponse([]any{[]any{"Nodes created: 1"}})
		require.NoError(t, err)
		assert.Empty(t, qr.Results)
		assert.Equal(t, []string{"Nodes created: 1"}, qr.Statistics)
	})

	t.Run("Related rows", func(t *testing.T) {
		qr, err := parseQueryResponse([]any{
			[]any{[]any{"docs/a", "Source", []any{}, "docs/c0", "Chunk", []any{"text", "x"}}},
			[]any{},
		})
		require.NoError(t, err)
		recs := parseRecords(qr, true)
		require.Len(t, recs, 1)
		require.NotNil(t, recs[0].Related)
		assert.Equal(t, "docs/c0", recs[0].Related.Key)
		assert.Equal(t, "x", recs[0].Related.Properties["text"])
	})

	t.Run("Unexpected", func(t *testing.T) {
		_, err := parseQueryResponse("OK")
		assert.Error(t, err)
		_, err = parseQueryResponse([]any{1, 2, 3, 4})
		assert.Error(t, err)
	})
}
