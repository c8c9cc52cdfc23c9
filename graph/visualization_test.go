package graph

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDrawMermaid(t *testing.T) {
	pass := func(_ context.Context, s int) (int, error) { return s, nil }
	g := NewStateGraph[int]()
	g.AddNode("chunk", "Split text", pass)
	g.AddNode("embed", "", pass)
	g.AddNode("index", "Store \"vectors\"", pass)
	g.SetEntryPoint("chunk")
	g.AddEdge("chunk", "embed")
	g.AddConditionalEdge("embed", func(context.Context, int) string { return "index" })
	g.AddEdge("index", END)

	r, err := g.Compile()
	require.NoError(t, err)

	mermaid := r.DrawMermaid()
	assert.True(t, strings.HasPrefix(mermaid, "flowchart TD\n"))
	assert.Contains(t, mermaid, `chunk["chunk: Split text"]`)
	assert.Contains(t, mermaid, `embed["embed"]`)
	assert.Contains(t, mermaid, `index["index: Store 'vectors'"]`)
	assert.Contains(t, mermaid, "START --> chunk")
	assert.Contains(t, mermaid, "chunk --> embed")
	assert.Contains(t, mermaid, "embed -.-> embed_condition((?))")
	assert.Contains(t, mermaid, "index --> END")
	assert.Less(t, strings.Index(mermaid, `chunk["`), strings.Index(mermaid, `embed["`))

	assert.Contains(t, r.DrawMermaidWithOptions(MermaidOptions{Direction: "LR"}), "flowchart LR")
}
