// Package graph provides the small typed state machine that drives the ragflow
// write and read paths.
//
// A StateGraph[S] is a set of named nodes joined by edges. Each node receives
// the current state, returns the next one, and the runnable moves along the
// outgoing edge (or conditional edge) until it reaches END. Execution is
// sequential: exactly one node runs at a time and the context is checked
// before each node, so a cancelled request stops at the next stage boundary.
//
// # Example Usage
//
//	g := graph.NewStateGraph[MyState]()
//	g.AddNode("chunk", "Split text", chunkFn)
//	g.AddNode("embed", "Embed chunks", embedFn)
//	g.AddEdge("chunk", "embed")
//	g.AddEdge("embed", graph.END)
//	g.SetEntryPoint("chunk")
//
//	runnable, err := g.Compile()
//	if err != nil {
//		return err
//	}
//	final, err := runnable.Invoke(ctx, MyState{})
//
// Listeners observe NodeEventStart, NodeEventComplete and NodeEventError for
// every node and are the hook used for per-run transition logs. A compiled
// graph can be rendered with DrawMermaid.
package graph
