package graph

import (
	"context"
	"fmt"
)

// defaultMaxSteps bounds the number of node visits in a single invocation.
const defaultMaxSteps = 64

// StateGraph represents a generic state-based graph with compile-time type safety.
// The type parameter S represents the state type, which is typically a struct.
// Nodes run strictly one at a time, in the order given by edges.
//
// Example usage:
//
//	type MyState struct {
//	    Count int
//	    Name  string
//	}
//
//	g := graph.NewStateGraph[MyState]()
//	g.AddNode("increment", "Increment counter", func(ctx context.Context, state MyState) (MyState, error) {
//	    state.Count++
//	    return state, nil
//	})
type StateGraph[S any] struct {
	// nodes is a map of node names to their corresponding Node objects
	nodes map[string]Node[S]

	// edges maps a "From" node to its unconditional successor
	edges map[string]string

	// conditionalEdges contains a map between "From" node, while "To" node is derived based on the condition
	conditionalEdges map[string]func(ctx context.Context, state S) string

	// entryPoint is the name of the entry point node in the graph
	entryPoint string

	listeners []NodeListener[S]
	maxSteps  int
}

// Node represents a typed node in the graph.
type Node[S any] struct {
	Name        string
	Description string
	Function    func(ctx context.Context, state S) (S, error)
}

// NewStateGraph creates a new instance of StateGraph with type safety.
//
// Example:
//
//	g := graph.NewStateGraph[MyState]()
func NewStateGraph[S any]() *StateGraph[S] {
	return &StateGraph[S]{
		nodes:            make(map[string]Node[S]),
		edges:            make(map[string]string),
		conditionalEdges: make(map[string]func(ctx context.Context, state S) string),
		maxSteps:         defaultMaxSteps,
	}
}

// AddNode adds a new node to the state graph with the given name, description and function.
func (g *StateGraph[S]) AddNode(name string, description string, fn func(ctx context.Context, state S) (S, error)) {
	g.nodes[name] = Node[S]{
		Name:        name,
		Description: description,
		Function:    fn,
	}
}

// AddEdge adds a new edge to the state graph between the "from" and "to" nodes.
func (g *StateGraph[S]) AddEdge(from, to string) {
	g.edges[from] = to
}

// AddConditionalEdge adds a conditional edge where the target node is determined at runtime.
// A conditional edge takes precedence over a plain edge from the same node.
//
// Example:
//
//	g.AddConditionalEdge("check", func(ctx context.Context, state MyState) string {
//	    if state.Count > 10 {
//	        return "high"
//	    }
//	    return "low"
//	})
func (g *StateGraph[S]) AddConditionalEdge(from string, condition func(ctx context.Context, state S) string) {
	g.conditionalEdges[from] = condition
}

// SetEntryPoint sets the entry point node name for the state graph.
func (g *StateGraph[S]) SetEntryPoint(name string) {
	g.entryPoint = name
}

// SetMaxSteps overrides the node visit limit of one invocation.
func (g *StateGraph[S]) SetMaxSteps(n int) {
	if n > 0 {
		g.maxSteps = n
	}
}

// AddListener registers a listener notified for every node of every run.
func (g *StateGraph[S]) AddListener(l NodeListener[S]) {
	g.listeners = append(g.listeners, l)
}

// StateRunnable represents a compiled state graph that can be invoked with type safety.
type StateRunnable[S any] struct {
	graph *StateGraph[S]
}

// Compile validates the graph and returns a StateRunnable instance.
func (g *StateGraph[S]) Compile() (*StateRunnable[S], error) {
	if g.entryPoint == "" {
		return nil, ErrEntryPointNotSet
	}
	if _, ok := g.nodes[g.entryPoint]; !ok {
		return nil, fmt.Errorf("%w: %s", ErrNodeNotFound, g.entryPoint)
	}
	for from, to := range g.edges {
		if _, ok := g.nodes[from]; !ok {
			return nil, fmt.Errorf("%w: %s", ErrNodeNotFound, from)
		}
		if _, ok := g.nodes[to]; !ok && to != END {
			return nil, fmt.Errorf("%w: %s", ErrNodeNotFound, to)
		}
	}
	return &StateRunnable[S]{graph: g}, nil
}

// Invoke executes the compiled state graph with the given input state.
// The context is checked before every node; on cancellation the state reached
// so far is returned together with the context error. A failing node stops the
// run and its error is returned wrapped in a *NodeError, again with the last
// good state, so callers can inspect how far the run progressed.
func (r *StateRunnable[S]) Invoke(ctx context.Context, initialState S, listeners ...NodeListener[S]) (S, error) {
	state := initialState
	all := append(append([]NodeListener[S]{}, r.graph.listeners...), listeners...)
	current := r.graph.entryPoint

	for steps := 0; current != END; steps++ {
		if steps >= r.graph.maxSteps {
			return state, ErrMaxStepsExceeded
		}
		if err := ctx.Err(); err != nil {
			return state, err
		}

		node, ok := r.graph.nodes[current]
		if !ok {
			return state, fmt.Errorf("%w: %s", ErrNodeNotFound, current)
		}

		notify(ctx, all, NodeEventStart, current, state, nil)
		next, err := node.Function(ctx, state)
		if err != nil {
			notify(ctx, all, NodeEventError, current, state, err)
			return state, &NodeError{Node: current, Err: err}
		}
		state = next
		notify(ctx, all, NodeEventComplete, current, state, nil)

		current, err = r.nextNode(ctx, current, state)
		if err != nil {
			return state, err
		}
	}

	return state, nil
}

func (r *StateRunnable[S]) nextNode(ctx context.Context, from string, state S) (string, error) {
	if cond, ok := r.graph.conditionalEdges[from]; ok {
		return cond(ctx, state), nil
	}
	if to, ok := r.graph.edges[from]; ok {
		return to, nil
	}
	return "", fmt.Errorf("%w: %s", ErrNoOutgoingEdge, from)
}

func notify[S any](ctx context.Context, listeners []NodeListener[S], event NodeEvent, node string, state S, err error) {
	for _, l := range listeners {
		l.OnNodeEvent(ctx, event, node, state, err)
	}
}
