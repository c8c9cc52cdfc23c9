package graph

import (
	"context"
	"time"
)

// NodeEvent represents different types of node events
type NodeEvent string

const (
	// NodeEventStart indicates a node has started execution
	NodeEventStart NodeEvent = "start"

	// NodeEventComplete indicates a node has completed successfully
	NodeEventComplete NodeEvent = "complete"

	// NodeEventError indicates a node encountered an error
	NodeEventError NodeEvent = "error"
)

// NodeListener defines the interface for typed node event listeners
type NodeListener[S any] interface {
	// OnNodeEvent is called when a node event occurs
	OnNodeEvent(ctx context.Context, event NodeEvent, nodeName string, state S, err error)
}

// NodeListenerFunc is a function adapter for NodeListener
type NodeListenerFunc[S any] func(ctx context.Context, event NodeEvent, nodeName string, state S, err error)

// OnNodeEvent implements the NodeListener interface
func (f NodeListenerFunc[S]) OnNodeEvent(ctx context.Context, event NodeEvent, nodeName string, state S, err error) {
	f(ctx, event, nodeName, state, err)
}

// StepRecord is one entry of a run's execution trace.
type StepRecord struct {
	Node     string
	Event    NodeEvent
	Err      error
	Duration time.Duration
}

// Recorder is a NodeListener that keeps every event it receives in order.
// It is not safe for concurrent runs; use one recorder per invocation.
type Recorder[S any] struct {
	Steps   []StepRecord
	started time.Time
}

// OnNodeEvent implements NodeListener
func (r *Recorder[S]) OnNodeEvent(_ context.Context, event NodeEvent, nodeName string, _ S, err error) {
	rec := StepRecord{Node: nodeName, Event: event, Err: err}
	switch event {
	case NodeEventStart:
		r.started = time.Now()
	default:
		rec.Duration = time.Since(r.started)
	}
	r.Steps = append(r.Steps, rec)
}
