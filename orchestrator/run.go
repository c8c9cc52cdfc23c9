package orchestrator

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/smallnest/ragflow/graph"
	"github.com/smallnest/ragflow/log"
)

// State is a pipeline state of one run.
type State string

const (
	StateIdle       State = "idle"
	StateChunking   State = "chunking"
	StateEmbedding  State = "embedding"
	StateIndexing   State = "indexing"
	StateReady      State = "ready"
	StateRetrieving State = "retrieving"
	StateMerging    State = "merging"
	StateGenerating State = "generating"
	StateDone       State = "done"
	StateFailed     State = "failed"
)

// nodeStates maps graph node names to the state entered when the node starts.
var nodeStates = map[string]State{
	nodeChunk:    StateChunking,
	nodeEmbed:    StateEmbedding,
	nodeIndex:    StateIndexing,
	nodeRetrieve: StateRetrieving,
	nodeMerge:    StateMerging,
	nodeGenerate: StateGenerating,
}

// Run is the transition log of one pipeline execution.
type Run struct {
	ID     string
	States []State
	Err    error

	mu sync.Mutex
}

func newRun() *Run {
	return &Run{ID: uuid.NewString(), States: []State{StateIdle}}
}

// State returns the latest state of the run.
func (r *Run) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.States[len(r.States)-1]
}

func (r *Run) enter(s State) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.States = append(r.States, s)
}

func (r *Run) fail(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Err = err
	r.States = append(r.States, StateFailed)
}

// tracker returns a listener that moves the run through the state of each
// node as it starts.
func tracker[S any](run *Run, logger log.Logger) graph.NodeListener[S] {
	logger = log.Named(logger, "run "+run.ID)
	return graph.NodeListenerFunc[S](func(_ context.Context, event graph.NodeEvent, node string, _ S, err error) {
		switch event {
		case graph.NodeEventStart:
			if s, ok := nodeStates[node]; ok {
				run.enter(s)
				logger.Debug("entered %s", s)
			}
		case graph.NodeEventError:
			logger.Debug("node %s failed: %v", node, err)
		}
	})
}
