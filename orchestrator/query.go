package orchestrator

import (
	"context"
	"strings"

	"github.com/smallnest/ragflow/graph"
	"github.com/smallnest/ragflow/rag"
	"github.com/smallnest/ragflow/rag/retriever"
)

// QueryRequest is one question against a namespace.
type QueryRequest struct {
	Question  string
	Namespace string
	TopK      int
	Budget    int
	History   []rag.ConversationTurn
	SessionID string
}

// QueryResult is the answer with the context it was generated from.
// Degraded is set when one retrieval path failed; Warnings says which.
type QueryResult struct {
	Answer    string
	Citations []string
	Context   rag.Context
	Degraded  bool
	Warnings  []string
	Run       *Run
}

type queryState struct {
	Request   QueryRequest
	Namespace string
	Retrieved *retriever.HybridResult
	Context   rag.Context
	Answer    string
	Warnings  []string
}

func (o *Orchestrator) buildQueryGraph() (*graph.StateRunnable[queryState], error) {
	g := graph.NewStateGraph[queryState]()
	g.AddNode(nodeRetrieve, "Retrieve from the vector index and graph", o.retrieveNode)
	g.AddNode(nodeMerge, "Merge results into a budgeted context", o.mergeNode)
	g.AddNode(nodeGenerate, "Answer the question from the context", o.generateNode)
	g.SetEntryPoint(nodeRetrieve)
	g.AddEdge(nodeRetrieve, nodeMerge)
	g.AddEdge(nodeMerge, nodeGenerate)
	g.AddEdge(nodeGenerate, graph.END)
	return g.Compile()
}

// Query runs the read path. A query answered from only one retrieval path
// succeeds with Degraded set; it fails when every path failed.
func (o *Orchestrator) Query(ctx context.Context, req QueryRequest) (*QueryResult, error) {
	run := newRun()
	res := &QueryResult{Run: run}

	if strings.TrimSpace(req.Question) == "" {
		run.fail(rag.ErrEmptyQuestion)
		return res, rag.ErrEmptyQuestion
	}
	if req.TopK < 0 {
		err := rag.NewConfigError("top_k", "must not be negative, got %d", req.TopK)
		run.fail(err)
		return res, err
	}
	if req.Budget < 0 {
		err := rag.NewConfigError("budget", "must not be negative, got %d", req.Budget)
		run.fail(err)
		return res, err
	}
	if req.TopK == 0 {
		req.TopK = o.topK
	}
	if req.Budget == 0 {
		req.Budget = o.budget
	}

	state, err := o.answerer.Invoke(ctx, queryState{
		Request:   req,
		Namespace: o.resolveNamespace(req.Namespace),
	}, tracker[queryState](run, o.logger))
	if err != nil {
		err = stageError(err)
		run.fail(err)
		o.logger.Error("query failed (run %s): %v", run.ID, err)
		return res, err
	}

	res.Answer = state.Answer
	res.Context = state.Context
	res.Citations = state.Context.Citations()
	res.Warnings = state.Warnings
	res.Degraded = state.Retrieved.Degraded != nil
	run.enter(StateDone)
	return res, nil
}

func (o *Orchestrator) retrieveNode(ctx context.Context, state queryState) (queryState, error) {
	hr, err := o.retriever.Retrieve(ctx, rag.RetrievalQuery{
		Namespace: state.Namespace,
		Text:      state.Request.Question,
		Models:    o.modelOrder(state.Namespace),
		TopK:      state.Request.TopK,
	})
	if err != nil {
		return state, err
	}
	state.Retrieved = hr
	if hr.Degraded != nil {
		state.Warnings = append(state.Warnings, hr.Degraded.Warnings()...)
	}
	return state, nil
}

func (o *Orchestrator) mergeNode(_ context.Context, state queryState) (queryState, error) {
	state.Context = retriever.Merge(state.Retrieved.Vector, state.Retrieved.Graph, state.Request.Budget)
	o.logger.Debug("merged %d vector and %d graph results into %d context entries",
		len(state.Retrieved.Vector), len(state.Retrieved.Graph), len(state.Context.Results))
	return state, nil
}

func (o *Orchestrator) generateNode(ctx context.Context, state queryState) (queryState, error) {
	req := state.Request

	var history []rag.ConversationTurn
	if req.SessionID != "" && o.history != nil {
		stored, err := o.history.Recent(ctx, req.SessionID, o.historyTurns)
		if err != nil {
			o.logger.Warn("failed to load history of session %s: %v", req.SessionID, err)
			state.Warnings = append(state.Warnings, "history unavailable: "+err.Error())
		}
		history = append(history, stored...)
	}
	history = append(history, req.History...)

	answer, err := o.generator.Generate(ctx, req.Question, state.Context, rag.LastTurns(history, o.historyTurns))
	if err != nil {
		return state, err
	}
	state.Answer = answer

	if req.SessionID != "" && o.history != nil {
		err := o.history.Append(ctx, req.SessionID,
			rag.ConversationTurn{Role: rag.RoleUser, Content: req.Question},
			rag.ConversationTurn{Role: rag.RoleAssistant, Content: answer},
		)
		if err != nil {
			o.logger.Warn("failed to save history of session %s: %v", req.SessionID, err)
			state.Warnings = append(state.Warnings, "history not saved: "+err.Error())
		}
	}
	return state, nil
}
