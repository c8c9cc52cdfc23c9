package api

import (
	"github.com/smallnest/ragflow/rag"
	"github.com/smallnest/ragflow/rag/loader"
)

// IndexRequest is the body of POST /index.
type IndexRequest struct {
	SourceID  string            `json:"source_id"`
	Namespace string            `json:"namespace,omitempty"`
	Kind      string            `json:"kind,omitempty"`
	Text      string            `json:"text,omitempty"`
	Files     []loader.File     `json:"files,omitempty"`
	URL       string            `json:"url,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// IndexResponse is the body returned by POST /index.
type IndexResponse struct {
	SourceID      string   `json:"source_id"`
	Namespace     string   `json:"namespace"`
	ChunksIndexed int      `json:"chunks_indexed"`
	Model         string   `json:"model,omitempty"`
	GraphDegraded bool     `json:"graph_degraded"`
	Warnings      []string `json:"warnings,omitempty"`
	RunID         string   `json:"run_id"`
}

// Turn is a conversation turn sent by the client.
type Turn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// QueryRequest is the body of POST /query.
type QueryRequest struct {
	Question  string `json:"question"`
	Namespace string `json:"namespace,omitempty"`
	TopK      int    `json:"top_k,omitempty"`
	Budget    int    `json:"budget,omitempty"`
	History   []Turn `json:"history,omitempty"`
	SessionID string `json:"session_id,omitempty"`
}

// ContextEntry describes one chunk the answer was generated from.
type ContextEntry struct {
	SourceID string     `json:"source_id"`
	ChunkID  string     `json:"chunk_id"`
	Score    float64    `json:"score"`
	Origin   rag.Origin `json:"origin"`
}

// QueryResponse is the body returned by POST /query.
type QueryResponse struct {
	Answer    string         `json:"answer"`
	Citations []string       `json:"citations"`
	Context   []ContextEntry `json:"context"`
	Degraded  bool           `json:"degraded"`
	Warnings  []string       `json:"warnings,omitempty"`
	RunID     string         `json:"run_id"`
}

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error        string   `json:"error"`
	Kind         string   `json:"kind"`
	UnwrittenIDs []string `json:"unwritten_ids,omitempty"`
}
