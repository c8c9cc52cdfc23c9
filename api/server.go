// Package api exposes the orchestrator over HTTP.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/smallnest/ragflow/log"
	"github.com/smallnest/ragflow/orchestrator"
	"github.com/smallnest/ragflow/rag"
)

const maxBodySize = 20 << 20

// Pipeline is the part of the orchestrator the server needs.
type Pipeline interface {
	Index(ctx context.Context, req orchestrator.IndexRequest) (*orchestrator.IndexResult, error)
	Query(ctx context.Context, req orchestrator.QueryRequest) (*orchestrator.QueryResult, error)
	DeleteSource(ctx context.Context, namespace, sourceID string) error
}

// Server routes HTTP requests to a pipeline.
type Server struct {
	router   chi.Router
	pipeline Pipeline
	logger   log.Logger
	timeout  time.Duration
}

// Option configures the Server
type Option func(*Server)

// WithLogger sets the logger
func WithLogger(l log.Logger) Option {
	return func(s *Server) {
		s.logger = l
	}
}

// WithTimeout bounds the handling of one request.
func WithTimeout(d time.Duration) Option {
	return func(s *Server) {
		s.timeout = d
	}
}

// NewServer creates a Server.
func NewServer(pipeline Pipeline, opts ...Option) *Server {
	s := &Server{
		router:   chi.NewRouter(),
		pipeline: pipeline,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = log.Named(log.OrDefault(s.logger), "api")
	s.routes()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.Recoverer)
	s.router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			next.ServeHTTP(w, r)
			s.logger.Debug("%s %s (%s) in %s", r.Method, r.URL.Path, middleware.GetReqID(r.Context()), time.Since(start))
		})
	})
	if s.timeout > 0 {
		s.router.Use(middleware.Timeout(s.timeout))
	}

	s.router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	s.router.Post("/index", s.handleIndex)
	s.router.Post("/query", s.handleQuery)
	s.router.Delete("/sources/{sourceID}", s.handleDeleteSource)
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	var req IndexRequest
	if !s.decode(w, r, &req) {
		return
	}

	res, err := s.pipeline.Index(r.Context(), orchestrator.IndexRequest{
		SourceID:  req.SourceID,
		Namespace: req.Namespace,
		Kind:      rag.SourceKind(req.Kind),
		Text:      req.Text,
		Files:     req.Files,
		URL:       req.URL,
		Metadata:  req.Metadata,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, IndexResponse{
		SourceID:      res.SourceID,
		Namespace:     res.Namespace,
		ChunksIndexed: res.ChunksIndexed,
		Model:         res.Model,
		GraphDegraded: res.GraphDegraded,
		Warnings:      res.Warnings,
		RunID:         res.Run.ID,
	})
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	var req QueryRequest
	if !s.decode(w, r, &req) {
		return
	}

	history := make([]rag.ConversationTurn, 0, len(req.History))
	for _, t := range req.History {
		role := rag.Role(t.Role)
		if role != rag.RoleUser && role != rag.RoleAssistant {
			s.writeError(w, r, rag.NewConfigError("history", "unknown role %q", t.Role))
			return
		}
		history = append(history, rag.ConversationTurn{Role: role, Content: t.Content})
	}

	res, err := s.pipeline.Query(r.Context(), orchestrator.QueryRequest{
		Question:  req.Question,
		Namespace: req.Namespace,
		TopK:      req.TopK,
		Budget:    req.Budget,
		History:   history,
		SessionID: req.SessionID,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	entries := make([]ContextEntry, len(res.Context.Results))
	for i, c := range res.Context.Results {
		entries[i] = ContextEntry{SourceID: c.Chunk.SourceID, ChunkID: c.Chunk.ID, Score: c.Score, Origin: c.Origin}
	}
	citations := res.Citations
	if citations == nil {
		citations = []string{}
	}
	writeJSON(w, http.StatusOK, QueryResponse{
		Answer:    res.Answer,
		Citations: citations,
		Context:   entries,
		Degraded:  res.Degraded,
		Warnings:  res.Warnings,
		RunID:     res.Run.ID,
	})
}

func (s *Server) handleDeleteSource(w http.ResponseWriter, r *http.Request) {
	sourceID := chi.URLParam(r, "sourceID")
	if err := s.pipeline.DeleteSource(r.Context(), r.URL.Query().Get("namespace"), sourceID); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		s.logger.Warn("bad request body on %s: %v", r.URL.Path, err)
		writeJSON(w, http.StatusBadRequest, ErrorResponse{
			Error: fmt.Sprintf("invalid request body: %v", err),
			Kind:  KindBadRequest,
		})
		return false
	}
	return true
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, body := errorResponse(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("%s %s failed with %d: %v", r.Method, r.URL.Path, status, err)
	} else {
		s.logger.Warn("%s %s failed with %d: %v", r.Method, r.URL.Path, status, err)
	}
	writeJSON(w, status, body)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
