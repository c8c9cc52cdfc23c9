package api

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smallnest/ragflow/log"
	"github.com/smallnest/ragflow/memory"
	"github.com/smallnest/ragflow/orchestrator"
	"github.com/smallnest/ragflow/rag"
	"github.com/smallnest/ragflow/rag/embedder"
	"github.com/smallnest/ragflow/rag/loader"
	"github.com/smallnest/ragflow/rag/store"
)

type echoGenerator struct{}

func (echoGenerator) Generate(_ context.Context, question string, c rag.Context, history []rag.ConversationTurn) (string, error) {
	return fmt.Sprintf("%s (%d sources, %d turns)", question, len(c.Citations()), len(history)), nil
}

// failingPipeline returns err from every call, or panics when err is nil.
type failingPipeline struct {
	err error
}

func (p failingPipeline) Index(context.Context, orchestrator.IndexRequest) (*orchestrator.IndexResult, error) {
	if p.err == nil {
		panic("boom")
	}
	return nil, p.err
}

func (p failingPipeline) Query(context.Context, orchestrator.QueryRequest) (*orchestrator.QueryResult, error) {
	return nil, p.err
}

func (p failingPipeline) DeleteSource(context.Context, string, string) error {
	return p.err
}

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	chain, err := embedder.NewChain([]embedder.Provider{embedder.NewHashingProvider("local", 128)}, embedder.WithLogger(&log.NoOpLogger{}))
	require.NoError(t, err)
	o, err := orchestrator.New(chain, store.NewMemoryIndex(), echoGenerator{},
		orchestrator.WithGraphStore(store.NewMemoryGraph()),
		orchestrator.WithHistory(memory.NewSlidingWindowMemory(10)),
		orchestrator.WithLogger(&log.NoOpLogger{}),
	)
	require.NoError(t, err)

	srv := httptest.NewServer(NewServer(o, WithLogger(&log.NoOpLogger{})))
	t.Cleanup(srv.Close)
	return srv
}

func post(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(url, "application/json", bytes.NewReader(data))
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func TestServer_IndexAndQuery(t *testing.T) {
	srv := newTestServer(t)

	resp := post(t, srv.URL+"/index", IndexRequest{
		SourceID: "doc1",
		Text:     "Retrieval augmented generation grounds answers in documents.",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
	indexed := decode[IndexResponse](t, resp)
	assert.Equal(t, "doc1", indexed.SourceID)
	assert.Equal(t, "default", indexed.Namespace)
	assert.Equal(t, 1, indexed.ChunksIndexed)
	assert.Equal(t, "local", indexed.Model)
	assert.NotEmpty(t, indexed.RunID)

	resp = post(t, srv.URL+"/query", QueryRequest{
		Question:  "What grounds answers?",
		SessionID: "s1",
		History:   []Turn{{Role: "user", Content: "hello"}},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	answer := decode[QueryResponse](t, resp)
	assert.Equal(t, "What grounds answers? (1 sources, 1 turns)", answer.Answer)
	assert.Equal(t, []string{"doc1"}, answer.Citations)
	require.NotEmpty(t, answer.Context)
	assert.Equal(t, "doc1", answer.Context[0].SourceID)
	assert.False(t, answer.Degraded)

	req, err := http.NewRequest(http.MethodDelete, srv.URL+"/sources/doc1", nil)
	require.NoError(t, err)
	del, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	del.Body.Close()
	assert.Equal(t, http.StatusNoContent, del.StatusCode)

	resp = post(t, srv.URL+"/query", QueryRequest{Question: "What grounds answers?"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	answer = decode[QueryResponse](t, resp)
	assert.Empty(t, answer.Context)
	assert.Equal(t, []string{}, answer.Citations)
}

func TestServer_IndexPDF(t *testing.T) {
	srv := newTestServer(t)
	raw, err := os.ReadFile("../rag/loader/testdata/sample.pdf")
	require.NoError(t, err)

	resp := post(t, srv.URL+"/index", IndexRequest{
		SourceID: "manual",
		Files:    []loader.File{{Path: "manual.pdf", Content: base64.StdEncoding.EncodeToString(raw)}},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	indexed := decode[IndexResponse](t, resp)
	assert.GreaterOrEqual(t, indexed.ChunksIndexed, 2, "one chunk per page at least")

	resp = post(t, srv.URL+"/query", QueryRequest{Question: "watching paint dry"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, []string{"manual"}, decode[QueryResponse](t, resp).Citations)

	resp = post(t, srv.URL+"/index", IndexRequest{
		SourceID: "broken",
		Files:    []loader.File{{Path: "broken.pdf", Content: "not base64!"}},
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestServer_Healthz(t *testing.T) {
	srv := newTestServer(t)
	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "ok", string(body))
}

func TestServer_BadRequests(t *testing.T) {
	srv := newTestServer(t)

	resp, err := http.Post(srv.URL+"/query", "application/json", bytes.NewReader([]byte("{not json")))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, KindBadRequest, decode[ErrorResponse](t, resp).Kind)

	resp = post(t, srv.URL+"/query", QueryRequest{Question: ""})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, KindConfig, decode[ErrorResponse](t, resp).Kind)

	resp = post(t, srv.URL+"/query", QueryRequest{Question: "q", History: []Turn{{Role: "system", Content: "x"}}})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = post(t, srv.URL+"/query", QueryRequest{Question: "q", Budget: -5})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, decode[ErrorResponse](t, resp).Error, "budget")

	resp = post(t, srv.URL+"/index", IndexRequest{Text: "no source id"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	body := decode[ErrorResponse](t, resp)
	assert.Equal(t, KindConfig, body.Kind)
	assert.Contains(t, body.Error, "source_id")
}

func TestServer_ErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		kind   string
	}{
		{"Config", rag.NewConfigError("chunk_overlap", "too big"), http.StatusBadRequest, KindConfig},
		{"Embedding", &rag.EmbeddingUnavailableError{Failures: []rag.ModelFailure{{Model: "m", Err: errors.New("down")}}}, http.StatusServiceUnavailable, KindEmbeddingUnavailable},
		{"Index write", &rag.IndexWriteError{Namespace: "ns", Unwritten: []string{"a", "b"}, Err: errors.New("timeout")}, http.StatusBadGateway, KindIndexWrite},
		{"Generation", &rag.GenerationError{Status: 429, Message: "rate limited"}, http.StatusBadGateway, KindGeneration},
		{"Cancelled", fmt.Errorf("run stopped: %w", context.Canceled), http.StatusServiceUnavailable, KindCancelled},
		{"Retrieval", &rag.RetrievalDegradedError{VectorErr: errors.New("a"), GraphErr: errors.New("b")}, http.StatusServiceUnavailable, KindRetrievalUnavailable},
		{"Unknown", errors.New("secret upstream detail"), http.StatusInternalServerError, KindInternal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(NewServer(failingPipeline{err: tt.err}, WithLogger(&log.NoOpLogger{})))
			defer srv.Close()

			resp := post(t, srv.URL+"/query", QueryRequest{Question: "q"})
			assert.Equal(t, tt.status, resp.StatusCode)
			body := decode[ErrorResponse](t, resp)
			assert.Equal(t, tt.kind, body.Kind)
			assert.NotContains(t, body.Error, "secret")
			if tt.kind == KindIndexWrite {
				assert.Equal(t, []string{"a", "b"}, body.UnwrittenIDs)
			}
		})
	}
}

func TestServer_RecoversPanics(t *testing.T) {
	srv := httptest.NewServer(NewServer(failingPipeline{}, WithLogger(&log.NoOpLogger{})))
	defer srv.Close()

	resp := post(t, srv.URL+"/index", IndexRequest{SourceID: "x", Text: "y"})
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
}
