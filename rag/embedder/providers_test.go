package embedder

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sashabaranov/go-openai"
	"github.com/smallnest/ragflow/graph"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/embeddings"
)

func newOpenAITestServer(t *testing.T, handler http.HandlerFunc) *openai.Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	cfg := openai.DefaultConfig("test-key")
	cfg.BaseURL = server.URL + "/v1"
	return openai.NewClientWithConfig(cfg)
}

func writeOpenAIError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{"message": msg, "type": "test_error"},
	})
}

func fastOpenAIRetry() OpenAIOption {
	return WithRetry(&graph.RetryConfig{MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond})
}

func TestOpenAIProvider_OrdersByIndex(t *testing.T) {
	client := newOpenAITestServer(t, func(w http.ResponseWriter, r *http.Request) {
		var req openai.EmbeddingRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "text-embedding-3-small", string(req.Model))

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"object": "list",
			"model":  "text-embedding-3-small",
			"data": []map[string]any{
				{"object": "embedding", "index": 1, "embedding": []float32{0, 1}},
				{"object": "embedding", "index": 0, "embedding": []float32{1, 0}},
			},
		})
	})

	p := NewOpenAIProvider(client, "text-embedding-3-small", 2, fastOpenAIRetry())
	assert.Equal(t, "text-embedding-3-small", p.Name())

	vecs, err := p.EmbedBatch(context.Background(), []string{"first", "second"})
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{1, 0}, {0, 1}}, vecs)
}

func TestOpenAIProvider_RetriesRateLimit(t *testing.T) {
	var calls atomic.Int32
	client := newOpenAITestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			writeOpenAIError(w, http.StatusTooManyRequests, "slow down")
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"data": []map[string]any{{"index": 0, "embedding": []float32{1, 2, 3}}},
		})
	})

	p := NewOpenAIProvider(client, "m", 3, fastOpenAIRetry())
	vecs, err := p.EmbedBatch(context.Background(), []string{"x"})
	require.NoError(t, err)
	assert.Len(t, vecs, 1)
	assert.Equal(t, int32(2), calls.Load())
}

func TestOpenAIProvider_ClientErrorNotRetried(t *testing.T) {
	var calls atomic.Int32
	client := newOpenAITestServer(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		writeOpenAIError(w, http.StatusUnauthorized, "bad key")
	})

	p := NewOpenAIProvider(client, "m", 3, fastOpenAIRetry())
	_, err := p.EmbedBatch(context.Background(), []string{"x"})
	require.Error(t, err)

	var apiErr *openai.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnauthorized, apiErr.HTTPStatusCode)
	assert.Equal(t, int32(1), calls.Load())
}

func TestOpenAIProvider_MissingVector(t *testing.T) {
	client := newOpenAITestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"data": []map[string]any{{"index": 0, "embedding": []float32{1}}},
		})
	})

	p := NewOpenAIProvider(client, "m", 1, fastOpenAIRetry())
	_, err := p.EmbedBatch(context.Background(), []string{"x", "y"})
	assert.ErrorContains(t, err, "missing vector for text 1")
}

func TestIsTransient(t *testing.T) {
	assert.True(t, isTransient(&openai.APIError{HTTPStatusCode: 503}))
	assert.True(t, isTransient(&openai.RequestError{HTTPStatusCode: 429, Err: errors.New("x")}))
	assert.False(t, isTransient(&openai.APIError{HTTPStatusCode: 400}))
	assert.False(t, isTransient(context.DeadlineExceeded))
	assert.True(t, isTransient(errors.New("connection reset")))
}

type fakeEmbedderClient struct {
	err error
}

func (f *fakeEmbedderClient) CreateEmbedding(_ context.Context, texts []string) ([][]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = []float32{float32(len(t)), 1}
	}
	return out, nil
}

func TestLangChainProvider(t *testing.T) {
	e, err := embeddings.NewEmbedder(&fakeEmbedderClient{})
	require.NoError(t, err)

	p := NewLangChainProvider("lc", 2, e)
	assert.Equal(t, "lc", p.Name())
	assert.Equal(t, 2, p.Dimension())

	vecs, err := p.EmbedBatch(context.Background(), []string{"abc", "de"})
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{3, 1}, {2, 1}}, vecs)

	failing, err := embeddings.NewEmbedder(&fakeEmbedderClient{err: errors.New("down")})
	require.NoError(t, err)
	_, err = NewLangChainProvider("lc", 2, failing).EmbedBatch(context.Background(), []string{"x"})
	assert.Error(t, err)
}
