package main

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smallnest/ragflow/config"
	"github.com/smallnest/ragflow/orchestrator"
	"github.com/smallnest/ragflow/rag"
)

func localConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.LogLevel = "none"
	cfg.OpenAIAPIKey = "sk-test"
	cfg.EmbeddingModels = []config.EmbeddingModel{{Provider: config.ProviderLocal, Name: "local", Dimension: 64}}
	cfg.ChunkSize = 200
	cfg.ChunkOverlap = 20
	return cfg
}

func TestNewApp_IndexesWithLocalBackends(t *testing.T) {
	cfg := localConfig(t)
	cfg.VectorSnapshot = filepath.Join(t.TempDir(), "vectors.json")
	cfg.HistoryBackend = config.HistorySQLite
	cfg.HistorySQLitePath = filepath.Join(t.TempDir(), "history.db")

	ctx := context.Background()
	a, err := newApp(ctx, cfg)
	require.NoError(t, err)

	res, err := a.orchestrator.Index(ctx, orchestrator.IndexRequest{
		SourceID: "notes",
		Text:     "ragflow stores chunks in a vector index and a knowledge graph.",
	})
	require.NoError(t, err)
	assert.Equal(t, 1, res.ChunksIndexed)
	assert.Equal(t, "local", res.Model)
	require.NoError(t, a.Close())

	_, err = os.Stat(cfg.VectorSnapshot)
	require.NoError(t, err)

	reopened, err := newApp(ctx, cfg)
	require.NoError(t, err)
	defer reopened.Close()
	n, err := reopened.orchestrator.Count(ctx, "default")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestNewApp_InvalidConfig(t *testing.T) {
	cfg := localConfig(t)
	cfg.ChunkOverlap = cfg.ChunkSize

	_, err := newApp(context.Background(), cfg)
	var cfgErr *rag.ConfigError
	assert.ErrorAs(t, err, &cfgErr)
}

func TestNewApp_WithoutGraph(t *testing.T) {
	cfg := localConfig(t)
	cfg.GraphBackend = config.GraphNone

	a, err := newApp(context.Background(), cfg)
	require.NoError(t, err)
	defer a.Close()

	res, err := a.orchestrator.Index(context.Background(), orchestrator.IndexRequest{SourceID: "s", Text: "hello"})
	require.NoError(t, err)
	assert.False(t, res.GraphDegraded)
}

func TestFormatAnswer(t *testing.T) {
	out := formatAnswer(newStyles(), &orchestrator.QueryResult{
		Answer:    "Paris.",
		Citations: []string{"atlas", "wiki"},
		Degraded:  true,
		Warnings:  []string{"graph retrieval failed: timeout"},
	})
	assert.True(t, strings.HasPrefix(out, "Paris.\n"))
	assert.Contains(t, out, "[1] ")
	assert.Contains(t, out, "atlas")
	assert.Contains(t, out, "[2] ")
	assert.Contains(t, out, "partial context")
	assert.Contains(t, out, "graph retrieval failed")
}

func TestQueryCmd_RequiresQuestion(t *testing.T) {
	rootCmd.SetArgs([]string{"query"})
	defer rootCmd.SetArgs(nil)

	err := rootCmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "accepts 1 arg(s)")
}

func TestIndexCmd_Flags(t *testing.T) {
	flag := indexCmd.Flags().Lookup("source-id")
	require.NotNil(t, flag)
	assert.Equal(t, "s", flag.Shorthand)
	assert.NotNil(t, queryCmd.Flags().Lookup("top-k"))
}
