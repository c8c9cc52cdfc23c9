package main

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/tmc/langchaingo/embeddings"
	lcopenai "github.com/tmc/langchaingo/llms/openai"

	"github.com/smallnest/ragflow/config"
	"github.com/smallnest/ragflow/graph"
	"github.com/smallnest/ragflow/log"
	"github.com/smallnest/ragflow/memory"
	"github.com/smallnest/ragflow/orchestrator"
	"github.com/smallnest/ragflow/rag"
	"github.com/smallnest/ragflow/rag/embedder"
	"github.com/smallnest/ragflow/rag/generator"
	"github.com/smallnest/ragflow/rag/store"
)

// app holds the components built from the configuration.
type app struct {
	cfg          *config.Config
	logger       log.Logger
	orchestrator *orchestrator.Orchestrator
	closers      []func() error
}

func newLogger(cfg *config.Config) log.Logger {
	level, ok := log.ParseLevel(cfg.LogLevel)
	if !ok {
		level = log.LogLevelInfo
	}
	if cfg.LogFormat == "golog" {
		return log.NewGologLoggerWithLevel(level)
	}
	return log.NewDefaultLogger(level)
}

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, logger: newLogger(cfg)}
	log.SetDefaultLogger(a.logger)

	chain, err := a.embedder()
	if err != nil {
		return nil, err
	}
	index, err := a.vectorIndex(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}
	gen, err := a.generator()
	if err != nil {
		a.Close()
		return nil, err
	}

	opts := []orchestrator.Option{
		orchestrator.WithLogger(a.logger),
		orchestrator.WithChunking(cfg.ChunkSize, cfg.ChunkOverlap),
		orchestrator.WithDefaultNamespace(cfg.DefaultNamespace),
		orchestrator.WithTopK(cfg.TopK),
		orchestrator.WithBudget(cfg.ContextBudget),
		orchestrator.WithHistoryTurns(cfg.HistoryTurns),
		orchestrator.WithWriterOptions(a.writerOptions()...),
	}

	if cfg.GraphBackend != config.GraphNone {
		g, err := a.graphStore()
		if err != nil {
			a.Close()
			return nil, err
		}
		opts = append(opts, orchestrator.WithGraphStore(g))
	}

	history, err := a.history()
	if err != nil {
		a.Close()
		return nil, err
	}
	opts = append(opts, orchestrator.WithHistory(history))

	a.orchestrator, err = orchestrator.New(chain, index, gen, opts...)
	if err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *app) writerOptions() []store.WriterOption {
	retry := graph.DefaultRetryConfig()
	retry.MaxAttempts = a.cfg.WriteMaxAttempts
	opts := []store.WriterOption{
		store.WithWriteBatchSize(a.cfg.WriteBatchSize),
		store.WithWriteRetry(retry),
	}
	// pgvector columns have a fixed width, so fallback models must match it.
	if a.cfg.VectorBackend == config.VectorPostgres {
		opts = append(opts, store.WithDimension(a.cfg.VectorDimension()))
	}
	return opts
}

func (a *app) embedder() (*embedder.Chain, error) {
	cfg := a.cfg
	providers := make([]embedder.Provider, 0, len(cfg.EmbeddingModels))
	for _, m := range cfg.EmbeddingModels {
		switch m.Provider {
		case config.ProviderOpenAI:
			providers = append(providers, embedder.NewOpenAIProviderFromKey(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, m.Name, m.Dimension))
		case config.ProviderLangChain:
			llm, err := lcopenai.New(a.langchainOptions(lcopenai.WithEmbeddingModel(m.Name))...)
			if err != nil {
				return nil, fmt.Errorf("failed to create langchain client for %s: %w", m.Name, err)
			}
			e, err := embeddings.NewEmbedder(llm, embeddings.WithBatchSize(cfg.EmbeddingBatchSize))
			if err != nil {
				return nil, fmt.Errorf("failed to create langchain embedder for %s: %w", m.Name, err)
			}
			providers = append(providers, embedder.NewLangChainProvider(m.Name, m.Dimension, e))
		case config.ProviderLocal:
			providers = append(providers, embedder.NewHashingProvider(m.Name, m.Dimension))
		}
	}
	return embedder.NewChain(providers,
		embedder.WithBatchSize(cfg.EmbeddingBatchSize),
		embedder.WithTimeout(cfg.EmbeddingTimeout),
		embedder.WithLogger(a.logger),
	)
}

func (a *app) langchainOptions(extra ...lcopenai.Option) []lcopenai.Option {
	opts := []lcopenai.Option{lcopenai.WithToken(a.cfg.OpenAIAPIKey)}
	if a.cfg.OpenAIBaseURL != "" {
		opts = append(opts, lcopenai.WithBaseURL(a.cfg.OpenAIBaseURL))
	}
	return append(opts, extra...)
}

func (a *app) vectorIndex(ctx context.Context) (rag.VectorIndex, error) {
	cfg := a.cfg
	switch cfg.VectorBackend {
	case config.VectorRedis:
		idx := store.NewRedisIndex(store.RedisOptions{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
		a.closers = append(a.closers, idx.Close)
		return idx, nil
	case config.VectorPostgres:
		idx, err := store.NewPgVectorIndex(ctx, store.PostgresOptions{
			ConnString: cfg.PostgresURL,
			TableName:  cfg.PostgresTable,
			Dimension:  cfg.VectorDimension(),
		})
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func() error { idx.Close(); return nil })
		if err := idx.InitSchema(ctx); err != nil {
			return nil, err
		}
		return idx, nil
	default:
		idx := store.NewMemoryIndex()
		if cfg.VectorSnapshot != "" {
			if err := idx.LoadFile(cfg.VectorSnapshot); err != nil {
				return nil, err
			}
			a.closers = append(a.closers, func() error { return idx.SaveFile(cfg.VectorSnapshot) })
		}
		return idx, nil
	}
}

func (a *app) graphStore() (rag.GraphStore, error) {
	url := "memory://"
	if a.cfg.GraphBackend == config.GraphFalkorDB {
		url = a.cfg.FalkorDBURL
	}
	g, err := store.NewGraphStore(url)
	if err != nil {
		return nil, err
	}
	if c, ok := g.(io.Closer); ok {
		a.closers = append(a.closers, c.Close)
	}
	return g, nil
}

func (a *app) generator() (rag.Generator, error) {
	cfg := a.cfg
	opts := []generator.Option{
		generator.WithHistoryTurns(cfg.HistoryTurns),
		generator.WithTemperature(cfg.Temperature),
		generator.WithMaxTokens(cfg.MaxTokens),
		generator.WithTimeout(cfg.GenerationTimeout),
	}
	if cfg.GeneratorBackend == config.GeneratorLangChain {
		llm, err := lcopenai.New(a.langchainOptions(lcopenai.WithModel(cfg.ChatModel))...)
		if err != nil {
			return nil, fmt.Errorf("failed to create langchain chat model: %w", err)
		}
		return generator.NewLangChainGenerator(llm, opts...), nil
	}
	return generator.NewOpenAIGeneratorFromKey(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, cfg.ChatModel, opts...), nil
}

func (a *app) history() (memory.Store, error) {
	if a.cfg.HistoryBackend == config.HistorySQLite {
		s, err := memory.NewSQLiteStore(memory.SQLiteOptions{Path: a.cfg.HistorySQLitePath})
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, s.Close)
		return s, nil
	}
	return memory.NewSlidingWindowMemory(a.cfg.HistoryWindow), nil
}

// Close releases every backend, in reverse order of creation.
func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
