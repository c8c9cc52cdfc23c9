// Package config loads ragflow settings from the environment. An optional
// .env file is read first; variables already set in the environment win.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/smallnest/ragflow/rag"
)

const (
	VectorMemory   = "memory"
	VectorRedis    = "redis"
	VectorPostgres = "postgres"

	GraphMemory   = "memory"
	GraphFalkorDB = "falkordb"
	GraphNone     = "none"

	GeneratorOpenAI    = "openai"
	GeneratorLangChain = "langchain"

	HistoryMemory = "memory"
	HistorySQLite = "sqlite"

	ProviderOpenAI    = "openai"
	ProviderLangChain = "langchain"
	ProviderLocal     = "local"
)

// EmbeddingModel is one entry of the embedding fallback chain.
type EmbeddingModel struct {
	Provider  string
	Name      string
	Dimension int
}

func (m EmbeddingModel) String() string {
	return fmt.Sprintf("%s/%s:%d", m.Provider, m.Name, m.Dimension)
}

// Config holds every setting of the service.
type Config struct {
	Addr           string
	RequestTimeout time.Duration
	LogLevel       string
	LogFormat      string

	ChunkSize        int
	ChunkOverlap     int
	TopK             int
	ContextBudget    int
	HistoryTurns     int
	DefaultNamespace string

	OpenAIAPIKey  string
	OpenAIBaseURL string

	EmbeddingModels    []EmbeddingModel
	EmbeddingBatchSize int
	EmbeddingTimeout   time.Duration

	GeneratorBackend string
	ChatModel        string
	Temperature      float32
	MaxTokens        int
	// GenerationTimeout bounds one chat completion call. Zero disables it.
	GenerationTimeout time.Duration

	VectorBackend     string
	VectorSnapshot    string
	RedisAddr         string
	RedisPassword     string
	RedisDB           int
	PostgresURL       string
	PostgresTable     string
	WriteMaxAttempts  int
	WriteBatchSize    int
	GraphBackend      string
	FalkorDBURL       string
	HistoryBackend    string
	HistoryWindow     int
	HistorySQLitePath string
}

// Default returns the configuration used when no variable is set.
func Default() *Config {
	return &Config{
		Addr:           ":8080",
		RequestTimeout: 2 * time.Minute,
		LogLevel:       "info",
		LogFormat:      "default",

		ChunkSize:        1000,
		ChunkOverlap:     200,
		TopK:             5,
		ContextBudget:    4000,
		HistoryTurns:     5,
		DefaultNamespace: "default",

		EmbeddingModels: []EmbeddingModel{
			{Provider: ProviderOpenAI, Name: "text-embedding-3-small", Dimension: 1536},
		},
		EmbeddingBatchSize: 32,
		EmbeddingTimeout:   30 * time.Second,

		GeneratorBackend:  GeneratorOpenAI,
		ChatModel:         "gpt-4o-mini",
		Temperature:       0.7,
		MaxTokens:         1024,
		GenerationTimeout: time.Minute,

		VectorBackend:     VectorMemory,
		RedisAddr:         "localhost:6379",
		PostgresTable:     "ragflow_chunks",
		WriteMaxAttempts:  3,
		WriteBatchSize:    100,
		GraphBackend:      GraphMemory,
		FalkorDBURL:       "falkordb://localhost:6379/rag",
		HistoryBackend:    HistoryMemory,
		HistoryWindow:     50,
		HistorySQLitePath: "ragflow_history.db",
	}
}

// Load reads the given .env files (".env" when none are given), then the
// environment. Missing .env files are ignored.
func Load(files ...string) (*Config, error) {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", f, err)
		}
	}
	return FromEnv()
}

// FromEnv builds a configuration from environment variables over Default.
func FromEnv() (*Config, error) {
	cfg := Default()
	p := &parser{}

	p.str("RAGFLOW_ADDR", &cfg.Addr)
	p.duration("REQUEST_TIMEOUT", &cfg.RequestTimeout)
	p.str("LOG_LEVEL", &cfg.LogLevel)
	p.str("LOG_FORMAT", &cfg.LogFormat)

	p.integer("CHUNK_SIZE", &cfg.ChunkSize)
	p.integer("CHUNK_OVERLAP", &cfg.ChunkOverlap)
	p.integer("TOP_K", &cfg.TopK)
	p.integer("CONTEXT_BUDGET", &cfg.ContextBudget)
	p.integer("HISTORY_TURNS", &cfg.HistoryTurns)
	p.str("DEFAULT_NAMESPACE", &cfg.DefaultNamespace)

	p.str("OPENAI_API_KEY", &cfg.OpenAIAPIKey)
	p.str("OPENAI_BASE_URL", &cfg.OpenAIBaseURL)

	if value := strings.TrimSpace(os.Getenv("EMBEDDING_MODELS")); value != "" {
		models, err := ParseEmbeddingModels(value)
		if err != nil {
			return nil, err
		}
		cfg.EmbeddingModels = models
	}
	p.integer("EMBEDDING_BATCH_SIZE", &cfg.EmbeddingBatchSize)
	p.duration("EMBEDDING_TIMEOUT", &cfg.EmbeddingTimeout)

	p.str("GENERATOR_BACKEND", &cfg.GeneratorBackend)
	p.str("CHAT_MODEL", &cfg.ChatModel)
	p.float("TEMPERATURE", &cfg.Temperature)
	p.integer("MAX_TOKENS", &cfg.MaxTokens)
	p.duration("GENERATION_TIMEOUT", &cfg.GenerationTimeout)

	p.str("VECTOR_BACKEND", &cfg.VectorBackend)
	p.str("VECTOR_SNAPSHOT", &cfg.VectorSnapshot)
	p.str("REDIS_ADDR", &cfg.RedisAddr)
	p.str("REDIS_PASSWORD", &cfg.RedisPassword)
	p.integer("REDIS_DB", &cfg.RedisDB)
	p.str("POSTGRES_URL", &cfg.PostgresURL)
	p.str("POSTGRES_TABLE", &cfg.PostgresTable)
	p.integer("INDEX_WRITE_ATTEMPTS", &cfg.WriteMaxAttempts)
	p.integer("INDEX_WRITE_BATCH_SIZE", &cfg.WriteBatchSize)
	p.str("GRAPH_BACKEND", &cfg.GraphBackend)
	p.str("FALKORDB_URL", &cfg.FalkorDBURL)
	p.str("HISTORY_BACKEND", &cfg.HistoryBackend)
	p.integer("HISTORY_WINDOW", &cfg.HistoryWindow)
	p.str("HISTORY_DB", &cfg.HistorySQLitePath)

	if p.err != nil {
		return nil, p.err
	}
	return cfg, nil
}

// ParseEmbeddingModels parses a comma separated list of
// "[provider/]name:dimension" entries, e.g.
// "openai/text-embedding-3-small:1536,local/hashing:256".
// The provider defaults to openai.
func ParseEmbeddingModels(value string) ([]EmbeddingModel, error) {
	var models []EmbeddingModel
	for _, entry := range strings.Split(value, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		ref, dimText, ok := strings.Cut(entry, ":")
		if !ok {
			return nil, rag.NewConfigError("EMBEDDING_MODELS", "entry %q has no dimension", entry)
		}
		dim, err := strconv.Atoi(dimText)
		if err != nil || dim <= 0 {
			return nil, rag.NewConfigError("EMBEDDING_MODELS", "entry %q has an invalid dimension", entry)
		}
		provider, name, ok := strings.Cut(ref, "/")
		if !ok {
			provider, name = ProviderOpenAI, ref
		}
		models = append(models, EmbeddingModel{Provider: provider, Name: name, Dimension: dim})
	}
	if len(models) == 0 {
		return nil, rag.NewConfigError("EMBEDDING_MODELS", "no models listed")
	}
	return models, nil
}

// Validate checks the configuration for values no component can work with.
func (c *Config) Validate() error {
	switch {
	case c.ChunkSize <= 0:
		return rag.NewConfigError("CHUNK_SIZE", "must be positive, got %d", c.ChunkSize)
	case c.ChunkOverlap < 0 || c.ChunkOverlap >= c.ChunkSize:
		return rag.NewConfigError("CHUNK_OVERLAP", "must be in [0, %d), got %d", c.ChunkSize, c.ChunkOverlap)
	case c.TopK <= 0:
		return rag.NewConfigError("TOP_K", "must be positive, got %d", c.TopK)
	case c.ContextBudget <= 0:
		return rag.NewConfigError("CONTEXT_BUDGET", "must be positive, got %d", c.ContextBudget)
	case c.EmbeddingBatchSize <= 0:
		return rag.NewConfigError("EMBEDDING_BATCH_SIZE", "must be positive, got %d", c.EmbeddingBatchSize)
	case len(c.EmbeddingModels) == 0:
		return rag.NewConfigError("EMBEDDING_MODELS", "no models listed")
	}

	needsKey := c.GeneratorBackend == GeneratorOpenAI || c.GeneratorBackend == GeneratorLangChain
	for _, m := range c.EmbeddingModels {
		switch m.Provider {
		case ProviderOpenAI, ProviderLangChain:
			needsKey = true
		case ProviderLocal:
		default:
			return rag.NewConfigError("EMBEDDING_MODELS", "unknown provider %q", m.Provider)
		}
	}
	if needsKey && c.OpenAIAPIKey == "" {
		return rag.NewConfigError("OPENAI_API_KEY", "is required")
	}

	if err := oneOf("GENERATOR_BACKEND", c.GeneratorBackend, GeneratorOpenAI, GeneratorLangChain); err != nil {
		return err
	}
	if err := oneOf("VECTOR_BACKEND", c.VectorBackend, VectorMemory, VectorRedis, VectorPostgres); err != nil {
		return err
	}
	if err := oneOf("GRAPH_BACKEND", c.GraphBackend, GraphMemory, GraphFalkorDB, GraphNone); err != nil {
		return err
	}
	if err := oneOf("HISTORY_BACKEND", c.HistoryBackend, HistoryMemory, HistorySQLite); err != nil {
		return err
	}
	if c.VectorBackend == VectorPostgres && c.PostgresURL == "" {
		return rag.NewConfigError("POSTGRES_URL", "is required for the postgres backend")
	}
	if c.VectorBackend == VectorRedis && c.RedisAddr == "" {
		return rag.NewConfigError("REDIS_ADDR", "is required for the redis backend")
	}
	return nil
}

// VectorDimension is the dimension of the first embedding model, which
// sizes the postgres vector column.
func (c *Config) VectorDimension() int {
	if len(c.EmbeddingModels) == 0 {
		return 0
	}
	return c.EmbeddingModels[0].Dimension
}

func oneOf(field, value string, allowed ...string) error {
	for _, a := range allowed {
		if value == a {
			return nil
		}
	}
	return rag.NewConfigError(field, "must be one of %s, got %q", strings.Join(allowed, ", "), value)
}

// parser reads typed variables and keeps the first error.
type parser struct {
	err error
}

func (p *parser) lookup(key string) (string, bool) {
	if p.err != nil {
		return "", false
	}
	value := strings.TrimSpace(os.Getenv(key))
	return value, value != ""
}

func (p *parser) str(key string, dst *string) {
	if value, ok := p.lookup(key); ok {
		*dst = value
	}
}

func (p *parser) integer(key string, dst *int) {
	value, ok := p.lookup(key)
	if !ok {
		return
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		p.err = rag.NewConfigError(key, "not an integer: %q", value)
		return
	}
	*dst = n
}

func (p *parser) float(key string, dst *float32) {
	value, ok := p.lookup(key)
	if !ok {
		return
	}
	f, err := strconv.ParseFloat(value, 32)
	if err != nil {
		p.err = rag.NewConfigError(key, "not a number: %q", value)
		return
	}
	*dst = float32(f)
}

func (p *parser) duration(key string, dst *time.Duration) {
	value, ok := p.lookup(key)
	if !ok {
		return
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		p.err = rag.NewConfigError(key, "not a duration: %q", value)
		return
	}
	*dst = d
}
