package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/smallnest/ragflow/rag"
)

// DBPool defines the interface for database connection pool
type DBPool interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
	Close()
}

// PgVectorIndex implements rag.VectorIndex on PostgreSQL with the pgvector
// extension. All namespaces share one table whose vector column has a fixed
// dimension.
type PgVectorIndex struct {
	pool      DBPool
	tableName string
	dimension int
}

var _ rag.VectorIndex = (*PgVectorIndex)(nil)

// PostgresOptions configuration for Postgres connection
type PostgresOptions struct {
	ConnString string
	TableName  string // Default "rag_chunks"
	Dimension  int
}

// NewPgVectorIndex creates a new pgvector index
func NewPgVectorIndex(ctx context.Context, opts PostgresOptions) (*PgVectorIndex, error) {
	if opts.Dimension <= 0 {
		return nil, rag.NewConfigError("vector_dimension", "must be positive, got %d", opts.Dimension)
	}
	pool, err := pgxpool.New(ctx, opts.ConnString)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}
	return NewPgVectorIndexWithPool(pool, opts.TableName, opts.Dimension), nil
}

// NewPgVectorIndexWithPool creates a new pgvector index with an existing pool
// Useful for testing with mocks
func NewPgVectorIndexWithPool(pool DBPool, tableName string, dimension int) *PgVectorIndex {
	if tableName == "" {
		tableName = "rag_chunks"
	}
	return &PgVectorIndex{
		pool:      pool,
		tableName: tableName,
		dimension: dimension,
	}
}

// InitSchema creates the extension, table and indexes if they don't exist
func (s *PgVectorIndex) InitSchema(ctx context.Context) error {
	query := fmt.Sprintf(`
		CREATE EXTENSION IF NOT EXISTS vector;
		CREATE TABLE IF NOT EXISTS %s (
			namespace TEXT NOT NULL,
			id TEXT NOT NULL,
			source_id TEXT NOT NULL,
			content TEXT NOT NULL,
			sequence_index INTEGER NOT NULL,
			metadata JSONB,
			embedding vector(%d) NOT NULL,
			PRIMARY KEY (namespace, id)
		);
		CREATE INDEX IF NOT EXISTS idx_%s_source ON %s (namespace, source_id);
	`, s.tableName, s.dimension, s.tableName, s.tableName)

	_, err := s.pool.Exec(ctx, query)
	if err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// Close closes the connection pool
func (s *PgVectorIndex) Close() {
	s.pool.Close()
}

func (s *PgVectorIndex) check(records []rag.VectorRecord) error {
	for _, r := range records {
		if len(r.Vector) != s.dimension {
			return rag.NewConfigError("vector", "record %s has dimension %d, table %s expects %d", r.ID, len(r.Vector), s.tableName, s.dimension)
		}
	}
	return nil
}

func (s *PgVectorIndex) insert(ctx context.Context, tx pgx.Tx, namespace string, r rag.VectorRecord) error {
	metadataJSON, err := json.Marshal(r.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}

	query := fmt.Sprintf(`
		INSERT INTO %s (namespace, id, source_id, content, sequence_index, metadata, embedding)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (namespace, id) DO UPDATE SET
			source_id = EXCLUDED.source_id,
			content = EXCLUDED.content,
			sequence_index = EXCLUDED.sequence_index,
			metadata = EXCLUDED.metadata,
			embedding = EXCLUDED.embedding
	`, s.tableName)

	_, err = tx.Exec(ctx, query,
		namespace,
		r.ID,
		r.SourceID,
		r.Text,
		r.SequenceIndex,
		metadataJSON,
		pgvector.NewVector(r.Vector),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert record %s: %w", r.ID, err)
	}
	return nil
}

// inTx runs fn in a transaction, committing on success and rolling back otherwise.
func (s *PgVectorIndex) inTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Upsert implements rag.VectorIndex
func (s *PgVectorIndex) Upsert(ctx context.Context, namespace string, records []rag.VectorRecord) error {
	if err := s.check(records); err != nil {
		return err
	}
	if len(records) == 0 {
		return nil
	}
	return s.inTx(ctx, func(tx pgx.Tx) error {
		for _, r := range records {
			if err := s.insert(ctx, tx, namespace, r); err != nil {
				return err
			}
		}
		return nil
	})
}

// ReplaceSource implements rag.VectorIndex
func (s *PgVectorIndex) ReplaceSource(ctx context.Context, namespace, sourceID string, records []rag.VectorRecord) error {
	if err := s.check(records); err != nil {
		return err
	}
	return s.inTx(ctx, func(tx pgx.Tx) error {
		query := fmt.Sprintf("DELETE FROM %s WHERE namespace = $1 AND source_id = $2", s.tableName)
		if _, err := tx.Exec(ctx, query, namespace, sourceID); err != nil {
			return fmt.Errorf("failed to delete source %s: %w", sourceID, err)
		}
		for _, r := range records {
			if err := s.insert(ctx, tx, namespace, r); err != nil {
				return err
			}
		}
		return nil
	})
}

// DeleteSource implements rag.VectorIndex
func (s *PgVectorIndex) DeleteSource(ctx context.Context, namespace, sourceID string) error {
	query := fmt.Sprintf("DELETE FROM %s WHERE namespace = $1 AND source_id = $2", s.tableName)
	_, err := s.pool.Exec(ctx, query, namespace, sourceID)
	if err != nil {
		return fmt.Errorf("failed to delete source %s: %w", sourceID, err)
	}
	return nil
}

// Query implements rag.VectorIndex. Scores derive from pgvector's cosine distance.
func (s *PgVectorIndex) Query(ctx context.Context, namespace string, vector []float32, k int) ([]rag.VectorMatch, error) {
	if err := checkTopK(k); err != nil {
		return nil, err
	}
	if len(vector) != s.dimension {
		return nil, rag.NewConfigError("vector", "query has dimension %d, table %s expects %d", len(vector), s.tableName, s.dimension)
	}

	query := fmt.Sprintf(`
		SELECT id, source_id, content, sequence_index, metadata, embedding <=> $2 AS distance
		FROM %s
		WHERE namespace = $1
		ORDER BY distance, id
		LIMIT $3
	`, s.tableName)

	rows, err := s.pool.Query(ctx, query, namespace, pgvector.NewVector(vector), k)
	if err != nil {
		return nil, fmt.Errorf("failed to query vectors: %w", err)
	}
	defer rows.Close()

	var matches []rag.VectorMatch
	for rows.Next() {
		var r rag.VectorRecord
		var metadataJSON []byte
		var distance float64
		if err := rows.Scan(&r.ID, &r.SourceID, &r.Text, &r.SequenceIndex, &metadataJSON, &distance); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		if len(metadataJSON) > 0 {
			if err := json.Unmarshal(metadataJSON, &r.Metadata); err != nil {
				return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
			}
		}
		matches = append(matches, rag.VectorMatch{Record: r, Score: DistanceToScore(distance)})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	if matches == nil {
		matches = []rag.VectorMatch{}
	}
	return matches, nil
}

// Count implements rag.VectorIndex
func (s *PgVectorIndex) Count(ctx context.Context, namespace string) (int, error) {
	query := fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE namespace = $1", s.tableName)
	var n int
	if err := s.pool.QueryRow(ctx, query, namespace).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count records: %w", err)
	}
	return n, nil
}
