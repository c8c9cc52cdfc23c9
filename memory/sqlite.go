package memory

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/smallnest/ragflow/rag"
)

// SQLiteStore implements Store on an append-only SQLite table
type SQLiteStore struct {
	db        *sql.DB
	tableName string
}

var _ Store = (*SQLiteStore)(nil)

// SQLiteOptions configuration for SQLite connection
type SQLiteOptions struct {
	Path      string
	TableName string // Default "conversation_turns"
}

// NewSQLiteStore opens the database and creates the schema
func NewSQLiteStore(opts SQLiteOptions) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", opts.Path)
	if err != nil {
		return nil, fmt.Errorf("unable to open database: %w", err)
	}

	tableName := opts.TableName
	if tableName == "" {
		tableName = "conversation_turns"
	}

	store := &SQLiteStore{
		db:        db,
		tableName: tableName,
	}

	if err := store.InitSchema(context.Background()); err != nil {
		db.Close()
		return nil, err
	}

	return store, nil
}

// InitSchema creates the necessary table if it doesn't exist
func (s *SQLiteStore) InitSchema(ctx context.Context) error {
	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id TEXT NOT NULL,
			role TEXT NOT NULL,
			content TEXT NOT NULL,
			timestamp DATETIME NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_%s_session_id ON %s (session_id, id);
	`, s.tableName, s.tableName, s.tableName)

	_, err := s.db.ExecContext(ctx, query)
	if err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Append implements Store. All turns are inserted in one transaction.
func (s *SQLiteStore) Append(ctx context.Context, sessionID string, turns ...rag.ConversationTurn) error {
	if sessionID == "" {
		return rag.NewConfigError("session_id", "must not be empty")
	}
	if len(turns) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	query := fmt.Sprintf("INSERT INTO %s (session_id, role, content, timestamp) VALUES (?, ?, ?, ?)", s.tableName)
	for _, turn := range turns {
		ts := turn.Timestamp
		if ts.IsZero() {
			ts = time.Now()
		}
		if _, err := tx.ExecContext(ctx, query, sessionID, string(turn.Role), turn.Content, ts.UTC()); err != nil {
			return fmt.Errorf("failed to append turn: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit turns: %w", err)
	}
	return nil
}

// Recent implements Store
func (s *SQLiteStore) Recent(ctx context.Context, sessionID string, n int) ([]rag.ConversationTurn, error) {
	if n <= 0 {
		return nil, nil
	}

	query := fmt.Sprintf(`
		SELECT role, content, timestamp
		FROM %s
		WHERE session_id = ?
		ORDER BY id DESC
		LIMIT ?
	`, s.tableName)

	rows, err := s.db.QueryContext(ctx, query, sessionID, n)
	if err != nil {
		return nil, fmt.Errorf("failed to load turns: %w", err)
	}
	defer rows.Close()

	var turns []rag.ConversationTurn
	for rows.Next() {
		var turn rag.ConversationTurn
		var role string
		if err := rows.Scan(&role, &turn.Content, &turn.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan turn row: %w", err)
		}
		turn.Role = rag.Role(role)
		turns = append(turns, turn)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating turn rows: %w", err)
	}

	// Rows come newest first.
	for i, j := 0, len(turns)-1; i < j; i, j = i+1, j-1 {
		turns[i], turns[j] = turns[j], turns[i]
	}
	return turns, nil
}

// Clear implements Store
func (s *SQLiteStore) Clear(ctx context.Context, sessionID string) error {
	query := fmt.Sprintf("DELETE FROM %s WHERE session_id = ?", s.tableName)
	_, err := s.db.ExecContext(ctx, query, sessionID)
	if err != nil {
		return fmt.Errorf("failed to clear session: %w", err)
	}
	return nil
}

// GetStats implements Store
func (s *SQLiteStore) GetStats(ctx context.Context) (*Stats, error) {
	query := fmt.Sprintf("SELECT COUNT(DISTINCT session_id), COUNT(*) FROM %s", s.tableName)
	stats := &Stats{}
	if err := s.db.QueryRowContext(ctx, query).Scan(&stats.Sessions, &stats.TotalTurns); err != nil {
		return nil, fmt.Errorf("failed to read stats: %w", err)
	}
	return stats, nil
}
