package store

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"github.com/pashagolub/pgxmock/v3"
	"github.com/smallnest/ragflow/rag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPgVectorIndex_InitSchema(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	idx := NewPgVectorIndexWithPool(mock, "", 3)
	assert.Equal(t, "rag_chunks", idx.tableName)

	mock.ExpectExec(regexp.QuoteMeta("CREATE EXTENSION IF NOT EXISTS vector")).
		WillReturnResult(pgxmock.NewResult("CREATE", 0))

	assert.NoError(t, idx.InitSchema(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPgVectorIndex_Upsert(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	idx := NewPgVectorIndexWithPool(mock, "chunks", 2)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO chunks")).
		WithArgs("ns", "a", "s1", "text a", 0, pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO chunks")).
		WithArgs("ns", "b", "s1", "text b", 1, pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	err = idx.Upsert(context.Background(), "ns", []rag.VectorRecord{rec("a", "s1", 0, 1, 0), rec("b", "s1", 1, 0, 1)})
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPgVectorIndex_UpsertRollsBack(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	idx := NewPgVectorIndexWithPool(mock, "chunks", 2)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO chunks")).
		WithArgs("ns", "a", "s1", "text a", 0, pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	err = idx.Upsert(context.Background(), "ns", []rag.VectorRecord{rec("a", "s1", 0, 1, 0)})
	assert.ErrorContains(t, err, "disk full")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPgVectorIndex_DimensionMismatch(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	idx := NewPgVectorIndexWithPool(mock, "chunks", 3)

	err = idx.Upsert(context.Background(), "ns", []rag.VectorRecord{rec("a", "s1", 0, 1, 0)})
	var cfg *rag.ConfigError
	assert.ErrorAs(t, err, &cfg)

	_, err = idx.Query(context.Background(), "ns", []float32{1}, 3)
	assert.ErrorAs(t, err, &cfg)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPgVectorIndex_ReplaceSource(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	idx := NewPgVectorIndexWithPool(mock, "chunks", 2)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM chunks WHERE namespace = $1 AND source_id = $2")).
		WithArgs("ns", "s1").
		WillReturnResult(pgxmock.NewResult("DELETE", 3))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO chunks")).
		WithArgs("ns", "a", "s1", "text a", 0, pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	err = idx.ReplaceSource(context.Background(), "ns", "s1", []rag.VectorRecord{rec("a", "s1", 0, 1, 0)})
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPgVectorIndex_DeleteSource(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	idx := NewPgVectorIndexWithPool(mock, "chunks", 2)

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM chunks WHERE namespace = $1 AND source_id = $2")).
		WithArgs("ns", "s1").
		WillReturnResult(pgxmock.NewResult("DELETE", 2))

	assert.NoError(t, idx.DeleteSource(context.Background(), "ns", "s1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPgVectorIndex_Query(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	idx := NewPgVectorIndexWithPool(mock, "chunks", 2)

	rows := pgxmock.NewRows([]string{"id", "source_id", "content", "sequence_index", "metadata", "distance"}).
		AddRow("a", "s1", "alpha", 0, []byte(`{"lang":"en"}`), 0.0).
		AddRow("b", "s2", "beta", 3, []byte(nil), 1.0)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, source_id, content, sequence_index, metadata, embedding <=> $2 AS distance")).
		WithArgs("ns", pgxmock.AnyArg(), 2).
		WillReturnRows(rows)

	matches, err := idx.Query(context.Background(), "ns", []float32{1, 0}, 2)
	require.NoError(t, err)
	require.Len(t, matches, 2)

	assert.Equal(t, "a", matches[0].Record.ID)
	assert.Equal(t, "alpha", matches[0].Record.Text)
	assert.Equal(t, "en", matches[0].Record.Metadata["lang"])
	assert.Equal(t, 1.0, matches[0].Score)

	assert.Equal(t, "b", matches[1].Record.ID)
	assert.Equal(t, 3, matches[1].Record.SequenceIndex)
	assert.Equal(t, 0.5, matches[1].Score)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPgVectorIndex_QueryError(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	idx := NewPgVectorIndexWithPool(mock, "chunks", 2)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, source_id")).
		WithArgs("ns", pgxmock.AnyArg(), 5).
		WillReturnError(errors.New("connection reset"))

	_, err = idx.Query(context.Background(), "ns", []float32{1, 0}, 5)
	assert.ErrorContains(t, err, "connection reset")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPgVectorIndex_Count(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	idx := NewPgVectorIndexWithPool(mock, "chunks", 2)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM chunks WHERE namespace = $1")).
		WithArgs("ns").
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(7))

	n, err := idx.Count(context.Background(), "ns")
	assert.NoError(t, err)
	assert.Equal(t, 7, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}
