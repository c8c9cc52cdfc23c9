package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"

	"github.com/smallnest/ragflow/rag"
)

// RedisIndex is a rag.VectorIndex backed by Redis. Records are stored as
// JSON strings and indexed by namespace and source sets; queries score every
// record of the namespace in process. It suits small and medium collections
// that want persistence without a dedicated vector database.
type RedisIndex struct {
	client redis.UniversalClient
	prefix string
}

var _ rag.VectorIndex = (*RedisIndex)(nil)

// RedisOptions configuration for Redis connection
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	Prefix   string // Key prefix, default "ragflow:"
}

// NewRedisIndex creates a RedisIndex from connection options
func NewRedisIndex(opts RedisOptions) *RedisIndex {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	return NewRedisIndexWithClient(client, opts.Prefix)
}

// NewRedisIndexWithClient creates a RedisIndex using an existing client
func NewRedisIndexWithClient(client redis.UniversalClient, prefix string) *RedisIndex {
	if prefix == "" {
		prefix = "ragflow:"
	}
	return &RedisIndex{client: client, prefix: prefix}
}

func (s *RedisIndex) recordKey(ns, id string) string {
	return fmt.Sprintf("%svec:%s:%s", s.prefix, ns, id)
}

func (s *RedisIndex) idsKey(ns string) string {
	return fmt.Sprintf("%sns:%s:ids", s.prefix, ns)
}

func (s *RedisIndex) sourceKey(ns, sourceID string) string {
	return fmt.Sprintf("%sns:%s:src:%s", s.prefix, ns, sourceID)
}

func (s *RedisIndex) dimKey(ns string) string {
	return fmt.Sprintf("%sns:%s:dim", s.prefix, ns)
}

func (s *RedisIndex) dimension(ctx context.Context, c redis.Cmdable, ns string) (int, error) {
	dim, err := c.Get(ctx, s.dimKey(ns)).Int()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read namespace dimension: %w", err)
	}
	return dim, nil
}

func checkDimension(records []rag.VectorRecord, dim int) (int, error) {
	for _, r := range records {
		if dim == 0 {
			dim = len(r.Vector)
		}
		if len(r.Vector) == 0 || len(r.Vector) != dim {
			return 0, rag.NewConfigError("vector", "record %s has dimension %d, namespace expects %d", r.ID, len(r.Vector), dim)
		}
	}
	return dim, nil
}

func (s *RedisIndex) writeRecords(ctx context.Context, pipe redis.Pipeliner, ns string, dim int, records []rag.VectorRecord) error {
	if len(records) == 0 {
		return nil
	}
	pipe.Set(ctx, s.dimKey(ns), strconv.Itoa(dim), 0)
	for _, r := range records {
		data, err := json.Marshal(r)
		if err != nil {
			return fmt.Errorf("failed to marshal record %s: %w", r.ID, err)
		}
		pipe.Set(ctx, s.recordKey(ns, r.ID), data, 0)
		pipe.SAdd(ctx, s.idsKey(ns), r.ID)
		pipe.SAdd(ctx, s.sourceKey(ns, r.SourceID), r.ID)
	}
	return nil
}

// Upsert implements rag.VectorIndex. All records are written in one MULTI/EXEC.
func (s *RedisIndex) Upsert(ctx context.Context, namespace string, records []rag.VectorRecord) error {
	current, err := s.dimension(ctx, s.client, namespace)
	if err != nil {
		return err
	}
	dim, err := checkDimension(records, current)
	if err != nil {
		return err
	}

	var marshalErr error
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		marshalErr = s.writeRecords(ctx, pipe, namespace, dim, records)
		return marshalErr
	})
	if marshalErr != nil {
		return marshalErr
	}
	if err != nil {
		return fmt.Errorf("failed to upsert records to redis: %w", err)
	}
	return nil
}

// ReplaceSource implements rag.VectorIndex. The source set is watched so a
// concurrent change aborts the transaction instead of interleaving with it.
// A namespace left without records loses its dimension.
func (s *RedisIndex) ReplaceSource(ctx context.Context, namespace, sourceID string, records []rag.VectorRecord) error {
	srcKey := s.sourceKey(namespace, sourceID)
	err := s.client.Watch(ctx, func(tx *redis.Tx) error {
		old, err := tx.SMembers(ctx, srcKey).Result()
		if err != nil {
			return fmt.Errorf("failed to read source records: %w", err)
		}
		total, err := tx.SCard(ctx, s.idsKey(namespace)).Result()
		if err != nil {
			return fmt.Errorf("failed to count records: %w", err)
		}
		current := 0
		if others := total - int64(len(old)); others > 0 {
			if current, err = s.dimension(ctx, tx, namespace); err != nil {
				return err
			}
		}
		dim, err := checkDimension(records, current)
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			s.removeRecords(ctx, pipe, namespace, sourceID, old)
			if current == 0 && len(records) == 0 {
				pipe.Del(ctx, s.dimKey(namespace))
			}
			return s.writeRecords(ctx, pipe, namespace, dim, records)
		})
		return err
	}, srcKey, s.idsKey(namespace), s.dimKey(namespace))

	var cfgErr *rag.ConfigError
	if errors.As(err, &cfgErr) {
		return err
	}
	if err != nil {
		return fmt.Errorf("failed to replace source %s in redis: %w", sourceID, err)
	}
	return nil
}

func (s *RedisIndex) removeRecords(ctx context.Context, pipe redis.Pipeliner, ns, sourceID string, ids []string) {
	for _, id := range ids {
		pipe.Del(ctx, s.recordKey(ns, id))
		pipe.SRem(ctx, s.idsKey(ns), id)
	}
	pipe.Del(ctx, s.sourceKey(ns, sourceID))
}

// DeleteSource implements rag.VectorIndex
func (s *RedisIndex) DeleteSource(ctx context.Context, namespace, sourceID string) error {
	return s.ReplaceSource(ctx, namespace, sourceID, nil)
}

// Query implements rag.VectorIndex
func (s *RedisIndex) Query(ctx context.Context, namespace string, vector []float32, k int) ([]rag.VectorMatch, error) {
	if err := checkTopK(k); err != nil {
		return nil, err
	}

	ids, err := s.client.SMembers(ctx, s.idsKey(namespace)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list records: %w", err)
	}
	if len(ids) == 0 {
		return []rag.VectorMatch{}, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = s.recordKey(namespace, id)
	}
	results, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to fetch records: %w", err)
	}

	matches := make([]rag.VectorMatch, 0, len(results))
	for _, result := range results {
		data, ok := result.(string)
		if !ok {
			continue
		}
		var r rag.VectorRecord
		if err := json.Unmarshal([]byte(data), &r); err != nil {
			return nil, fmt.Errorf("failed to unmarshal record: %w", err)
		}
		if len(r.Vector) != len(vector) {
			return nil, rag.NewConfigError("vector", "query has dimension %d, namespace %s expects %d", len(vector), namespace, len(r.Vector))
		}
		matches = append(matches, rag.VectorMatch{Record: r, Score: cosineScore(vector, r.Vector)})
	}
	return topK(matches, k), nil
}

// Count implements rag.VectorIndex
func (s *RedisIndex) Count(ctx context.Context, namespace string) (int, error) {
	n, err := s.client.SCard(ctx, s.idsKey(namespace)).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to count records: %w", err)
	}
	return int(n), nil
}

// Close closes the underlying client
func (s *RedisIndex) Close() error {
	return s.client.Close()
}
