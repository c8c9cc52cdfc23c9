package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/smallnest/ragflow/rag"
)

// MemoryIndex is an in-process rag.VectorIndex. Each namespace records the
// dimension of its first vector and rejects vectors of any other length.
type MemoryIndex struct {
	mu         sync.RWMutex
	namespaces map[string]*memoryNamespace
}

type memoryNamespace struct {
	Dimension int                         `json:"dimension"`
	Records   map[string]rag.VectorRecord `json:"records"`
}

var _ rag.VectorIndex = (*MemoryIndex)(nil)

// NewMemoryIndex creates an empty MemoryIndex
func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{namespaces: make(map[string]*memoryNamespace)}
}

func (s *MemoryIndex) namespace(name string) *memoryNamespace {
	ns, ok := s.namespaces[name]
	if !ok {
		ns = &memoryNamespace{Records: make(map[string]rag.VectorRecord)}
		s.namespaces[name] = ns
	}
	return ns
}

func (ns *memoryNamespace) check(records []rag.VectorRecord) error {
	_, err := checkDimension(records, ns.Dimension)
	return err
}

// Upsert implements rag.VectorIndex
func (s *MemoryIndex) Upsert(ctx context.Context, namespace string, records []rag.VectorRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ns := s.namespace(namespace)
	if err := ns.check(records); err != nil {
		return err
	}
	for _, r := range records {
		if ns.Dimension == 0 {
			ns.Dimension = len(r.Vector)
		}
		ns.Records[r.ID] = r
	}
	return nil
}

// ReplaceSource implements rag.VectorIndex. The swap happens under one lock,
// so readers see either the old or the new set of records.
func (s *MemoryIndex) ReplaceSource(ctx context.Context, namespace, sourceID string, records []rag.VectorRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ns := s.namespace(namespace)
	dim := ns.Dimension
	if !ns.holdsOtherSources(sourceID) {
		// The namespace holds nothing but this source, so the new
		// version may bring a new dimension.
		dim = 0
	}
	dim, err := checkDimension(records, dim)
	if err != nil {
		return err
	}
	ns.removeSource(sourceID)
	for _, r := range records {
		ns.Records[r.ID] = r
	}
	if len(ns.Records) > 0 {
		ns.Dimension = dim
	}
	return nil
}

// DeleteSource implements rag.VectorIndex
func (s *MemoryIndex) DeleteSource(ctx context.Context, namespace, sourceID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ns, ok := s.namespaces[namespace]
	if !ok {
		return nil
	}
	ns.removeSource(sourceID)
	return nil
}

func (ns *memoryNamespace) holdsOtherSources(sourceID string) bool {
	for _, r := range ns.Records {
		if r.SourceID != sourceID {
			return true
		}
	}
	return false
}

// removeSource deletes the records of sourceID. An emptied namespace forgets
// its dimension.
func (ns *memoryNamespace) removeSource(sourceID string) {
	for id, r := range ns.Records {
		if r.SourceID == sourceID {
			delete(ns.Records, id)
		}
	}
	if len(ns.Records) == 0 {
		ns.Dimension = 0
	}
}

// Query implements rag.VectorIndex
func (s *MemoryIndex) Query(ctx context.Context, namespace string, vector []float32, k int) ([]rag.VectorMatch, error) {
	if err := checkTopK(k); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	ns, ok := s.namespaces[namespace]
	if !ok || len(ns.Records) == 0 {
		return []rag.VectorMatch{}, nil
	}
	if len(vector) != ns.Dimension {
		return nil, rag.NewConfigError("vector", "query has dimension %d, namespace %s expects %d", len(vector), namespace, ns.Dimension)
	}

	matches := make([]rag.VectorMatch, 0, len(ns.Records))
	for _, r := range ns.Records {
		matches = append(matches, rag.VectorMatch{Record: r, Score: cosineScore(vector, r.Vector)})
	}
	return topK(matches, k), nil
}

// Count implements rag.VectorIndex
func (s *MemoryIndex) Count(ctx context.Context, namespace string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if ns, ok := s.namespaces[namespace]; ok {
		return len(ns.Records), nil
	}
	return 0, nil
}

// SaveFile writes a JSON snapshot of every namespace to path. The snapshot is
// a local cache: it can always be rebuilt by indexing the sources again.
func (s *MemoryIndex) SaveFile(path string) error {
	s.mu.RLock()
	data, err := json.Marshal(s.namespaces)
	s.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("failed to marshal index snapshot: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create snapshot directory: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write index snapshot: %w", err)
	}
	return os.Rename(tmp, path)
}

// LoadFile replaces the index contents with the snapshot at path.
// A missing file leaves the index empty and is not an error.
func (s *MemoryIndex) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read index snapshot: %w", err)
	}

	namespaces := make(map[string]*memoryNamespace)
	if err := json.Unmarshal(data, &namespaces); err != nil {
		return fmt.Errorf("failed to parse index snapshot: %w", err)
	}

	s.mu.Lock()
	s.namespaces = namespaces
	s.mu.Unlock()
	return nil
}
