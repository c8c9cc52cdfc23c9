package store

import (
	"context"
	"fmt"
	"maps"
	"sort"
	"strings"
	"sync"

	"github.com/smallnest/ragflow/rag"
)

// NewGraphStore creates a graph store based on the database URL:
// "memory://" or "falkordb://host:port/graph_name".
func NewGraphStore(databaseURL string) (rag.GraphStore, error) {
	if strings.HasPrefix(databaseURL, "memory://") {
		return NewMemoryGraph(), nil
	}

	if strings.HasPrefix(databaseURL, "falkordb://") {
		return NewFalkorDBGraph(databaseURL)
	}

	return nil, rag.NewConfigError("graph_url", "only memory:// and falkordb:// URLs are supported, got %q", databaseURL)
}

// resolvePattern substitutes "$name" values of the pattern with params.
func resolvePattern(p rag.Pattern, params map[string]any) (rag.Pattern, error) {
	resolve := func(in map[string]any) (map[string]any, error) {
		if len(in) == 0 {
			return nil, nil
		}
		out := make(map[string]any, len(in))
		for k, v := range in {
			s, ok := v.(string)
			if !ok || !strings.HasPrefix(s, "$") {
				out[k] = v
				continue
			}
			val, ok := params[strings.TrimPrefix(s, "$")]
			if !ok {
				return nil, rag.NewConfigError("graph_params", "missing parameter %s", s)
			}
			out[k] = val
		}
		return out, nil
	}

	var err error
	if p.Where, err = resolve(p.Where); err != nil {
		return p, err
	}
	if p.Contains, err = resolve(p.Contains); err != nil {
		return p, err
	}
	return p, nil
}

type relKey struct {
	from    rag.NodeRef
	to      rag.NodeRef
	relType string
}

// MemoryGraph implements an in-memory rag.GraphStore
type MemoryGraph struct {
	mu            sync.RWMutex
	nodes         map[rag.NodeRef]map[string]any
	relationships map[relKey]map[string]any
}

var _ rag.GraphStore = (*MemoryGraph)(nil)

// NewMemoryGraph creates an empty MemoryGraph
func NewMemoryGraph() *MemoryGraph {
	return &MemoryGraph{
		nodes:         make(map[rag.NodeRef]map[string]any),
		relationships: make(map[relKey]map[string]any),
	}
}

func (m *MemoryGraph) merge(ref rag.NodeRef, properties map[string]any) {
	props, ok := m.nodes[ref]
	if !ok {
		props = make(map[string]any)
		m.nodes[ref] = props
	}
	maps.Copy(props, properties)
}

// UpsertNode implements rag.GraphStore
func (m *MemoryGraph) UpsertNode(ctx context.Context, label, key string, properties map[string]any) error {
	if label == "" || key == "" {
		return rag.NewConfigError("node", "label and key are required")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.merge(rag.NodeRef{Label: label, Key: key}, properties)
	return nil
}

// UpsertRelationship implements rag.GraphStore
func (m *MemoryGraph) UpsertRelationship(ctx context.Context, from, to rag.NodeRef, relType string, properties map[string]any) error {
	if relType == "" {
		return rag.NewConfigError("relationship", "type is required")
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	m.merge(from, nil)
	m.merge(to, nil)
	k := relKey{from: from, to: to, relType: relType}
	props, ok := m.relationships[k]
	if !ok {
		props = make(map[string]any)
		m.relationships[k] = props
	}
	maps.Copy(props, properties)
	return nil
}

func (m *MemoryGraph) node(ref rag.NodeRef) rag.GraphNode {
	return rag.GraphNode{Label: ref.Label, Key: ref.Key, Properties: maps.Clone(m.nodes[ref])}
}

func matchesNode(ref rag.NodeRef, props map[string]any, p rag.Pattern) bool {
	if p.Label != "" && ref.Label != p.Label {
		return false
	}
	for k, want := range p.Where {
		got, ok := props[k]
		if k == "key" {
			got, ok = ref.Key, true
		}
		if !ok || fmt.Sprint(got) != fmt.Sprint(want) {
			return false
		}
	}
	for k, want := range p.Contains {
		got, ok := props[k]
		if !ok || !strings.Contains(strings.ToLower(fmt.Sprint(got)), strings.ToLower(fmt.Sprint(want))) {
			return false
		}
	}
	return true
}

// Match implements rag.GraphStore. Rows are ordered by node key, then related key.
func (m *MemoryGraph) Match(ctx context.Context, pattern rag.Pattern, params map[string]any) ([]rag.GraphRecord, error) {
	p, err := resolvePattern(pattern, params)
	if err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	refs := make([]rag.NodeRef, 0, len(m.nodes))
	for ref, props := range m.nodes {
		if matchesNode(ref, props, p) {
			refs = append(refs, ref)
		}
	}
	sortRefs(refs)

	var out []rag.GraphRecord
	for _, ref := range refs {
		if p.Relationship == "" {
			out = append(out, rag.GraphRecord{Node: m.node(ref)})
		} else {
			var targets []rag.NodeRef
			for k := range m.relationships {
				if k.from == ref && k.relType == p.Relationship && (p.TargetLabel == "" || k.to.Label == p.TargetLabel) {
					targets = append(targets, k.to)
				}
			}
			sortRefs(targets)
			for _, t := range targets {
				related := m.node(t)
				out = append(out, rag.GraphRecord{Node: m.node(ref), Related: &related})
			}
		}
		if p.Limit > 0 && len(out) >= p.Limit {
			return out[:p.Limit], nil
		}
	}
	return out, nil
}

// DeleteNodes implements rag.GraphStore. Relationships touching a deleted node are removed too.
func (m *MemoryGraph) DeleteNodes(ctx context.Context, label string, keys []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	gone := make(map[rag.NodeRef]bool, len(keys))
	for _, k := range keys {
		ref := rag.NodeRef{Label: label, Key: k}
		delete(m.nodes, ref)
		gone[ref] = true
	}
	for k := range m.relationships {
		if gone[k.from] || gone[k.to] {
			delete(m.relationships, k)
		}
	}
	return nil
}

// Stats returns the number of nodes and relationships.
func (m *MemoryGraph) Stats() (nodes, relationships int) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.nodes), len(m.relationships)
}

func sortRefs(refs []rag.NodeRef) {
	sort.Slice(refs, func(i, j int) bool {
		if refs[i].Key != refs[j].Key {
			return refs[i].Key < refs[j].Key
		}
		return refs[i].Label < refs[j].Label
	})
}
