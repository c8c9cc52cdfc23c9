package rag

import "context"

// VectorRecord is the stored form of an embedded chunk.
type VectorRecord struct {
	ID            string            `json:"id"`
	SourceID      string            `json:"source_id"`
	Text          string            `json:"text"`
	SequenceIndex int               `json:"sequence_index"`
	Vector        []float32         `json:"vector"`
	Metadata      map[string]string `json:"metadata,omitempty"`
}

// Chunk converts the record back to a Chunk.
func (r VectorRecord) Chunk() Chunk {
	return Chunk{
		ID:            r.ID,
		SourceID:      r.SourceID,
		Text:          r.Text,
		SequenceIndex: r.SequenceIndex,
		Vector:        r.Vector,
		Metadata:      r.Metadata,
	}
}

// RecordFromChunk builds a VectorRecord from an embedded chunk.
func RecordFromChunk(c Chunk) VectorRecord {
	return VectorRecord{
		ID:            c.ID,
		SourceID:      c.SourceID,
		Text:          c.Text,
		SequenceIndex: c.SequenceIndex,
		Vector:        c.Vector,
		Metadata:      c.Metadata,
	}
}

// VectorMatch is a query hit. Score is in [0, 1], higher is better.
type VectorMatch struct {
	Record VectorRecord
	Score  float64
}

// VectorIndex is a namespaced nearest-neighbour store.
type VectorIndex interface {
	// Upsert inserts or overwrites records by ID.
	Upsert(ctx context.Context, namespace string, records []VectorRecord) error
	// Query returns up to topK records ordered by descending score.
	Query(ctx context.Context, namespace string, vector []float32, topK int) ([]VectorMatch, error)
	// ReplaceSource atomically replaces every record of sourceID with records.
	ReplaceSource(ctx context.Context, namespace, sourceID string, records []VectorRecord) error
	// DeleteSource removes every record of sourceID.
	DeleteSource(ctx context.Context, namespace, sourceID string) error
	// Count returns the number of records in namespace.
	Count(ctx context.Context, namespace string) (int, error)
}

// NodeRef identifies a graph node by label and natural key.
type NodeRef struct {
	Label string `json:"label"`
	Key   string `json:"key"`
}

// GraphNode is a node returned from a match.
type GraphNode struct {
	Label      string         `json:"label"`
	Key        string         `json:"key"`
	Properties map[string]any `json:"properties,omitempty"`
}

// Ref returns the node's reference.
func (n GraphNode) Ref() NodeRef {
	return NodeRef{Label: n.Label, Key: n.Key}
}

// Pattern is a small structured subset of a Cypher MATCH:
//
//	MATCH (n:Label)-[:Relationship]->(m:TargetLabel)
//	WHERE n.k = v AND toLower(n.c) CONTAINS toLower(w)
//	RETURN n, m LIMIT Limit
//
// String values written as "$name" are bound from the params passed to Match.
type Pattern struct {
	Label        string
	Where        map[string]any
	Contains     map[string]any
	Relationship string
	TargetLabel  string
	Limit        int
}

// GraphRecord is one row of a match. Related is set when the pattern has a relationship.
type GraphRecord struct {
	Node    GraphNode
	Related *GraphNode
}

// GraphStore persists entities and relationships keyed by natural key.
type GraphStore interface {
	// UpsertNode merges the node identified by (label, key) and sets properties.
	UpsertNode(ctx context.Context, label, key string, properties map[string]any) error
	// UpsertRelationship merges a typed relationship between two existing or new nodes.
	UpsertRelationship(ctx context.Context, from, to NodeRef, relType string, properties map[string]any) error
	// Match runs a pattern query.
	Match(ctx context.Context, pattern Pattern, params map[string]any) ([]GraphRecord, error)
	// DeleteNodes removes nodes and their relationships.
	DeleteNodes(ctx context.Context, label string, keys []string) error
}
