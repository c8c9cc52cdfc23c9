package store

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/smallnest/ragflow/rag"
)

// FalkorDBGraph implements rag.GraphStore on FalkorDB. Every write is a
// MERGE on the natural key and every value travels as a query parameter.
type FalkorDBGraph struct {
	client    redis.UniversalClient
	graphName string
}

var _ rag.GraphStore = (*FalkorDBGraph)(nil)

// NewFalkorDBGraph creates a new FalkorDB graph store
func NewFalkorDBGraph(connectionString string) (*FalkorDBGraph, error) {
	// Format: falkordb://host:port/graph_name
	u, err := url.Parse(connectionString)
	if err != nil {
		return nil, fmt.Errorf("invalid connection string: %w", err)
	}

	addr := u.Host
	if addr == "" {
		return nil, fmt.Errorf("invalid connection string: missing host")
	}
	graphName := strings.TrimPrefix(u.Path, "/")
	if graphName == "" {
		graphName = "rag"
	}

	opts := &redis.Options{Addr: addr}
	if u.User != nil {
		opts.Password, _ = u.User.Password()
	}
	return NewFalkorDBGraphWithClient(redis.NewClient(opts), graphName), nil
}

// NewFalkorDBGraphWithClient creates a graph store using an existing client
func NewFalkorDBGraphWithClient(client redis.UniversalClient, graphName string) *FalkorDBGraph {
	return &FalkorDBGraph{client: client, graphName: graphName}
}

func (f *FalkorDBGraph) query(ctx context.Context, q string, params map[string]any) (QueryResult, error) {
	g := NewGraph(f.graphName, f.client)
	qr, err := g.Query(ctx, q, params)
	if err != nil {
		return qr, fmt.Errorf("falkordb query failed: %w", err)
	}
	return qr, nil
}

// setClause renders "SET alias.k = $prefixN, ..." and adds the values to params.
func setClause(alias, prefix string, properties map[string]any, params map[string]any) string {
	if len(properties) == 0 {
		return ""
	}
	keys := make([]string, 0, len(properties))
	for k := range properties {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, len(keys))
	for i, k := range keys {
		name := fmt.Sprintf("%s%d", prefix, i)
		params[name] = properties[k]
		parts[i] = fmt.Sprintf("%s.%s = $%s", alias, sanitizeLabel(k), name)
	}
	return " SET " + strings.Join(parts, ", ")
}

func buildUpsertNode(label, key string, properties map[string]any) (string, map[string]any) {
	params := map[string]any{"key": key}
	q := fmt.Sprintf("MERGE (n:%s {key: $key})", sanitizeLabel(label))
	q += setClause("n", "p", properties, params)
	return q, params
}

func buildUpsertRelationship(from, to rag.NodeRef, relType string, properties map[string]any) (string, map[string]any) {
	params := map[string]any{"from": from.Key, "to": to.Key}
	q := fmt.Sprintf("MERGE (a:%s {key: $from}) MERGE (b:%s {key: $to}) MERGE (a)-[r:%s]->(b)",
		sanitizeLabel(from.Label), sanitizeLabel(to.Label), sanitizeLabel(relType))
	q += setClause("r", "p", properties, params)
	return q, params
}

func buildMatch(p rag.Pattern) (string, map[string]any) {
	params := map[string]any{}

	node := "(n)"
	if p.Label != "" {
		node = fmt.Sprintf("(n:%s)", sanitizeLabel(p.Label))
	}
	q := "MATCH " + node
	if p.Relationship != "" {
		target := "(m)"
		if p.TargetLabel != "" {
			target = fmt.Sprintf("(m:%s)", sanitizeLabel(p.TargetLabel))
		}
		q += fmt.Sprintf("-[:%s]->%s", sanitizeLabel(p.Relationship), target)
	}

	var where []string
	for i, k := range sortedKeys(p.Where) {
		name := fmt.Sprintf("w%d", i)
		params[name] = p.Where[k]
		where = append(where, fmt.Sprintf("n.%s = $%s", sanitizeLabel(k), name))
	}
	for i, k := range sortedKeys(p.Contains) {
		name := fmt.Sprintf("c%d", i)
		params[name] = fmt.Sprint(p.Contains[k])
		where = append(where, fmt.Sprintf("toLower(n.%s) CONTAINS toLower($%s)", sanitizeLabel(k), name))
	}
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}

	q += " RETURN n.key, labels(n)[0], properties(n)"
	order := " ORDER BY n.key"
	if p.Relationship != "" {
		q += ", m.key, labels(m)[0], properties(m)"
		order += ", m.key"
	}
	q += order
	if p.Limit > 0 {
		q += fmt.Sprintf(" LIMIT %d", p.Limit)
	}
	return q, params
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// UpsertNode implements rag.GraphStore
func (f *FalkorDBGraph) UpsertNode(ctx context.Context, label, key string, properties map[string]any) error {
	if label == "" || key == "" {
		return rag.NewConfigError("node", "label and key are required")
	}
	q, params := buildUpsertNode(label, key, properties)
	_, err := f.query(ctx, q, params)
	return err
}

// UpsertRelationship implements rag.GraphStore
func (f *FalkorDBGraph) UpsertRelationship(ctx context.Context, from, to rag.NodeRef, relType string, properties map[string]any) error {
	if relType == "" {
		return rag.NewConfigError("relationship", "type is required")
	}
	q, params := buildUpsertRelationship(from, to, relType, properties)
	_, err := f.query(ctx, q, params)
	return err
}

// Match implements rag.GraphStore
func (f *FalkorDBGraph) Match(ctx context.Context, pattern rag.Pattern, params map[string]any) ([]rag.GraphRecord, error) {
	p, err := resolvePattern(pattern, params)
	if err != nil {
		return nil, err
	}
	q, qparams := buildMatch(p)
	qr, err := f.query(ctx, q, qparams)
	if err != nil {
		return nil, err
	}
	return parseRecords(qr, p.Relationship != ""), nil
}

func parseRecords(qr QueryResult, related bool) []rag.GraphRecord {
	out := make([]rag.GraphRecord, 0, len(qr.Results))
	for _, row := range qr.Results {
		if len(row) < 3 || (related && len(row) < 6) {
			continue
		}
		rec := rag.GraphRecord{Node: parseNode(row[0:3])}
		if related {
			m := parseNode(row[3:6])
			rec.Related = &m
		}
		out = append(out, rec)
	}
	return out
}

// parseNode reads a (key, label, properties) triple.
func parseNode(cols []any) rag.GraphNode {
	n := rag.GraphNode{
		Key:        fmt.Sprint(toPlain(cols[0])),
		Label:      fmt.Sprint(toPlain(cols[1])),
		Properties: toProperties(cols[2]),
	}
	return n
}

// DeleteNodes implements rag.GraphStore
func (f *FalkorDBGraph) DeleteNodes(ctx context.Context, label string, keys []string) error {
	if len(keys) == 0 {
		return nil
	}
	q := fmt.Sprintf("MATCH (n:%s) WHERE n.key IN $keys DETACH DELETE n", sanitizeLabel(label))
	_, err := f.query(ctx, q, map[string]any{"keys": keys})
	return err
}

// Close closes the underlying client
func (f *FalkorDBGraph) Close() error {
	if f.client != nil {
		return f.client.Close()
	}
	return nil
}
