package store

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/redis/go-redis/v9"
)

var labelRegex = regexp.MustCompile(`[^a-zA-Z0-9_]`)

// sanitizeLabel makes s safe to splice into a query as a label, relationship
// type or property name. Values are always passed as parameters instead.
func sanitizeLabel(l string) string {
	clean := labelRegex.ReplaceAllString(l, "_")
	if clean == "" {
		return "Entity"
	}
	return clean
}

// cypherLiteral renders a parameter value for the CYPHER query header.
func cypherLiteral(v any) string {
	switch x := v.(type) {
	case nil:
		return "null"
	case string:
		return quoteString(x)
	case bool:
		return strconv.FormatBool(x)
	case int:
		return strconv.Itoa(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case float32:
		return strconv.FormatFloat(float64(x), 'g', -1, 32)
	case float64:
		return strconv.FormatFloat(x, 'g', -1, 64)
	case []string:
		parts := make([]string, len(x))
		for i, s := range x {
			parts[i] = quoteString(s)
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case []any:
		parts := make([]string, len(x))
		for i, s := range x {
			parts[i] = cypherLiteral(s)
		}
		return "[" + strings.Join(parts, ", ") + "]"
	default:
		return quoteString(fmt.Sprint(x))
	}
}

func quoteString(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `"`, `\"`)
	return `"` + r.Replace(s) + `"`
}

// withParams prefixes q with a CYPHER header binding params, in key order.
func withParams(q string, params map[string]any) string {
	if len(params) == 0 {
		return q
	}
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString("CYPHER")
	for _, k := range keys {
		fmt.Fprintf(&b, " %s=%s", k, cypherLiteral(params[k]))
	}
	b.WriteString(" ")
	b.WriteString(q)
	return b.String()
}

// Graph is a handle on one named FalkorDB graph.
type Graph struct {
	Name string
	Conn redis.UniversalClient
}

// NewGraph creates a new graph handle.
func NewGraph(name string, conn redis.UniversalClient) Graph {
	return Graph{Name: name, Conn: conn}
}

// QueryResult represents the results of a query.
type QueryResult struct {
	Header     []string
	Results    [][]any
	Statistics []string
}

// Query executes a parameterised query against the graph.
func (g *Graph) Query(ctx context.Context, q string, params map[string]any) (QueryResult, error) {
	res, err := g.Conn.Do(ctx, "GRAPH.QUERY", g.Name, withParams(q, params)).Result()
	if err != nil {
		return QueryResult{}, err
	}
	return parseQueryResponse(res)
}

func parseQueryResponse(res any) (QueryResult, error) {
	qr := QueryResult{}

	r, ok := res.([]any)
	if !ok {
		return qr, fmt.Errorf("unexpected response type: %T", res)
	}

	var rowsObj, statsObj any
	switch len(r) {
	case 3:
		if header, ok := r[0].([]any); ok {
			qr.Header = make([]string, len(header))
			for i, h := range header {
				qr.Header[i] = fmt.Sprint(toPlain(h))
			}
		}
		rowsObj, statsObj = r[1], r[2]
	case 2:
		rowsObj, statsObj = r[0], r[1]
	case 1:
		// Write-only queries reply with statistics alone.
		statsObj = r[0]
	default:
		return qr, fmt.Errorf("unexpected response length: %d", len(r))
	}

	if rows, ok := rowsObj.([]any); ok {
		qr.Results = make([][]any, 0, len(rows))
		for _, row := range rows {
			if rVals, ok := row.([]any); ok {
				qr.Results = append(qr.Results, rVals)
			}
		}
	}

	if stats, ok := statsObj.([]any); ok {
		qr.Statistics = make([]string, len(stats))
		for i, s := range stats {
			qr.Statistics[i] = fmt.Sprint(toPlain(s))
		}
	}

	return qr, nil
}

// Delete drops the whole graph.
func (g *Graph) Delete(ctx context.Context) error {
	return g.Conn.Do(ctx, "GRAPH.DELETE", g.Name).Err()
}

// toPlain converts reply values to strings, numbers and maps.
func toPlain(v any) any {
	switch x := v.(type) {
	case []byte:
		return string(x)
	default:
		return x
	}
}

// toProperties converts a properties(n) reply, which is either a RESP3 map or
// a flat [key, value, key, value] array, into a map.
func toProperties(v any) map[string]any {
	props := make(map[string]any)
	switch x := v.(type) {
	case map[any]any:
		for k, val := range x {
			props[fmt.Sprint(toPlain(k))] = toPlain(val)
		}
	case map[string]any:
		for k, val := range x {
			props[k] = toPlain(val)
		}
	case []any:
		for i := 0; i+1 < len(x); i += 2 {
			props[fmt.Sprint(toPlain(x[i]))] = toPlain(x[i+1])
		}
	}
	return props
}
