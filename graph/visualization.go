package graph

import (
	"fmt"
	"sort"
	"strings"
)

// MermaidOptions defines configuration for Mermaid diagram generation
type MermaidOptions struct {
	// Direction of the flowchart (e.g., "TD", "LR")
	Direction string
}

// DrawMermaid generates a Mermaid flowchart of the compiled graph.
func (r *StateRunnable[S]) DrawMermaid() string {
	return r.DrawMermaidWithOptions(MermaidOptions{Direction: "TD"})
}

// DrawMermaidWithOptions generates a Mermaid flowchart with custom options.
// Nodes are labelled with their description when one was given.
func (r *StateRunnable[S]) DrawMermaidWithOptions(opts MermaidOptions) string {
	g := r.graph
	direction := opts.Direction
	if direction == "" {
		direction = "TD"
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "flowchart %s\n", direction)
	sb.WriteString("    START([\"START\"])\n")

	for _, name := range r.order() {
		label := name
		if d := g.nodes[name].Description; d != "" {
			label = name + ": " + d
		}
		fmt.Fprintf(&sb, "    %s[\"%s\"]\n", name, strings.ReplaceAll(label, `"`, "'"))
	}
	if r.reachesEnd() {
		sb.WriteString("    END([\"END\"])\n")
	}

	fmt.Fprintf(&sb, "    START --> %s\n", g.entryPoint)
	for _, from := range r.order() {
		if to, ok := g.edges[from]; ok {
			fmt.Fprintf(&sb, "    %s --> %s\n", from, to)
		}
		if _, ok := g.conditionalEdges[from]; ok {
			fmt.Fprintf(&sb, "    %s -.-> %s_condition((?))\n", from, from)
		}
	}
	sb.WriteString("    style START fill:#90EE90\n")
	fmt.Fprintf(&sb, "    style %s fill:#87CEEB\n", g.entryPoint)
	return sb.String()
}

// order lists the nodes reachable by unconditional edges from the entry point,
// followed by the remaining nodes sorted by name.
func (r *StateRunnable[S]) order() []string {
	g := r.graph
	seen := make(map[string]bool, len(g.nodes))
	names := make([]string, 0, len(g.nodes))
	for n := g.entryPoint; n != "" && n != END && !seen[n]; n = g.edges[n] {
		seen[n] = true
		names = append(names, n)
	}

	var rest []string
	for name := range g.nodes {
		if !seen[name] {
			rest = append(rest, name)
		}
	}
	sort.Strings(rest)
	return append(names, rest...)
}

func (r *StateRunnable[S]) reachesEnd() bool {
	for _, to := range r.graph.edges {
		if to == END {
			return true
		}
	}
	return false
}
