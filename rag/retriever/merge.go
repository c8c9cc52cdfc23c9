package retriever

import (
	"sort"
	"unicode/utf8"

	"github.com/smallnest/ragflow/rag"
)

// DefaultBudget is the default context size in characters.
const DefaultBudget = 4000

// Merge combines vector and graph results into one context of at most budget
// characters. Results are tagged with their origin, deduplicated by exact
// text (the first occurrence wins, so vector results win ties) and sorted by
// descending score. Results are accepted greedily until the next one would
// exceed the budget; chunks are never truncated.
func Merge(vectorResults, graphResults []rag.RetrievalResult, budget int) rag.Context {
	out := rag.Context{Budget: budget, Results: []rag.RetrievalResult{}}
	if budget <= 0 {
		return out
	}

	all := make([]rag.RetrievalResult, 0, len(vectorResults)+len(graphResults))
	for _, r := range vectorResults {
		r.Origin = rag.OriginVector
		all = append(all, r)
	}
	for _, r := range graphResults {
		r.Origin = rag.OriginGraph
		all = append(all, r)
	}

	seen := make(map[string]bool, len(all))
	unique := all[:0]
	for _, r := range all {
		if seen[r.Chunk.Text] {
			continue
		}
		seen[r.Chunk.Text] = true
		unique = append(unique, r)
	}

	sort.SliceStable(unique, func(i, j int) bool {
		return unique[i].Score > unique[j].Score
	})

	used := 0
	for _, r := range unique {
		n := utf8.RuneCountInString(r.Chunk.Text)
		if used+n > budget {
			break
		}
		used += n
		out.Results = append(out.Results, r)
	}
	return out
}
