package store

import (
	"math"
	"sort"

	"github.com/smallnest/ragflow/rag"
)

// cosineSimilarity32 returns the cosine similarity of a and b, or 0 when either is a zero vector.
func cosineSimilarity32(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}

	var dotProduct, normA, normB float64
	for i := range a {
		dotProduct += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	return dotProduct / (math.Sqrt(normA) * math.Sqrt(normB))
}

// DistanceToScore maps a non-negative distance to a similarity in (0, 1].
func DistanceToScore(distance float64) float64 {
	if distance < 0 {
		distance = 0
	}
	return 1 / (1 + distance)
}

// cosineScore converts cosine similarity to a score via cosine distance.
func cosineScore(a, b []float32) float64 {
	return DistanceToScore(1 - cosineSimilarity32(a, b))
}

// topK sorts matches by descending score, breaking ties by ID, and keeps k.
func topK(matches []rag.VectorMatch, k int) []rag.VectorMatch {
	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		return matches[i].Record.ID < matches[j].Record.ID
	})
	if k < len(matches) {
		matches = matches[:k]
	}
	return matches
}

func checkTopK(k int) error {
	if k <= 0 {
		return rag.NewConfigError("top_k", "must be positive, got %d", k)
	}
	return nil
}
