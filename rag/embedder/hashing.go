package embedder

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
	"unicode"
)

// HashingProvider is a local, deterministic embedding model based on feature
// hashing of lowercased word tokens. It needs no network and is used as the
// last entry of a chain and in tests.
type HashingProvider struct {
	name string
	dim  int
}

// NewHashingProvider returns a hashing model with the given name and dimension.
func NewHashingProvider(name string, dim int) *HashingProvider {
	return &HashingProvider{name: name, dim: dim}
}

func (h *HashingProvider) Name() string   { return h.name }
func (h *HashingProvider) Dimension() int { return h.dim }

// EmbedBatch implements Provider
func (h *HashingProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out[i] = h.vector(t)
	}
	return out, nil
}

func (h *HashingProvider) vector(text string) []float32 {
	v := make([]float32, h.dim)
	tokens := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	for _, tok := range tokens {
		f := fnv.New64a()
		_, _ = f.Write([]byte(tok))
		sum := f.Sum64()
		idx := int(sum % uint64(h.dim))
		if sum&(1<<63) != 0 {
			v[idx]--
		} else {
			v[idx]++
		}
	}

	var norm float64
	for _, x := range v {
		norm += float64(x) * float64(x)
	}
	if norm == 0 {
		return v
	}
	scale := float32(1 / math.Sqrt(norm))
	for i := range v {
		v[i] *= scale
	}
	return v
}
