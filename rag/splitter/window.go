package splitter

import (
	"strings"

	"github.com/smallnest/ragflow/rag"
)

const (
	// DefaultChunkSize is the default window length in characters.
	DefaultChunkSize = 1000
	// DefaultChunkOverlap is the default number of characters shared by neighbouring windows.
	DefaultChunkOverlap = 200
)

// Chunk splits text into windows of size characters (runes) where each
// window repeats the last overlap characters of the previous one. The final
// window may be shorter. Empty text yields no chunks.
func Chunk(text string, size, overlap int) ([]string, error) {
	if err := validate(size, overlap); err != nil {
		return nil, err
	}

	runes := []rune(text)
	n := len(runes)
	if n == 0 {
		return nil, nil
	}

	step := size - overlap
	chunks := make([]string, 0, n/step+1)
	for start := 0; ; start += step {
		end := min(start+size, n)
		chunks = append(chunks, string(runes[start:end]))
		if end == n {
			break
		}
	}
	return chunks, nil
}

// Join reverses Chunk: it drops the overlapping prefix of every chunk after the first.
func Join(chunks []string, overlap int) string {
	if len(chunks) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString(chunks[0])
	for _, c := range chunks[1:] {
		r := []rune(c)
		if len(r) > overlap {
			b.WriteString(string(r[overlap:]))
		}
	}
	return b.String()
}

func validate(size, overlap int) error {
	if size <= 0 {
		return rag.NewConfigError("chunk_size", "must be positive, got %d", size)
	}
	if overlap < 0 {
		return rag.NewConfigError("chunk_overlap", "must not be negative, got %d", overlap)
	}
	if overlap >= size {
		return rag.NewConfigError("chunk_overlap", "must be smaller than chunk size %d, got %d", size, overlap)
	}
	return nil
}

// WindowSplitter is a rag.Splitter backed by Chunk.
type WindowSplitter struct {
	Size    int
	Overlap int
}

var _ rag.Splitter = (*WindowSplitter)(nil)

// NewWindowSplitter returns a WindowSplitter after checking its parameters.
func NewWindowSplitter(size, overlap int) (*WindowSplitter, error) {
	if err := validate(size, overlap); err != nil {
		return nil, err
	}
	return &WindowSplitter{Size: size, Overlap: overlap}, nil
}

// Split implements rag.Splitter
func (s *WindowSplitter) Split(text string) ([]string, error) {
	return Chunk(text, s.Size, s.Overlap)
}
