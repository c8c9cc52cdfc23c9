package splitter

import (
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/smallnest/ragflow/rag"
)

// Separators per language, tried in order from coarsest to finest.
var languageSeparators = map[string][]string{
	"go":         {"\nfunc ", "\ntype ", "\nvar ", "\nconst ", "\n\n", "\n", " "},
	"python":     {"\nclass ", "\ndef ", "\n\tdef ", "\n    def ", "\n\n", "\n", " "},
	"javascript": {"\nfunction ", "\nconst ", "\nlet ", "\nclass ", "\nexport ", "\n\n", "\n", " "},
	"typescript": {"\nfunction ", "\nconst ", "\nlet ", "\nclass ", "\ninterface ", "\ntype ", "\nexport ", "\n\n", "\n", " "},
	"java":       {"\nclass ", "\npublic ", "\nprotected ", "\nprivate ", "\nstatic ", "\n\n", "\n", " "},
	"markdown":   {"\n# ", "\n## ", "\n### ", "\n#### ", "\n```", "\n\n", "\n", " "},
	"html":       {"<body", "<div", "<p", "<h1", "<h2", "<h3", "<li", "<br", "\n\n", "\n", " "},
	"text":       {"\n\n", "\n", " "},
}

var extensionLanguage = map[string]string{
	".go":   "go",
	".py":   "python",
	".js":   "javascript",
	".jsx":  "javascript",
	".mjs":  "javascript",
	".ts":   "typescript",
	".tsx":  "typescript",
	".java": "java",
	".md":   "markdown",
	".mdx":  "markdown",
	".html": "html",
	".htm":  "html",
}

// LanguageFromPath guesses the language of a file from its extension.
// Unknown extensions map to "text".
func LanguageFromPath(path string) string {
	if lang, ok := extensionLanguage[strings.ToLower(filepath.Ext(path))]; ok {
		return lang
	}
	return "text"
}

// RecursiveSplitter splits text on structural separators first and only falls
// back to fixed windows for segments that no separator can bring under size.
// Every chunk is at most size characters, including the overlap copied from
// the previous chunk.
type RecursiveSplitter struct {
	separators   []string
	chunkSize    int
	chunkOverlap int
}

// RecursiveSplitterOption configures the RecursiveSplitter
type RecursiveSplitterOption func(*RecursiveSplitter)

// WithChunkSize sets the chunk size for the splitter
func WithChunkSize(size int) RecursiveSplitterOption {
	return func(s *RecursiveSplitter) {
		s.chunkSize = size
	}
}

// WithChunkOverlap sets the chunk overlap for the splitter
func WithChunkOverlap(overlap int) RecursiveSplitterOption {
	return func(s *RecursiveSplitter) {
		s.chunkOverlap = overlap
	}
}

// WithSeparators sets the custom separators for the splitter
func WithSeparators(separators []string) RecursiveSplitterOption {
	return func(s *RecursiveSplitter) {
		s.separators = separators
	}
}

// WithLanguage selects the separators of a known language.
func WithLanguage(lang string) RecursiveSplitterOption {
	return func(s *RecursiveSplitter) {
		if seps, ok := languageSeparators[lang]; ok {
			s.separators = seps
		}
	}
}

// NewRecursiveSplitter creates a new RecursiveSplitter
func NewRecursiveSplitter(opts ...RecursiveSplitterOption) (*RecursiveSplitter, error) {
	s := &RecursiveSplitter{
		separators:   languageSeparators["text"],
		chunkSize:    DefaultChunkSize,
		chunkOverlap: DefaultChunkOverlap,
	}

	for _, opt := range opts {
		opt(s)
	}

	if err := validate(s.chunkSize, s.chunkOverlap); err != nil {
		return nil, err
	}
	return s, nil
}

// ForLanguage returns a RecursiveSplitter using the separators of lang.
func ForLanguage(lang string, size, overlap int) (*RecursiveSplitter, error) {
	return NewRecursiveSplitter(WithLanguage(lang), WithChunkSize(size), WithChunkOverlap(overlap))
}

var _ rag.Splitter = (*RecursiveSplitter)(nil)

// Split implements rag.Splitter
func (s *RecursiveSplitter) Split(text string) ([]string, error) {
	if text == "" {
		return nil, nil
	}

	// Leave room for the overlap prepended to each chunk.
	limit := s.chunkSize - s.chunkOverlap
	pieces := s.splitRecursive(text, s.separators, limit)
	merged := mergePieces(pieces, limit)

	if s.chunkOverlap == 0 || len(merged) < 2 {
		return merged, nil
	}

	out := make([]string, len(merged))
	out[0] = merged[0]
	for i := 1; i < len(merged); i++ {
		prev := []rune(merged[i-1])
		tail := prev[max(0, len(prev)-s.chunkOverlap):]
		out[i] = string(tail) + merged[i]
	}
	return out, nil
}

// splitRecursive returns pieces that concatenate back to text, each at most limit characters.
func (s *RecursiveSplitter) splitRecursive(text string, separators []string, limit int) []string {
	if utf8.RuneCountInString(text) <= limit {
		return []string{text}
	}

	if len(separators) == 0 {
		windows, _ := Chunk(text, limit, 0)
		return windows
	}

	var out []string
	for _, piece := range splitKeep(text, separators[0]) {
		if utf8.RuneCountInString(piece) <= limit {
			out = append(out, piece)
			continue
		}
		out = append(out, s.splitRecursive(piece, separators[1:], limit)...)
	}
	return out
}

// splitKeep splits text before every occurrence of sep, keeping sep with the following piece.
func splitKeep(text, sep string) []string {
	if sep == "" {
		return []string{text}
	}
	var out []string
	start := 0
	for start+1 < len(text) {
		idx := strings.Index(text[start+1:], sep)
		if idx < 0 {
			break
		}
		cut := start + 1 + idx
		out = append(out, text[start:cut])
		start = cut
	}
	return append(out, text[start:])
}

// mergePieces greedily joins adjacent pieces while the result stays within limit.
func mergePieces(pieces []string, limit int) []string {
	var merged []string
	var current strings.Builder
	currentLen := 0

	for _, p := range pieces {
		n := utf8.RuneCountInString(p)
		if currentLen > 0 && currentLen+n > limit {
			merged = append(merged, current.String())
			current.Reset()
			currentLen = 0
		}
		current.WriteString(p)
		currentLen += n
	}
	if currentLen > 0 {
		merged = append(merged, current.String())
	}
	return merged
}
