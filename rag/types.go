package rag

import (
	"context"
	"strconv"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

// SourceKind classifies where a Source came from.
type SourceKind string

const (
	SourceFile     SourceKind = "file"
	SourceDocument SourceKind = "document"
	SourceURL      SourceKind = "url"
)

// Valid reports whether k is one of the known kinds.
func (k SourceKind) Valid() bool {
	switch k {
	case SourceFile, SourceDocument, SourceURL:
		return true
	}
	return false
}

// Source is the origin of a body of text. Re-processing a Source replaces
// all of its chunks.
type Source struct {
	ID       string            `json:"id"`
	Kind     SourceKind        `json:"kind"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Chunk is a contiguous span of text produced from one Source.
// Once written to a namespace a chunk is never mutated, only replaced.
type Chunk struct {
	ID            string            `json:"id"`
	SourceID      string            `json:"source_id"`
	Text          string            `json:"text"`
	SequenceIndex int               `json:"sequence_index"`
	Vector        []float32         `json:"vector,omitempty"`
	Metadata      map[string]string `json:"metadata,omitempty"`
}

// ChunkID returns the stable identifier of the chunk at position index of
// sourceID. Re-indexing the same source therefore overwrites rather than
// duplicates.
func ChunkID(sourceID string, index int) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(sourceID+"#"+strconv.Itoa(index))).String()
}

// Origin tags which retrieval path produced a result.
type Origin string

const (
	OriginVector Origin = "vector"
	OriginGraph  Origin = "graph"
)

// RetrievalResult is a chunk with its relevance score in [0, 1].
type RetrievalResult struct {
	Chunk  Chunk   `json:"chunk"`
	Score  float64 `json:"score"`
	Origin Origin  `json:"origin"`
}

// Context is the ordered, budgeted set of results handed to the generator.
type Context struct {
	Results []RetrievalResult `json:"results"`
	Budget  int               `json:"budget"`
}

// Len returns the total length of all chunk texts in runes.
func (c Context) Len() int {
	n := 0
	for _, r := range c.Results {
		n += utf8.RuneCountInString(r.Chunk.Text)
	}
	return n
}

// Citations returns the distinct source IDs of the context in order of first appearance.
func (c Context) Citations() []string {
	seen := make(map[string]bool, len(c.Results))
	var out []string
	for _, r := range c.Results {
		if seen[r.Chunk.SourceID] {
			continue
		}
		seen[r.Chunk.SourceID] = true
		out = append(out, r.Chunk.SourceID)
	}
	return out
}

// Role is the speaker of a conversation turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// ConversationTurn is one prior exchange in a chat session.
type ConversationTurn struct {
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp,omitempty"`
}

// LastTurns returns at most n of the most recent turns.
func LastTurns(turns []ConversationTurn, n int) []ConversationTurn {
	if n <= 0 {
		return nil
	}
	if len(turns) <= n {
		return turns
	}
	return turns[len(turns)-n:]
}

// Embedding is the output of one embedding call. All vectors come from the
// same model and share the same dimension.
type Embedding struct {
	Model     string
	Dimension int
	Vectors   [][]float32
}

// Splitter turns a text into chunk texts.
type Splitter interface {
	Split(text string) ([]string, error)
}

// Embedder embeds texts, falling back across models when one is unavailable.
type Embedder interface {
	// Embed uses the embedder's configured model order.
	Embed(ctx context.Context, texts []string) (*Embedding, error)
	// EmbedWith tries the given models first, in the given order.
	EmbedWith(ctx context.Context, models []string, texts []string) (*Embedding, error)
}

// RetrievalQuery carries everything a retriever may need. Models, when set,
// is the embedding model order used to embed Text if Vector is empty.
type RetrievalQuery struct {
	Namespace string
	Text      string
	Vector    []float32
	Models    []string
	TopK      int
}

// Retriever returns scored chunks for a query.
type Retriever interface {
	Retrieve(ctx context.Context, q RetrievalQuery) ([]RetrievalResult, error)
}

// Generator produces an answer from a question, context and history.
type Generator interface {
	Generate(ctx context.Context, question string, c Context, history []ConversationTurn) (string, error)
}
