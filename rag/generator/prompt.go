package generator

import (
	"fmt"
	"strings"

	"github.com/smallnest/ragflow/rag"
)

// DefaultSystemPrompt instructs the model to answer from the context and cite it.
const DefaultSystemPrompt = "You are a helpful assistant. Answer the question based on the provided context. " +
	"Cite the sources you use with their bracketed numbers, for example [1]. " +
	"If you cannot answer based on the context, say so."

// DefaultHistoryTurns is the number of prior turns included in a prompt.
const DefaultHistoryTurns = 5

// Prompt is a chat prompt ready to be sent to a model.
type Prompt struct {
	System  string
	History []rag.ConversationTurn
	User    string
}

// FormatContext renders the context as numbered entries with their source IDs.
func FormatContext(c rag.Context) string {
	if len(c.Results) == 0 {
		return "(no relevant context was found)"
	}
	parts := make([]string, len(c.Results))
	for i, r := range c.Results {
		parts[i] = fmt.Sprintf("[%d] Source: %s\nContent: %s", i+1, r.Chunk.SourceID, r.Chunk.Text)
	}
	return strings.Join(parts, "\n\n")
}

// BuildPrompt composes the system instructions, the most recent historyTurns
// turns of history, and a user message holding the context and the question.
func BuildPrompt(system, question string, c rag.Context, history []rag.ConversationTurn, historyTurns int) Prompt {
	if system == "" {
		system = DefaultSystemPrompt
	}
	return Prompt{
		System:  system,
		History: rag.LastTurns(history, historyTurns),
		User:    fmt.Sprintf("Context:\n%s\n\nQuestion: %s\n\nAnswer:", FormatContext(c), question),
	}
}
