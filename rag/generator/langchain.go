package generator

import (
	"context"
	"strings"

	"github.com/tmc/langchaingo/llms"

	"github.com/smallnest/ragflow/rag"
)

// LangChainGenerator answers with any langchaingo model.
type LangChainGenerator struct {
	llm     llms.Model
	options Options
}

var _ rag.Generator = (*LangChainGenerator)(nil)

// NewLangChainGenerator wraps llm.
func NewLangChainGenerator(llm llms.Model, opts ...Option) *LangChainGenerator {
	return &LangChainGenerator{llm: llm, options: newOptions(opts)}
}

// Generate implements rag.Generator
func (g *LangChainGenerator) Generate(ctx context.Context, question string, c rag.Context, history []rag.ConversationTurn) (string, error) {
	p := BuildPrompt(g.options.SystemPrompt, question, c, history, g.options.HistoryTurns)

	messages := make([]llms.MessageContent, 0, len(p.History)+2)
	messages = append(messages, llms.TextParts(llms.ChatMessageTypeSystem, p.System))
	for _, turn := range p.History {
		role := llms.ChatMessageTypeHuman
		if turn.Role == rag.RoleAssistant {
			role = llms.ChatMessageTypeAI
		}
		messages = append(messages, llms.TextParts(role, turn.Content))
	}
	messages = append(messages, llms.TextParts(llms.ChatMessageTypeHuman, p.User))

	callOpts := []llms.CallOption{llms.WithTemperature(float64(g.options.Temperature))}
	if g.options.MaxTokens > 0 {
		callOpts = append(callOpts, llms.WithMaxTokens(g.options.MaxTokens))
	}

	ctx, cancel := g.options.bound(ctx)
	defer cancel()
	resp, err := g.llm.GenerateContent(ctx, messages, callOpts...)
	if err != nil {
		return "", &rag.GenerationError{Message: err.Error(), Err: err}
	}
	if resp == nil || len(resp.Choices) == 0 {
		return "", &rag.GenerationError{Message: "malformed response: no choices"}
	}
	answer := strings.TrimSpace(resp.Choices[0].Content)
	if answer == "" {
		return "", &rag.GenerationError{Message: "malformed response: empty answer"}
	}
	return answer, nil
}
