package generator

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"

	"github.com/smallnest/ragflow/rag"
)

// Options shared by the generator backends.
type Options struct {
	SystemPrompt string
	HistoryTurns int
	Temperature  float32
	MaxTokens    int
	Timeout      time.Duration
}

// DefaultTimeout bounds one chat completion call.
const DefaultTimeout = time.Minute

// Option configures a generator
type Option func(*Options)

// WithSystemPrompt replaces DefaultSystemPrompt.
func WithSystemPrompt(prompt string) Option {
	return func(o *Options) {
		o.SystemPrompt = prompt
	}
}

// WithHistoryTurns sets how many prior turns are sent.
func WithHistoryTurns(n int) Option {
	return func(o *Options) {
		if n >= 0 {
			o.HistoryTurns = n
		}
	}
}

// WithTemperature sets the sampling temperature.
func WithTemperature(t float32) Option {
	return func(o *Options) {
		o.Temperature = t
	}
}

// WithMaxTokens caps the answer length.
func WithMaxTokens(n int) Option {
	return func(o *Options) {
		o.MaxTokens = n
	}
}

// WithTimeout bounds each backend call. Zero or less disables the bound.
func WithTimeout(d time.Duration) Option {
	return func(o *Options) {
		o.Timeout = d
	}
}

// bound derives the context of one backend call.
func (o Options) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	if o.Timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, o.Timeout)
}

func newOptions(opts []Option) Options {
	o := Options{
		SystemPrompt: DefaultSystemPrompt,
		HistoryTurns: DefaultHistoryTurns,
		MaxTokens:    1000,
		Timeout:      DefaultTimeout,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// OpenAIGenerator answers with an OpenAI compatible chat completion endpoint.
// It makes exactly one call per question.
type OpenAIGenerator struct {
	client  *openai.Client
	model   string
	options Options
}

var _ rag.Generator = (*OpenAIGenerator)(nil)

// NewOpenAIGenerator creates a generator for model.
func NewOpenAIGenerator(client *openai.Client, model string, opts ...Option) *OpenAIGenerator {
	return &OpenAIGenerator{
		client:  client,
		model:   model,
		options: newOptions(opts),
	}
}

// NewOpenAIGeneratorFromKey builds the client from an API key and optional base URL.
func NewOpenAIGeneratorFromKey(apiKey, baseURL, model string, opts ...Option) *OpenAIGenerator {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return NewOpenAIGenerator(openai.NewClientWithConfig(cfg), model, opts...)
}

func chatRole(r rag.Role) string {
	if r == rag.RoleAssistant {
		return openai.ChatMessageRoleAssistant
	}
	return openai.ChatMessageRoleUser
}

// Generate implements rag.Generator
func (g *OpenAIGenerator) Generate(ctx context.Context, question string, c rag.Context, history []rag.ConversationTurn) (string, error) {
	p := BuildPrompt(g.options.SystemPrompt, question, c, history, g.options.HistoryTurns)

	messages := make([]openai.ChatCompletionMessage, 0, len(p.History)+2)
	messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: p.System})
	for _, turn := range p.History {
		messages = append(messages, openai.ChatCompletionMessage{Role: chatRole(turn.Role), Content: turn.Content})
	}
	messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: p.User})

	ctx, cancel := g.options.bound(ctx)
	defer cancel()
	resp, err := g.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       g.model,
		Messages:    messages,
		Temperature: g.options.Temperature,
		MaxTokens:   g.options.MaxTokens,
	})
	if err != nil {
		return "", generationError(err)
	}
	if len(resp.Choices) == 0 {
		return "", &rag.GenerationError{Message: "malformed response: no choices"}
	}
	answer := strings.TrimSpace(resp.Choices[0].Message.Content)
	if answer == "" {
		return "", &rag.GenerationError{Message: "malformed response: empty answer"}
	}
	return answer, nil
}

// generationError maps a client error to a *rag.GenerationError, keeping the
// upstream HTTP status when there is one.
func generationError(err error) *rag.GenerationError {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return &rag.GenerationError{Status: apiErr.HTTPStatusCode, Message: apiErr.Message, Err: err}
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return &rag.GenerationError{Status: reqErr.HTTPStatusCode, Message: reqErr.Error(), Err: err}
	}
	return &rag.GenerationError{Message: err.Error(), Err: err}
}
