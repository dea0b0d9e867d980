// Package llm defines the provider-agnostic chat contract the pipeline
// stages program against. Concrete adapters live in the subpackages
// (gemini, ollama, huggingface); the factory picks one at startup.
package llm

import "context"

// Role names shared across providers. Adapters translate these to their
// wire vocabulary where it differs (Gemini says "model" for assistant).
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// Message is one turn of a conversation.
type Message struct {
	Role    string
	Content string
}

// LLMProvider is the contract every chat backend satisfies.
type LLMProvider interface {
	// Chat sends the full turn history and returns the model reply.
	Chat(ctx context.Context, history []Message, options ...Option) (string, error)

	// Generate is the single-prompt convenience form of Chat.
	Generate(ctx context.Context, prompt string, options ...Option) (string, error)
}

// Options carries per-call generation knobs. Zero values mean the
// provider default applies.
type Options struct {
	Temperature float64
	MaxTokens   int
	Model       string
}

// Option mutates Options. Providers fold caller options over their
// defaults with Resolve.
type Option func(*Options)

func WithTemperature(temp float64) Option {
	return func(o *Options) { o.Temperature = temp }
}

func WithMaxTokens(n int) Option {
	return func(o *Options) { o.MaxTokens = n }
}

func WithModel(model string) Option {
	return func(o *Options) { o.Model = model }
}

// Resolve applies opts on top of the provider's defaults.
func Resolve(defaults Options, opts ...Option) Options {
	for _, o := range opts {
		o(&defaults)
	}
	return defaults
}
