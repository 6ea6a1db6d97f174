package resilience

import (
	"concept-digest-be/pkg/embedding"
	"concept-digest-be/pkg/llm"
	"context"
)

// Embedder wraps an EmbeddingProvider with a Caller.
type Embedder struct {
	next   embedding.EmbeddingProvider
	caller *Caller
}

var _ embedding.EmbeddingProvider = (*Embedder)(nil)

func NewEmbedder(next embedding.EmbeddingProvider, caller *Caller) *Embedder {
	return &Embedder{next: next, caller: caller}
}

func (e *Embedder) Generate(ctx context.Context, text string, taskType string) (*embedding.EmbeddingResponse, error) {
	return Call(ctx, e.caller, func(ctx context.Context) (*embedding.EmbeddingResponse, error) {
		return e.next.Generate(ctx, text, taskType)
	})
}

// LLM wraps an LLMProvider with a Caller.
type LLM struct {
	next   llm.LLMProvider
	caller *Caller
}

var _ llm.LLMProvider = (*LLM)(nil)

func NewLLM(next llm.LLMProvider, caller *Caller) *LLM {
	return &LLM{next: next, caller: caller}
}

func (l *LLM) Chat(ctx context.Context, history []llm.Message, options ...llm.Option) (string, error) {
	return Call(ctx, l.caller, func(ctx context.Context) (string, error) {
		return l.next.Chat(ctx, history, options...)
	})
}

func (l *LLM) Generate(ctx context.Context, prompt string, options ...llm.Option) (string, error) {
	return Call(ctx, l.caller, func(ctx context.Context) (string, error) {
		return l.next.Generate(ctx, prompt, options...)
	})
}
