package llm

import "context"

// GenerationParams are optional generation controls. Nil fields mean
// "use the provider default". MaxTokens is always enforced by callers as a
// cost bound; the advisor never issues an unbounded generation.
type GenerationParams struct {
	Temperature *float32
	TopP        *float32
	MaxTokens   *int
	Stop        []string
}

// LLMClient is the single generation surface the advisor consumes. The three
// call shapes (relevance classification, synonym expansion, answer
// generation) differ only in prompt and token bound.
type LLMClient interface {
	Generate(ctx context.Context, prompt string, params GenerationParams) (string, error)
}

// GenerateFunc adapts a generation call into a plain closure so pipeline
// packages can be tested without a provider client.
type GenerateFunc func(ctx context.Context, prompt string, maxTokens int) (string, error)

// BindGenerate wraps client into a GenerateFunc with a fixed temperature.
func BindGenerate(client LLMClient, temperature float32) GenerateFunc {
	return func(ctx context.Context, prompt string, maxTokens int) (string, error) {
		t := temperature
		return client.Generate(ctx, prompt, GenerationParams{
			Temperature: &t,
			MaxTokens:   &maxTokens,
		})
	}
}
