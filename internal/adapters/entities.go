package adapters

import (
	"context"

	"github.com/spamsentry/spamsentry/internal/adapters/llm"
)

// LLM is the minimal chat-completion surface the classifier consumes. Both
// adapters are safe for concurrent use.
type LLM interface {
	ChatCompletion(ctx context.Context, messages []llm.ChatCompletionMessage) (llm.ChatCompletionResponse, error)
	WithModel(modelName string) LLM
	WithParameters(parameters *llm.GenerationParameters) LLM
	WithSystemPrompt(prompt string) LLM
}
