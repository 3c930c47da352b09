// Package groq configures the generic openaicompat provider for Groq's
// hosted, OpenAI-compatible chat completions API.
package groq

import "github.com/shushantbk16/inference-verification-gateway/internal/providers/openaicompat"

const defaultBaseURL = "https://api.groq.com/openai/v1"

// New creates a Groq provider using model as the default model for every
// completion. apiKey may be empty if every call supplies its own via
// providers.CompletionRequest.APIKey.
func New(apiKey, model string) *openaicompat.Provider {
	return openaicompat.New("groq", apiKey, defaultBaseURL, model)
}
