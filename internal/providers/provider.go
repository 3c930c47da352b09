// Package providers defines the common interfaces and types shared by every
// LLM backend the gateway queries (Groq, Gemini, OpenAI, HuggingFace,
// Ollama). Each provider lives in its own sub-package and implements
// Provider; providers that can produce vector embeddings additionally
// implement EmbeddingProvider.
package providers

import (
	"context"
	"time"
)

type (
	// Usage reports token accounting for one completion call. Not every
	// backend reports both fields — HuggingFace and Ollama frequently
	// report zero values.
	Usage struct {
		PromptTokens     int
		CompletionTokens int
	}

	// CompletionRequest is the normalized request sent to every provider.
	CompletionRequest struct {
		Prompt      string
		Temperature float64
		MaxTokens   int
		// APIKey overrides the provider's configured key for this call.
		// Empty means "use the provider's default key".
		APIKey string
	}

	// CompletionResult is the normalized response returned by every
	// provider.
	CompletionResult struct {
		Text         string
		Model        string
		FinishReason string
		Usage        Usage
	}
)

// Provider is implemented by every LLM backend the orchestrator fans a
// request out to.
type Provider interface {
	// ProviderName identifies this backend in logs, metrics, and
	// ModelResponse.Provider (e.g. "groq", "gemini").
	ProviderName() string
	// GenerateCompletion produces one completion for req.
	GenerateCompletion(ctx context.Context, req CompletionRequest) (*CompletionResult, error)
	// HealthCheck reports whether the backend is currently reachable.
	// Implementations should use a cheap call (e.g. a models listing)
	// rather than a full generation.
	HealthCheck(ctx context.Context) bool
}

// EmbeddingProvider is implemented by backends that can also produce
// vector embeddings, used by the semantic cache's similarity tier.
type EmbeddingProvider interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// StatusCoder is implemented by errors that carry an HTTP status code from
// the upstream provider, so callers can distinguish retryable (5xx,
// timeout) from non-retryable (4xx) failures without string matching.
type StatusCoder interface {
	HTTPStatus() int
}

// ProviderError wraps a failure from a named provider with enough context
// for the orchestrator to classify and report it.
type ProviderError struct {
	Provider   string
	Message    string
	StatusCode int
	Cause      error
}

func (e *ProviderError) Error() string {
	if e.Cause != nil {
		return e.Provider + ": " + e.Message + ": " + e.Cause.Error()
	}
	return e.Provider + ": " + e.Message
}

func (e *ProviderError) Unwrap() error { return e.Cause }

// HTTPStatus implements StatusCoder. Zero means "no HTTP status available"
// (e.g. a connection error before any response was received).
func (e *ProviderError) HTTPStatus() int { return e.StatusCode }

const (
	// MaxRetries is the number of attempts (including the first) a
	// provider call is allowed before giving up.
	MaxRetries = 3
	// RetryBaseDelay and RetryMaxDelay bound the exponential backoff
	// between retry attempts.
	RetryBaseDelay = time.Second
	RetryMaxDelay  = 10 * time.Second
	// DefaultTimeout bounds a single provider HTTP call.
	DefaultTimeout = 30 * time.Second
)
