// Package openaicompat provides a generic provider for any backend that
// implements OpenAI's chat completions wire format. Groq's hosted API is
// OpenAI-compatible, so the groq adapter is a thin wrapper around this
// package configured with Groq's base URL and model.
package openaicompat

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	openaiSDK "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/shushantbk16/inference-verification-gateway/internal/providers"
)

// Provider is a configurable OpenAI-compatible LLM provider.
type Provider struct {
	name    string
	apiKey  string
	model   string
	baseURL string
	client  openaiSDK.Client
}

// New creates a new OpenAI-compatible Provider.
//
//   - name    — unique provider identifier used in logs and metrics.
//   - apiKey  — API key sent as "Authorization: Bearer <key>".
//   - baseURL — API base URL, e.g. "https://api.groq.com/openai/v1".
//   - model   — default model used for every completion.
func New(name, apiKey, baseURL, model string) *Provider {
	p := &Provider{
		name:    name,
		apiKey:  apiKey,
		model:   model,
		baseURL: baseURL,
	}

	opts := []option.RequestOption{
		option.WithAPIKey(p.apiKey),
		option.WithHTTPClient(&http.Client{Timeout: providers.DefaultTimeout}),
	}
	if p.baseURL != "" {
		opts = append(opts, option.WithBaseURL(p.baseURL))
	}

	p.client = openaiSDK.NewClient(opts...)
	return p
}

func (p *Provider) ProviderName() string { return p.name }

func (p *Provider) HealthCheck(ctx context.Context) bool {
	_, err := p.client.Models.List(ctx)
	return err == nil
}

func (p *Provider) GenerateCompletion(ctx context.Context, req providers.CompletionRequest) (*providers.CompletionResult, error) {
	// Resolved once up front: a missing API key is a configuration error,
	// not a transient failure, and must not trigger the retry loop below.
	opts, err := p.requestOptions(req.APIKey)
	if err != nil {
		return nil, err
	}
	// WithRetry owns retries; the SDK's own retries would multiply attempts.
	opts = append(opts, option.WithMaxRetries(0))

	params := openaiSDK.ChatCompletionNewParams{
		Model:    p.model,
		Messages: []openaiSDK.ChatCompletionMessageParamUnion{openaiSDK.UserMessage(req.Prompt)},
	}
	if req.Temperature != 0 {
		params.Temperature = openaiSDK.Float(req.Temperature)
	}
	if req.MaxTokens > 0 {
		params.MaxCompletionTokens = openaiSDK.Int(int64(req.MaxTokens))
	}

	return providers.WithRetry(ctx, func(ctx context.Context) (*providers.CompletionResult, error) {
		return p.complete(ctx, params, opts)
	})
}

func (p *Provider) complete(ctx context.Context, params openaiSDK.ChatCompletionNewParams, opts []option.RequestOption) (*providers.CompletionResult, error) {
	resp, err := p.client.Chat.Completions.New(ctx, params, opts...)
	if err != nil {
		return nil, p.toProviderError(err)
	}

	text := ""
	finishReason := ""
	if len(resp.Choices) > 0 {
		text = resp.Choices[0].Message.Content
		finishReason = resp.Choices[0].FinishReason
	}

	return &providers.CompletionResult{
		Text:         text,
		Model:        resp.Model,
		FinishReason: finishReason,
		Usage: providers.Usage{
			PromptTokens:     int(resp.Usage.PromptTokens),
			CompletionTokens: int(resp.Usage.CompletionTokens),
		},
	}, nil
}

func (p *Provider) requestOptions(overrideKey string) ([]option.RequestOption, error) {
	key := overrideKey
	if key == "" {
		key = p.apiKey
	}
	if key == "" {
		return nil, fmt.Errorf("%s: no API key configured", p.name)
	}
	return []option.RequestOption{option.WithAPIKey(key)}, nil
}

func (p *Provider) toProviderError(err error) error {
	var apierr *openaiSDK.Error
	if errors.As(err, &apierr) {
		return &providers.ProviderError{
			Provider:   p.name,
			Message:    apierr.Error(),
			StatusCode: apierr.StatusCode,
			Cause:      err,
		}
	}
	return &providers.ProviderError{Provider: p.name, Message: "request failed", Cause: err}
}
