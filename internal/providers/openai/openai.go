// Package openai implements providers.Provider and providers.EmbeddingProvider
// against OpenAI's chat completions and embeddings APIs.
//
// OpenAI is optional in the gateway's fan-out: it is only queried as one of
// the verification providers when OPENAI_API_KEY is configured, and in that
// case its Embed method is also the preferred embedding backend for the
// semantic cache.
package openai

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/shushantbk16/inference-verification-gateway/internal/providers"
	openaiSDK "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

const (
	defaultBaseURL   = "https://api.openai.com/v1"
	providerName     = "openai"
	embeddingModel   = "text-embedding-3-small"
)

type Provider struct {
	apiKey  string
	model   string
	baseURL string
	client  openaiSDK.Client
}

// New creates an OpenAI provider using model as the default completion
// model.
func New(apiKey, model string) *Provider {
	p := &Provider{
		apiKey:  apiKey,
		model:   model,
		baseURL: defaultBaseURL,
	}

	p.client = openaiSDK.NewClient(
		option.WithAPIKey(apiKey),
		option.WithHTTPClient(&http.Client{Timeout: providers.DefaultTimeout}),
	)

	return p
}

func (p *Provider) ProviderName() string { return providerName }

func (p *Provider) HealthCheck(ctx context.Context) bool {
	_, err := p.client.Models.List(ctx)
	return err == nil
}

func (p *Provider) GenerateCompletion(ctx context.Context, req providers.CompletionRequest) (*providers.CompletionResult, error) {
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

// Embed implements cache.Embedder / providers.EmbeddingProvider.
func (p *Provider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	params := openaiSDK.EmbeddingNewParams{
		Model: openaiSDK.EmbeddingModel(embeddingModel),
		Input: openaiSDK.EmbeddingNewParamsInputUnion{OfArrayOfStrings: texts},
	}

	opts, err := p.requestOptions("")
	if err != nil {
		return nil, err
	}

	resp, err := p.client.Embeddings.New(ctx, params, opts...)
	if err != nil {
		return nil, p.toProviderError(err)
	}

	out := make([][]float32, len(resp.Data))
	for i, d := range resp.Data {
		vec := make([]float32, len(d.Embedding))
		for j, v := range d.Embedding {
			vec[j] = float32(v)
		}
		out[i] = vec
	}
	return out, nil
}

func (p *Provider) requestOptions(overrideKey string) ([]option.RequestOption, error) {
	key := overrideKey
	if key == "" {
		key = p.apiKey
	}
	if key == "" {
		return nil, fmt.Errorf("openai: no API key configured")
	}
	return []option.RequestOption{option.WithAPIKey(key)}, nil
}

func (p *Provider) toProviderError(err error) error {
	var apierr *openaiSDK.Error
	if errors.As(err, &apierr) {
		return &providers.ProviderError{
			Provider:   providerName,
			Message:    apierr.Error(),
			StatusCode: apierr.StatusCode,
			Cause:      err,
		}
	}
	return &providers.ProviderError{Provider: providerName, Message: "request failed", Cause: err}
}
