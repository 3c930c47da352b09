// Package gemini implements providers.Provider and providers.EmbeddingProvider
// against Google's Gemini API via the official genai SDK.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"google.golang.org/genai"

	"github.com/shushantbk16/inference-verification-gateway/internal/providers"
)

const (
	defaultBaseURL     = "https://generativelanguage.googleapis.com/v1beta"
	providerName       = "gemini"
	embeddingModelName = "text-embedding-004"
)

// Provider implements providers.Provider for Google Gemini.
type Provider struct {
	apiKey     string
	model      string
	baseURL    string
	client     *genai.Client
	httpClient *http.Client
	base       string
	apiVersion string
}

// Option configures a Provider.
type Option func(*Provider)

// WithBaseURL overrides the API base URL (useful for testing).
func WithBaseURL(u string) Option {
	return func(p *Provider) { p.baseURL = u }
}

// New creates a Gemini provider using model as the default completion
// model.
func New(ctx context.Context, apiKey, model string, opts ...Option) *Provider {
	if ctx == nil {
		panic("gemini: context must not be nil")
	}
	p := &Provider{
		apiKey:  apiKey,
		model:   model,
		baseURL: defaultBaseURL,
	}
	for _, o := range opts {
		o(p)
	}

	p.httpClient = &http.Client{Timeout: providers.DefaultTimeout}

	base, ver := splitBaseURLAndVersion(p.baseURL)
	p.base = base
	p.apiVersion = ver

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:      p.apiKey,
		Backend:     genai.BackendGeminiAPI,
		HTTPClient:  p.httpClient,
		HTTPOptions: genai.HTTPOptions{BaseURL: p.base, APIVersion: p.apiVersion},
	})
	if err != nil {
		return nil
	}

	p.client = client

	return p
}

func (p *Provider) ProviderName() string { return providerName }

func (p *Provider) HealthCheck(ctx context.Context) bool {
	_, err := p.client.Models.List(ctx, &genai.ListModelsConfig{PageSize: 1})
	return err == nil
}

func (p *Provider) GenerateCompletion(ctx context.Context, req providers.CompletionRequest) (*providers.CompletionResult, error) {
	client, err := p.clientForKey(ctx, req.APIKey)
	if err != nil {
		return nil, err
	}

	contents := []*genai.Content{genai.NewContentFromText(req.Prompt, genai.RoleUser)}
	cfg := buildConfig(req)

	return providers.WithRetry(ctx, func(ctx context.Context) (*providers.CompletionResult, error) {
		return p.complete(ctx, client, contents, cfg)
	})
}

func buildConfig(req providers.CompletionRequest) *genai.GenerateContentConfig {
	if req.Temperature <= 0 && req.MaxTokens <= 0 {
		return nil
	}
	cfg := &genai.GenerateContentConfig{}
	if req.Temperature > 0 {
		cfg.Temperature = genai.Ptr[float32](float32(req.Temperature))
	}
	if req.MaxTokens > 0 {
		cfg.MaxOutputTokens = int32(req.MaxTokens)
	}
	return cfg
}

func (p *Provider) complete(ctx context.Context, client *genai.Client, contents []*genai.Content, cfg *genai.GenerateContentConfig) (*providers.CompletionResult, error) {
	resp, err := client.Models.GenerateContent(ctx, p.model, contents, cfg)
	if err != nil {
		return nil, toProviderError(err)
	}

	text := ""
	finishReason := ""
	var promptTokens, completionTokens int
	if resp != nil {
		text = resp.Text()
		if len(resp.Candidates) > 0 && resp.Candidates[0] != nil {
			finishReason = string(resp.Candidates[0].FinishReason)
		}
		if resp.UsageMetadata != nil {
			promptTokens = int(resp.UsageMetadata.PromptTokenCount)
			completionTokens = int(resp.UsageMetadata.CandidatesTokenCount)
		}
	}

	return &providers.CompletionResult{
		Text:         text,
		Model:        p.model,
		FinishReason: finishReason,
		Usage: providers.Usage{
			PromptTokens:     promptTokens,
			CompletionTokens: completionTokens,
		},
	}, nil
}

// Embed implements cache.Embedder / providers.EmbeddingProvider. All input
// strings are sent in a single EmbedContent call as a batch of Contents.
func (p *Provider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	contents := make([]*genai.Content, len(texts))
	for i, text := range texts {
		contents[i] = genai.NewContentFromText(text, genai.RoleUser)
	}

	client, err := p.clientForKey(ctx, "")
	if err != nil {
		return nil, err
	}

	resp, err := client.Models.EmbedContent(ctx, embeddingModelName, contents, nil)
	if err != nil {
		return nil, fmt.Errorf("gemini: embed: %w", toProviderError(err))
	}
	if resp == nil || len(resp.Embeddings) == 0 {
		return nil, fmt.Errorf("gemini: embed: empty response")
	}

	out := make([][]float32, len(resp.Embeddings))
	for i, emb := range resp.Embeddings {
		if emb == nil {
			continue
		}
		out[i] = emb.Values
	}
	return out, nil
}

func (p *Provider) clientForKey(ctx context.Context, overrideKey string) (*genai.Client, error) {
	key := overrideKey
	if key == "" {
		key = p.apiKey
	}
	if key == "" {
		return nil, fmt.Errorf("gemini: no API key configured")
	}
	if key == p.apiKey {
		return p.client, nil
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:      key,
		Backend:     genai.BackendGeminiAPI,
		HTTPClient:  p.httpClient,
		HTTPOptions: genai.HTTPOptions{BaseURL: p.base, APIVersion: p.apiVersion},
	})
	if err != nil {
		return nil, fmt.Errorf("gemini: override client: %w", err)
	}
	return client, nil
}

func splitBaseURLAndVersion(raw string) (baseURL string, apiVersion string) {
	u, err := url.Parse(raw)
	if err != nil {
		return raw, ""
	}

	path := strings.Trim(u.Path, "/")
	if path == "" {
		base := u.String()
		if !strings.HasSuffix(base, "/") {
			base += "/"
		}
		return base, ""
	}

	parts := strings.Split(path, "/")
	last := parts[len(parts)-1]

	if looksLikeAPIVersion(last) {
		apiVersion = last
		parts = parts[:len(parts)-1]
	}

	u.Path = "/" + strings.Join(parts, "/")
	if u.Path == "/" {
		u.Path = ""
	}

	baseURL = u.String()
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}
	return baseURL, apiVersion
}

func looksLikeAPIVersion(s string) bool {
	if !strings.HasPrefix(s, "v") || len(s) < 2 {
		return false
	}
	return s[1] >= '0' && s[1] <= '9'
}

func toProviderError(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return &providers.ProviderError{
			Provider:   providerName,
			Message:    apiErr.Message,
			StatusCode: apiErr.Code,
			Cause:      err,
		}
	}
	return &providers.ProviderError{Provider: providerName, Message: "request failed", Cause: err}
}
