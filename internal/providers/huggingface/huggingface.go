// Package huggingface implements providers.Provider against the Hugging
// Face Inference API. No Go SDK exists for this API, so requests are built
// and sent with net/http directly, following the wire format of the
// reference HuggingFace provider.
package huggingface

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/shushantbk16/inference-verification-gateway/internal/providers"
)

const (
	defaultBaseURL = "https://router.huggingface.co/models"
	providerName   = "huggingface"
)

// Provider queries a single HuggingFace Inference API model.
type Provider struct {
	apiKey  string
	model   string
	baseURL string
	client  *http.Client
}

// New creates a HuggingFace provider targeting model, e.g.
// "google/flan-t5-large".
func New(apiKey, model string) *Provider {
	return &Provider{
		apiKey:  apiKey,
		model:   model,
		baseURL: defaultBaseURL,
		client:  &http.Client{Timeout: providers.DefaultTimeout},
	}
}

func (p *Provider) ProviderName() string { return providerName }

func (p *Provider) HealthCheck(ctx context.Context) bool {
	result, err := p.GenerateCompletion(ctx, providers.CompletionRequest{Prompt: "Hello", MaxTokens: 10})
	return err == nil && result.Text != ""
}

type generationParameters struct {
	Temperature     float64 `json:"temperature"`
	MaxNewTokens    int     `json:"max_new_tokens"`
	ReturnFullText  bool    `json:"return_full_text"`
	DoSample        bool    `json:"do_sample"`
}

type generationOptions struct {
	WaitForModel bool `json:"wait_for_model"`
	UseCache     bool `json:"use_cache"`
}

type generationRequest struct {
	Inputs     string                `json:"inputs"`
	Parameters generationParameters  `json:"parameters"`
	Options    generationOptions     `json:"options"`
}

func (p *Provider) GenerateCompletion(ctx context.Context, req providers.CompletionRequest) (*providers.CompletionResult, error) {
	key := req.APIKey
	if key == "" {
		key = p.apiKey
	}
	if key == "" {
		return nil, fmt.Errorf("huggingface: no API key configured")
	}

	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 512
	}

	body := generationRequest{
		Inputs: req.Prompt,
		Parameters: generationParameters{
			Temperature:    req.Temperature,
			MaxNewTokens:   maxTokens,
			ReturnFullText: false,
			DoSample:       true,
		},
		Options: generationOptions{WaitForModel: true, UseCache: false},
	}

	return providers.WithRetry(ctx, func(ctx context.Context) (*providers.CompletionResult, error) {
		return p.complete(ctx, key, body)
	})
}

func (p *Provider) complete(ctx context.Context, apiKey string, body generationRequest) (*providers.CompletionResult, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("huggingface: marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/%s", p.baseURL, p.model)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("huggingface: build request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+apiKey)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, &providers.ProviderError{Provider: providerName, Message: "request failed", Cause: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &providers.ProviderError{Provider: providerName, Message: "read response", Cause: err}
	}

	if resp.StatusCode == http.StatusServiceUnavailable {
		return nil, &providers.ProviderError{
			Provider:   providerName,
			Message:    "model is loading",
			StatusCode: resp.StatusCode,
		}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &providers.ProviderError{
			Provider:   providerName,
			Message:    fmt.Sprintf("returned status %d: %s", resp.StatusCode, string(raw)),
			StatusCode: resp.StatusCode,
		}
	}

	text, err := extractGeneratedText(raw)
	if err != nil {
		return nil, &providers.ProviderError{Provider: providerName, Message: err.Error(), StatusCode: resp.StatusCode}
	}

	return &providers.CompletionResult{
		Text:         text,
		Model:        p.model,
		FinishReason: "stop",
	}, nil
}

// extractGeneratedText handles the two response shapes the Inference API
// returns depending on the model family: a list of generations, or a
// single object.
func extractGeneratedText(raw []byte) (string, error) {
	var asList []map[string]any
	if err := json.Unmarshal(raw, &asList); err == nil && len(asList) > 0 {
		if text, ok := asList[0]["generated_text"].(string); ok {
			return text, nil
		}
		return fmt.Sprintf("%v", asList[0]), nil
	}

	var asObject map[string]any
	if err := json.Unmarshal(raw, &asObject); err == nil {
		if text, ok := asObject["generated_text"].(string); ok {
			return text, nil
		}
		if text, ok := asObject["text"].(string); ok {
			return text, nil
		}
		return "", fmt.Errorf("unrecognized response shape: %s", string(raw))
	}

	return "", fmt.Errorf("invalid JSON response: %s", string(raw))
}
