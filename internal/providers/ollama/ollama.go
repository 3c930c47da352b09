// Package ollama implements providers.Provider against a local Ollama
// daemon. No Go SDK exists for Ollama's HTTP API, so requests are built
// with net/http directly, following the wire format of the reference
// Ollama provider.
package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"

	"github.com/shushantbk16/inference-verification-gateway/internal/providers"
)

const (
	defaultBaseURL = "http://localhost:11434"
	providerName   = "ollama"
)

// Provider queries a local Ollama daemon. Ollama needs no API key — it is
// always attempted, and an unreachable daemon simply reports unhealthy.
type Provider struct {
	model   string
	baseURL string
	client  *http.Client
}

// New creates an Ollama provider. host overrides the default
// http://localhost:11434 when non-empty.
func New(host, model string) *Provider {
	baseURL := defaultBaseURL
	if host != "" {
		baseURL = host
	}
	return &Provider{
		model:   model,
		baseURL: baseURL,
		client:  &http.Client{Timeout: providers.DefaultTimeout},
	}
}

func (p *Provider) ProviderName() string { return providerName }

func (p *Provider) HealthCheck(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/api/tags", nil)
	if err != nil {
		return false
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

type generateOptions struct {
	Temperature float64 `json:"temperature"`
	NumPredict  int     `json:"num_predict"`
}

type generateRequest struct {
	Model   string           `json:"model"`
	Prompt  string           `json:"prompt"`
	Stream  bool             `json:"stream"`
	Options generateOptions  `json:"options"`
}

type generateResponse struct {
	Response string `json:"response"`
	Model    string `json:"model"`
	Done     bool   `json:"done"`
}

func (p *Provider) GenerateCompletion(ctx context.Context, req providers.CompletionRequest) (*providers.CompletionResult, error) {
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 512
	}

	body := generateRequest{
		Model:  p.model,
		Prompt: req.Prompt,
		Stream: false,
		Options: generateOptions{
			Temperature: req.Temperature,
			NumPredict:  maxTokens,
		},
	}

	return providers.WithRetry(ctx, func(ctx context.Context) (*providers.CompletionResult, error) {
		return p.complete(ctx, body)
	})
}

func (p *Provider) complete(ctx context.Context, body generateRequest) (*providers.CompletionResult, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("ollama: marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/api/generate", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("ollama: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(httpReq)
	if err != nil {
		var netErr *net.OpError
		if errors.As(err, &netErr) {
			return nil, &providers.ProviderError{
				Provider: providerName,
				Message:  "ollama not running. Start with: ollama serve",
				Cause:    err,
			}
		}
		return nil, &providers.ProviderError{Provider: providerName, Message: "request failed", Cause: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &providers.ProviderError{Provider: providerName, Message: "read response", Cause: err}
	}

	if resp.StatusCode != http.StatusOK {
		return nil, &providers.ProviderError{
			Provider:   providerName,
			Message:    fmt.Sprintf("returned status %d: %s", resp.StatusCode, string(raw)),
			StatusCode: resp.StatusCode,
		}
	}

	var decoded generateResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, &providers.ProviderError{Provider: providerName, Message: "decode response", Cause: err}
	}

	return &providers.CompletionResult{
		Text:         decoded.Response,
		Model:        p.model,
		FinishReason: "stop",
	}, nil
}
