package httpapi

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/valyala/fasthttp"

	"github.com/shushantbk16/inference-verification-gateway/internal/model"
	"github.com/shushantbk16/inference-verification-gateway/internal/orchestrator"
	"github.com/shushantbk16/inference-verification-gateway/internal/providers"
	"github.com/shushantbk16/inference-verification-gateway/internal/sandbox"
)

type fakeProvider struct {
	name string
	text string
	ok   bool
}

func (f *fakeProvider) ProviderName() string { return f.name }

func (f *fakeProvider) GenerateCompletion(ctx context.Context, req providers.CompletionRequest) (*providers.CompletionResult, error) {
	return &providers.CompletionResult{Text: f.text, Model: f.name + "-model"}, nil
}

func (f *fakeProvider) HealthCheck(ctx context.Context) bool { return f.ok }

type fakeSandboxBackend struct{}

func (fakeSandboxBackend) Name() string { return "fake" }

func (fakeSandboxBackend) Execute(ctx context.Context, block model.CodeBlock, cfg model.ExecutionConfig) (model.ExecutionResult, error) {
	return model.ExecutionResult{Success: true, ExitCode: 0, Stdout: "4"}, nil
}

func newTestServer(t *testing.T, gatewayKey string) *Server {
	t.Helper()
	prov := &fakeProvider{name: "groq", text: "here:\n```python\nprint(4)\n```", ok: true}
	orch := orchestrator.New(orchestrator.Config{Providers: []providers.Provider{prov}})
	sb := sandbox.NewWithBackend(fakeSandboxBackend{}, nil)

	return New(context.Background(), Config{
		Orchestrator:  orch,
		Sandbox:       sb,
		Providers:     map[string]ProviderInfo{"groq": {Provider: prov, Model: "groq-model"}},
		GatewayAPIKey: gatewayKey,
		DefaultExecConf: model.ExecutionConfig{
			TimeoutSeconds: 5,
		},
	})
}

func newRequestCtx(method, path, apiKey string, body []byte) *fasthttp.RequestCtx {
	ctx := &fasthttp.RequestCtx{}
	ctx.Request.SetRequestURI(path)
	ctx.Request.Header.SetMethod(method)
	if apiKey != "" {
		ctx.Request.Header.Set("X-API-Key", apiKey)
	}
	if body != nil {
		ctx.Request.SetBody(body)
	}
	return ctx
}

func TestHandleInference_Success(t *testing.T) {
	s := newTestServer(t, "")
	body, _ := json.Marshal(inboundInferenceRequest{Prompt: "what is 2+2?", ExecuteCode: true, Verify: true})
	ctx := newRequestCtx(fasthttp.MethodPost, "/api/v1/inference", "", body)

	s.handleInference(ctx)

	if ctx.Response.StatusCode() != fasthttp.StatusOK {
		t.Fatalf("expected 200, got %d: %s", ctx.Response.StatusCode(), ctx.Response.Body())
	}
	var out outboundInferenceResponse
	if err := json.Unmarshal(ctx.Response.Body(), &out); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(out.ModelResponses) != 1 {
		t.Fatalf("expected 1 model response, got %d", len(out.ModelResponses))
	}
	if out.SelectedResponse == nil {
		t.Fatal("expected a selected response")
	}
	if len(out.ModelResponses[0].ExecutionResults) != 1 || !out.ModelResponses[0].ExecutionResults[0].Success {
		t.Errorf("expected a successful execution result, got %+v", out.ModelResponses[0].ExecutionResults)
	}
}

func TestHandleInference_EmptyPromptRejected(t *testing.T) {
	s := newTestServer(t, "")
	body, _ := json.Marshal(inboundInferenceRequest{Prompt: ""})
	ctx := newRequestCtx(fasthttp.MethodPost, "/api/v1/inference", "", body)

	s.handleInference(ctx)

	if ctx.Response.StatusCode() != fasthttp.StatusBadRequest {
		t.Fatalf("expected 400, got %d", ctx.Response.StatusCode())
	}
}

func TestHandleInference_MalformedBodyRejected(t *testing.T) {
	s := newTestServer(t, "")
	ctx := newRequestCtx(fasthttp.MethodPost, "/api/v1/inference", "", []byte("{not json"))

	s.handleInference(ctx)

	if ctx.Response.StatusCode() != fasthttp.StatusBadRequest {
		t.Fatalf("expected 400 for malformed JSON, got %d", ctx.Response.StatusCode())
	}
}

func TestAuthRequired_RejectsWrongKey(t *testing.T) {
	s := newTestServer(t, "secret")
	h := authRequired(s.gatewayAPIKey)(s.handleInference)

	body, _ := json.Marshal(inboundInferenceRequest{Prompt: "hi"})
	ctx := newRequestCtx(fasthttp.MethodPost, "/api/v1/inference", "wrong", body)
	h(ctx)

	if ctx.Response.StatusCode() != fasthttp.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", ctx.Response.StatusCode())
	}
}

func TestAuthRequired_AcceptsCorrectKey(t *testing.T) {
	s := newTestServer(t, "secret")
	h := authRequired(s.gatewayAPIKey)(s.handleInference)

	body, _ := json.Marshal(inboundInferenceRequest{Prompt: "hi"})
	ctx := newRequestCtx(fasthttp.MethodPost, "/api/v1/inference", "secret", body)
	h(ctx)

	if ctx.Response.StatusCode() != fasthttp.StatusOK {
		t.Fatalf("expected 200 with the correct key, got %d", ctx.Response.StatusCode())
	}
}

func TestHandleHealth_ReportsProviderStatus(t *testing.T) {
	s := newTestServer(t, "")
	defer s.Close()
	ctx := newRequestCtx(fasthttp.MethodGet, "/api/v1/health", "", nil)

	s.handleHealth(ctx)

	if ctx.Response.StatusCode() != fasthttp.StatusOK {
		t.Fatalf("expected 200, got %d", ctx.Response.StatusCode())
	}
	var out struct {
		Status    string          `json:"status"`
		Providers map[string]bool `json:"providers"`
	}
	if err := json.Unmarshal(ctx.Response.Body(), &out); err != nil {
		t.Fatalf("failed to decode: %v", err)
	}
	if !out.Providers["groq"] {
		t.Error("expected groq to report healthy")
	}
}

func TestHandleModels_ListsConfiguredModels(t *testing.T) {
	s := newTestServer(t, "")
	defer s.Close()
	ctx := newRequestCtx(fasthttp.MethodGet, "/api/v1/models", "", nil)

	s.handleModels(ctx)

	var out struct {
		Models map[string]string `json:"models"`
	}
	if err := json.Unmarshal(ctx.Response.Body(), &out); err != nil {
		t.Fatalf("failed to decode: %v", err)
	}
	if out.Models["groq"] != "groq-model" {
		t.Errorf("expected groq-model, got %q", out.Models["groq"])
	}
}

func TestHandleCacheStats_NilCacheReportsDisabled(t *testing.T) {
	s := newTestServer(t, "")
	defer s.Close()
	ctx := newRequestCtx(fasthttp.MethodGet, "/api/v1/cache/stats", "", nil)

	s.handleCacheStats(ctx)

	var out struct {
		Enabled bool `json:"enabled"`
	}
	if err := json.Unmarshal(ctx.Response.Body(), &out); err != nil {
		t.Fatalf("failed to decode: %v", err)
	}
	if out.Enabled {
		t.Error("expected disabled cache stats when no cache is configured")
	}
}
