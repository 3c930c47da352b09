package healer

import (
	"context"
	"errors"
	"testing"

	"github.com/shushantbk16/inference-verification-gateway/internal/model"
	"github.com/shushantbk16/inference-verification-gateway/internal/providers"
	"github.com/shushantbk16/inference-verification-gateway/internal/sandbox"
)

type fakeProvider struct {
	name   string
	text   string
	err    error
	calls  int
	lastReq providers.CompletionRequest
}

func (f *fakeProvider) ProviderName() string { return f.name }

func (f *fakeProvider) GenerateCompletion(ctx context.Context, req providers.CompletionRequest) (*providers.CompletionResult, error) {
	f.calls++
	f.lastReq = req
	if f.err != nil {
		return nil, f.err
	}
	return &providers.CompletionResult{Text: f.text}, nil
}

func (f *fakeProvider) HealthCheck(ctx context.Context) bool { return true }

type fakeBackend struct {
	result model.ExecutionResult
}

func (b *fakeBackend) Name() string { return "fake" }

func (b *fakeBackend) Execute(ctx context.Context, block model.CodeBlock, cfg model.ExecutionConfig) (model.ExecutionResult, error) {
	return b.result, nil
}

func TestHealer_SuccessfulFix(t *testing.T) {
	backend := &fakeBackend{result: model.ExecutionResult{Success: true, ExitCode: 0, Stdout: "4"}}
	h := New(sandbox.NewWithBackend(backend, nil), nil)

	prov := &fakeProvider{name: "groq", text: "```python\nprint(2+2)\n```"}
	resp := &model.ModelResponse{
		Provider:         "groq",
		CodeBlocks:       []model.CodeBlock{{Language: model.LangPython, Code: "print(x)"}},
		ExecutionResults: []model.ExecutionResult{{Success: false, Stderr: "NameError: name 'x' is not defined"}},
	}

	h.Heal(context.Background(), resp, prov, model.ExecutionConfig{})

	if prov.calls != 1 {
		t.Fatalf("expected exactly 1 healing call, got %d", prov.calls)
	}
	if prov.lastReq.Temperature != healingTemperature {
		t.Errorf("expected healing temperature %v, got %v", healingTemperature, prov.lastReq.Temperature)
	}
	if !resp.ExecutionResults[0].Success {
		t.Fatal("expected healed result to succeed")
	}
	if !resp.ExecutionResults[0].Healed {
		t.Error("expected Healed flag to be set")
	}
	if resp.CodeBlocks[0].Code != "print(2+2)" {
		t.Errorf("expected code block replaced with fix, got %q", resp.CodeBlocks[0].Code)
	}
}

func TestHealer_SkipsAlreadyHealed(t *testing.T) {
	backend := &fakeBackend{}
	h := New(sandbox.NewWithBackend(backend, nil), nil)

	prov := &fakeProvider{name: "groq", text: "```python\nprint(1)\n```"}
	resp := &model.ModelResponse{
		ExecutionResults: []model.ExecutionResult{{Success: false, Stderr: "boom", Healed: true}},
		CodeBlocks:       []model.CodeBlock{{Language: model.LangPython, Code: "print(x)"}},
	}

	h.Heal(context.Background(), resp, prov, model.ExecutionConfig{})
	if prov.calls != 0 {
		t.Errorf("expected no healing attempt for an already-healed block, got %d calls", prov.calls)
	}
}

func TestHealer_SkipsSuccessfulOrEmptyStderr(t *testing.T) {
	backend := &fakeBackend{}
	h := New(sandbox.NewWithBackend(backend, nil), nil)
	prov := &fakeProvider{name: "groq"}

	resp := &model.ModelResponse{
		ExecutionResults: []model.ExecutionResult{
			{Success: true},
			{Success: false, Stderr: ""},
		},
		CodeBlocks: []model.CodeBlock{
			{Language: model.LangPython, Code: "print(1)"},
			{Language: model.LangPython, Code: "print(2)"},
		},
	}

	h.Heal(context.Background(), resp, prov, model.ExecutionConfig{})
	if prov.calls != 0 {
		t.Errorf("expected no healing calls, got %d", prov.calls)
	}
}

func TestHealer_ProviderErrorLeavesOriginalIntact(t *testing.T) {
	backend := &fakeBackend{}
	h := New(sandbox.NewWithBackend(backend, nil), nil)
	prov := &fakeProvider{name: "groq", err: errors.New("provider down")}

	original := model.ExecutionResult{Success: false, Stderr: "boom"}
	resp := &model.ModelResponse{
		ExecutionResults: []model.ExecutionResult{original},
		CodeBlocks:       []model.CodeBlock{{Language: model.LangPython, Code: "print(x)"}},
	}

	h.Heal(context.Background(), resp, prov, model.ExecutionConfig{})
	if resp.ExecutionResults[0] != original {
		t.Errorf("expected original result preserved on healing failure, got %+v", resp.ExecutionResults[0])
	}
}

func TestHealer_NoCodeBlockInReplyLeavesOriginalIntact(t *testing.T) {
	backend := &fakeBackend{}
	h := New(sandbox.NewWithBackend(backend, nil), nil)
	prov := &fakeProvider{name: "groq", text: "I could not find a fix."}

	original := model.ExecutionResult{Success: false, Stderr: "boom"}
	resp := &model.ModelResponse{
		ExecutionResults: []model.ExecutionResult{original},
		CodeBlocks:       []model.CodeBlock{{Language: model.LangPython, Code: "print(x)"}},
	}

	h.Heal(context.Background(), resp, prov, model.ExecutionConfig{})
	if resp.ExecutionResults[0] != original {
		t.Errorf("expected original result preserved when no fix candidate found, got %+v", resp.ExecutionResults[0])
	}
}
