package sandbox

import (
	"context"
	"errors"
	"testing"

	"github.com/shushantbk16/inference-verification-gateway/internal/model"
)

type fakeBackend struct {
	name   string
	result model.ExecutionResult
	err    error
}

func (f *fakeBackend) Name() string { return f.name }

func (f *fakeBackend) Execute(ctx context.Context, block model.CodeBlock, cfg model.ExecutionConfig) (model.ExecutionResult, error) {
	return f.result, f.err
}

func TestExecutor_UnsupportedLanguageNeverReachesBackend(t *testing.T) {
	backend := &fakeBackend{name: "fake"}
	exec := NewWithBackend(backend, nil)

	result := exec.Execute(context.Background(), model.CodeBlock{Language: model.LangTypeScript, Code: "x"}, model.ExecutionConfig{})
	if result.Success {
		t.Fatal("expected failure for unsupported language")
	}
	if result.ExitCode != -1 {
		t.Errorf("expected exit code -1, got %d", result.ExitCode)
	}
	if result.Stderr == "" {
		t.Error("expected a stderr message naming the unsupported language")
	}
}

func TestExecutor_BackendErrorBecomesFailedResult(t *testing.T) {
	backend := &fakeBackend{name: "fake", err: errors.New("boom")}
	exec := NewWithBackend(backend, nil)

	result := exec.Execute(context.Background(), model.CodeBlock{Language: model.LangPython, Code: "print(1)"}, model.ExecutionConfig{})
	if result.Success {
		t.Fatal("expected failure when the backend errors")
	}
	if result.Error == "" {
		t.Error("expected a non-empty error field")
	}
}

func TestExecutor_PassesThroughSuccessfulResult(t *testing.T) {
	backend := &fakeBackend{name: "fake", result: model.ExecutionResult{Success: true, ExitCode: 0, Stdout: "ok"}}
	exec := NewWithBackend(backend, nil)

	result := exec.Execute(context.Background(), model.CodeBlock{Language: model.LangPython, Code: "print(1)"}, model.ExecutionConfig{})
	if !result.Success || result.Stdout != "ok" {
		t.Errorf("expected passthrough of backend result, got %+v", result)
	}
	if exec.BackendName() != "fake" {
		t.Errorf("expected backend name 'fake', got %q", exec.BackendName())
	}
}
