package sandbox

import (
	"context"
	"strings"
	"testing"

	"github.com/shushantbk16/inference-verification-gateway/internal/model"
)

func TestSubprocessBackend_Success(t *testing.T) {
	b := NewSubprocessBackend(nil)
	block := model.CodeBlock{Language: model.LangBash, Code: "echo hello"}

	result, err := b.Execute(context.Background(), block, model.ExecutionConfig{TimeoutSeconds: 5})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.Success || result.ExitCode != 0 {
		t.Fatalf("expected success, got %+v", result)
	}
	if strings.TrimSpace(result.Stdout) != "hello" {
		t.Errorf("expected stdout 'hello', got %q", result.Stdout)
	}
}

func TestSubprocessBackend_NonZeroExit(t *testing.T) {
	b := NewSubprocessBackend(nil)
	block := model.CodeBlock{Language: model.LangBash, Code: "exit 3"}

	result, err := b.Execute(context.Background(), block, model.ExecutionConfig{TimeoutSeconds: 5})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Success {
		t.Fatal("expected failure for non-zero exit")
	}
	if result.ExitCode != 3 {
		t.Errorf("expected exit code 3, got %d", result.ExitCode)
	}
}

func TestSubprocessBackend_Timeout(t *testing.T) {
	b := NewSubprocessBackend(nil)
	block := model.CodeBlock{Language: model.LangBash, Code: "sleep 5"}

	result, err := b.Execute(context.Background(), block, model.ExecutionConfig{TimeoutSeconds: 1})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Success {
		t.Fatal("expected a timed-out run to fail")
	}
	if result.ExitCode != -1 {
		t.Errorf("expected exit code -1 on timeout, got %d", result.ExitCode)
	}
	if result.Error == "" {
		t.Error("expected an error message on timeout")
	}
}

func TestSubprocessBackend_UnsupportedLanguage(t *testing.T) {
	b := NewSubprocessBackend(nil)
	block := model.CodeBlock{Language: model.LangTypeScript, Code: "console.log(1)"}

	_, err := b.Execute(context.Background(), block, model.ExecutionConfig{TimeoutSeconds: 1})
	if err == nil {
		t.Fatal("expected an error for an unsupported language")
	}
}
