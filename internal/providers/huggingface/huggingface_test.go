package huggingface

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shushantbk16/inference-verification-gateway/internal/providers"
)

func newTestProvider(srv *httptest.Server) *Provider {
	p := New("mock-key", "google/flan-t5-large")
	p.baseURL = srv.URL
	return p
}

func TestProvider_ProviderName(t *testing.T) {
	p := New("key", "google/flan-t5-large")
	if p.ProviderName() != "huggingface" {
		t.Fatalf("expected 'huggingface', got %q", p.ProviderName())
	}
}

func TestProvider_GenerateCompletion_ListResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer mock-key" {
			t.Errorf("missing or wrong Authorization header: %s", r.Header.Get("Authorization"))
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode([]map[string]any{{"generated_text": "Paris"}})
	}))
	defer srv.Close()

	p := newTestProvider(srv)
	result, err := p.GenerateCompletion(context.Background(), providers.CompletionRequest{Prompt: "capital of France?"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Text != "Paris" {
		t.Errorf("expected 'Paris', got %q", result.Text)
	}
}

func TestProvider_GenerateCompletion_ObjectResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"text": "hi there"})
	}))
	defer srv.Close()

	p := newTestProvider(srv)
	result, err := p.GenerateCompletion(context.Background(), providers.CompletionRequest{Prompt: "hello"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Text != "hi there" {
		t.Errorf("expected 'hi there', got %q", result.Text)
	}
}

func TestProvider_GenerateCompletion_ModelLoadingRetried(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls < 2 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode([]map[string]any{{"generated_text": "ready now"}})
	}))
	defer srv.Close()

	p := newTestProvider(srv)
	result, err := p.GenerateCompletion(context.Background(), providers.CompletionRequest{Prompt: "hello"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Text != "ready now" {
		t.Errorf("expected 'ready now', got %q", result.Text)
	}
	if calls != 2 {
		t.Errorf("expected 2 calls (one 503, one success), got %d", calls)
	}
}

func TestProvider_GenerateCompletion_NoAPIKey(t *testing.T) {
	p := New("", "google/flan-t5-large")
	_, err := p.GenerateCompletion(context.Background(), providers.CompletionRequest{Prompt: "hi"})
	if err == nil {
		t.Fatal("expected error when no API key is configured")
	}
}

func TestProvider_HealthCheck(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode([]map[string]any{{"generated_text": "pong"}})
	}))
	defer srv.Close()

	p := newTestProvider(srv)
	if !p.HealthCheck(context.Background()) {
		t.Fatal("expected health check to succeed")
	}
}
