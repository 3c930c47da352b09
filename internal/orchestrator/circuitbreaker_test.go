package orchestrator

import (
	"testing"
	"time"
)

func TestCircuitBreaker_OpensAfterThreshold(t *testing.T) {
	cb := NewCircuitBreaker([]string{"groq"}, CBConfig{ErrorThreshold: 3, TimeWindow: time.Minute, HalfOpenTimeout: time.Hour})

	for i := 0; i < 2; i++ {
		if !cb.Allow("groq") {
			t.Fatalf("expected Allow before threshold reached, iteration %d", i)
		}
		cb.RecordFailure("groq")
	}
	if cb.StateLabel("groq") != "closed" {
		t.Fatalf("expected still closed before threshold, got %s", cb.StateLabel("groq"))
	}

	cb.RecordFailure("groq")
	if cb.StateLabel("groq") != "open" {
		t.Fatalf("expected open after reaching threshold, got %s", cb.StateLabel("groq"))
	}
	if cb.Allow("groq") {
		t.Fatal("expected Allow to reject while open")
	}
}

func TestCircuitBreaker_HalfOpenAfterTimeout(t *testing.T) {
	cb := NewCircuitBreaker([]string{"groq"}, CBConfig{ErrorThreshold: 1, TimeWindow: time.Minute, HalfOpenTimeout: 10 * time.Millisecond})

	cb.RecordFailure("groq")
	if cb.StateLabel("groq") != "open" {
		t.Fatal("expected open after single failure with threshold 1")
	}

	time.Sleep(20 * time.Millisecond)

	if !cb.Allow("groq") {
		t.Fatal("expected a probe to be allowed once half-open timeout elapses")
	}
	if cb.StateLabel("groq") != "half_open" {
		t.Fatalf("expected half_open after probe admitted, got %s", cb.StateLabel("groq"))
	}
	// A second concurrent probe must not be admitted.
	if cb.Allow("groq") {
		t.Fatal("expected only one in-flight probe to be allowed in half_open")
	}
}

func TestCircuitBreaker_SuccessResetsToClosed(t *testing.T) {
	cb := NewCircuitBreaker([]string{"groq"}, CBConfig{ErrorThreshold: 1, TimeWindow: time.Minute, HalfOpenTimeout: time.Millisecond})

	cb.RecordFailure("groq")
	time.Sleep(5 * time.Millisecond)
	if !cb.Allow("groq") {
		t.Fatal("expected probe admitted")
	}
	cb.RecordSuccess("groq")
	if cb.StateLabel("groq") != "closed" {
		t.Fatalf("expected closed after recorded success, got %s", cb.StateLabel("groq"))
	}
	if !cb.Allow("groq") {
		t.Fatal("expected closed breaker to allow")
	}
}

func TestCircuitBreaker_UnknownProviderAlwaysAllowed(t *testing.T) {
	cb := NewCircuitBreaker([]string{"groq"}, CBConfig{})
	if !cb.Allow("nonexistent") {
		t.Fatal("expected an unseeded provider name to default to allowed")
	}
	if cb.StateLabel("nonexistent") != "closed" {
		t.Fatal("expected an unseeded provider to report closed")
	}
}

func TestCircuitBreaker_ErrorCountResetsOutsideWindow(t *testing.T) {
	cb := NewCircuitBreaker([]string{"groq"}, CBConfig{ErrorThreshold: 2, TimeWindow: 10 * time.Millisecond, HalfOpenTimeout: time.Hour})

	cb.RecordFailure("groq")
	time.Sleep(20 * time.Millisecond)
	cb.RecordFailure("groq")

	if cb.StateLabel("groq") != "closed" {
		t.Fatalf("expected the error count to have reset outside the time window, got %s", cb.StateLabel("groq"))
	}
}
