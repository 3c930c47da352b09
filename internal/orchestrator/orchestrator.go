// Package orchestrator fans an inference request out to every configured
// provider in parallel and collects their responses. It owns nothing
// downstream of that: code extraction, sandbox execution, healing and
// synthesis are composed by the HTTP layer on top of the slice this
// package returns.
package orchestrator

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/shushantbk16/inference-verification-gateway/internal/cache"
	"github.com/shushantbk16/inference-verification-gateway/internal/metrics"
	"github.com/shushantbk16/inference-verification-gateway/internal/model"
	"github.com/shushantbk16/inference-verification-gateway/internal/providers"
	"github.com/shushantbk16/inference-verification-gateway/internal/ratelimit"
)

// Named errors surfaced in a ModelResponse.Error field when a provider
// never got to make a call at all.
const (
	errCircuitOpen = "circuit breaker open"
	errRateLimited = "rate limit wait cancelled"
)

// Orchestrator runs the configured set of providers concurrently for every
// inference request.
type Orchestrator struct {
	providers []providers.Provider
	limiter   *ratelimit.Limiter
	breaker   *CircuitBreaker
	cache     *cache.SemanticCache
	exclude   *cache.ExclusionList
	metrics   *metrics.Registry
	timeout   time.Duration
	log       *slog.Logger
}

// Config bundles the collaborators an Orchestrator needs. Cache and
// Metrics may be nil — every call site guards against it.
type Config struct {
	Providers      []providers.Provider
	Limiter        *ratelimit.Limiter
	Breaker        *CircuitBreaker
	Cache          *cache.SemanticCache
	CacheExclude   *cache.ExclusionList
	Metrics        *metrics.Registry
	RequestTimeout time.Duration
	Logger         *slog.Logger
}

// New builds an Orchestrator. A nil Breaker is replaced with one seeded
// from the given providers using package defaults; a nil Logger falls
// back to slog.Default().
func New(cfg Config) *Orchestrator {
	breaker := cfg.Breaker
	if breaker == nil {
		names := make([]string, len(cfg.Providers))
		for i, p := range cfg.Providers {
			names[i] = p.ProviderName()
		}
		breaker = NewCircuitBreaker(names, CBConfig{})
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = providers.DefaultTimeout
	}

	return &Orchestrator{
		providers: cfg.Providers,
		limiter:   cfg.Limiter,
		breaker:   breaker,
		cache:     cfg.Cache,
		exclude:   cfg.CacheExclude,
		metrics:   cfg.Metrics,
		timeout:   timeout,
		log:       logger,
	}
}

// RunInference queries every configured provider concurrently and returns
// exactly one ModelResponse per configured provider, in configured order,
// regardless of which finishes first or fails. No provider's failure,
// timeout, or circuit-breaker rejection cancels any sibling call — each
// slot is filled independently.
func (o *Orchestrator) RunInference(ctx context.Context, prompt string, temperature float64, maxTokens int) []model.ModelResponse {
	responses := make([]model.ModelResponse, len(o.providers))

	// A plain WaitGroup, not errgroup.WithContext: one provider's error
	// must never cancel the context the others are still using.
	var wg sync.WaitGroup
	wg.Add(len(o.providers))
	for i, p := range o.providers {
		i, p := i, p
		go func() {
			defer wg.Done()
			responses[i] = o.callOne(ctx, p, prompt, temperature, maxTokens)
		}()
	}
	wg.Wait()

	return responses
}

// callOne runs the full per-provider path: rate-limit acquisition, cache
// check, circuit breaker admission, the call itself, then bookkeeping. It
// always returns a populated ModelResponse and never panics. The provider
// call itself is bounded by o.timeout; the rate-limit wait is bounded only
// by ctx.
func (o *Orchestrator) callOne(ctx context.Context, p providers.Provider, prompt string, temperature float64, maxTokens int) model.ModelResponse {
	name := p.ProviderName()
	start := time.Now()
	cacheable := o.cache != nil && !o.exclude.Matches(name) && !o.exclude.Matches(prompt)

	if o.limiter != nil {
		if err := o.limiter.Acquire(ctx, name); err != nil {
			if o.metrics != nil {
				o.metrics.RecordRateLimit(name, "throttled")
			}
			return o.errorResponse(name, start, errRateLimited)
		}
	}

	if cacheable {
		if text, ok := o.cache.Get(ctx, name, prompt); ok {
			if o.metrics != nil {
				o.metrics.CacheHit("response")
			}
			return model.ModelResponse{
				Provider:  name,
				ModelName: name,
				Text:      text,
				LatencyS:  0,
				Timestamp: start,
			}
		}
		if o.metrics != nil {
			o.metrics.CacheMiss("response")
		}
	}

	if !o.breaker.Allow(name) {
		if o.metrics != nil {
			o.metrics.RecordRateLimit(name, "circuit_open")
			o.metrics.SetCircuitBreaker(name, o.breaker.State(name))
		}
		return o.errorResponse(name, start, errCircuitOpen)
	}

	callCtx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	result, err := p.GenerateCompletion(callCtx, providers.CompletionRequest{
		Prompt:      prompt,
		Temperature: temperature,
		MaxTokens:   maxTokens,
	})
	latency := time.Since(start)

	if err != nil {
		o.breaker.RecordFailure(name)
		if o.metrics != nil {
			o.metrics.ObserveProviderCall(name, "error", latency)
			o.metrics.SetCircuitBreaker(name, o.breaker.State(name))
		}
		o.log.WarnContext(ctx, "provider_call_failed",
			slog.String("provider", name), slog.String("error", err.Error()))
		return o.errorResponse(name, start, classifyForResponse(err))
	}

	o.breaker.RecordSuccess(name)
	if o.metrics != nil {
		o.metrics.ObserveProviderCall(name, "success", latency)
		o.metrics.SetCircuitBreaker(name, o.breaker.State(name))
	}

	if cacheable {
		o.cache.Set(ctx, name, prompt, result.Text)
	}

	return model.ModelResponse{
		Provider:  name,
		ModelName: result.Model,
		Text:      result.Text,
		LatencyS:  latency.Seconds(),
		Timestamp: start,
	}
}

func (o *Orchestrator) errorResponse(provider string, start time.Time, reason string) model.ModelResponse {
	return model.ModelResponse{
		Provider:  provider,
		LatencyS:  time.Since(start).Seconds(),
		Timestamp: start,
		Error:     reason,
	}
}

// classifyForResponse normalizes a provider error down to a short string
// fit for ModelResponse.Error, preferring context cancellation over the
// provider's own error text when both apply.
func classifyForResponse(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return "request timed out"
	}
	if errors.Is(err, context.Canceled) {
		return "request cancelled"
	}
	return err.Error()
}
