// Package app wires up all subsystems and owns the application lifecycle.
//
// Startup order:
//  1. initInfra     — external connections (Redis when configured)
//  2. initProviders — the five LLM provider clients
//  3. initServices  — cache, rate limiters, sandbox, healer, metrics, orchestrator
//  4. initServer    — HTTP server
package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	gwcache "github.com/shushantbk16/inference-verification-gateway/internal/cache"
	"github.com/shushantbk16/inference-verification-gateway/internal/config"
	"github.com/shushantbk16/inference-verification-gateway/internal/healer"
	"github.com/shushantbk16/inference-verification-gateway/internal/httpapi"
	"github.com/shushantbk16/inference-verification-gateway/internal/logger"
	"github.com/shushantbk16/inference-verification-gateway/internal/metrics"
	"github.com/shushantbk16/inference-verification-gateway/internal/model"
	"github.com/shushantbk16/inference-verification-gateway/internal/orchestrator"
	"github.com/shushantbk16/inference-verification-gateway/internal/providers"
	"github.com/shushantbk16/inference-verification-gateway/internal/ratelimit"
	"github.com/shushantbk16/inference-verification-gateway/internal/sandbox"
)

// App owns all long-lived resources and exposes Run / Close.
type App struct {
	version string
	cfg     *config.Config
	baseCtx context.Context
	log     *slog.Logger

	// Optional external connections — nil when not configured.
	rdb *redis.Client

	reqLogger *logger.Logger
	memCache  *gwcache.MemoryCache
	semCache  *gwcache.SemanticCache

	prom *metrics.Registry

	provs      map[string]httpapi.ProviderInfo
	rpmLimiter *ratelimit.RPMLimiter
	sandbox    *sandbox.Executor
	heal       *healer.Healer
	orch       *orchestrator.Orchestrator
	server     *httpapi.Server
}

// New initialises all subsystems and returns a ready-to-run App.
// All resources allocated here are released by Close.
func New(ctx context.Context, cfg *config.Config, log *slog.Logger, version string) (*App, error) {
	if ctx == nil {
		return nil, fmt.Errorf("app: context must not be nil")
	}

	a := &App{cfg: cfg, version: version, baseCtx: ctx, log: log}

	steps := []struct {
		name string
		fn   func(context.Context) error
	}{
		{"infra", a.initInfra},
		{"providers", a.initProviders},
		{"services", a.initServices},
		{"server", a.initServer},
	}

	for _, s := range steps {
		if err := s.fn(ctx); err != nil {
			a.Close()
			return nil, fmt.Errorf("app: init %s: %w", s.name, err)
		}
	}

	return a, nil
}

// Run starts the HTTP server and blocks until ctx is cancelled or an error
// occurs. It closes the app gracefully when returning.
func (a *App) Run(ctx context.Context) error {
	addr := fmt.Sprintf(":%d", a.cfg.Port)

	a.log.Info("starting gateway",
		slog.String("version", a.version),
		slog.String("addr", addr),
		slog.String("sandbox_backend", a.sandbox.BackendName()),
		slog.Int("providers", len(a.provs)),
	)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return a.server.ListenAndServe(addr)
	})

	g.Go(func() error {
		<-gctx.Done()
		a.Close()
		return nil
	})

	return g.Wait()
}

// Close releases all resources in reverse-init order. Safe to call multiple
// times in sequence; it does no locking, so concurrent calls are not safe.
func (a *App) Close() {
	if a.server != nil {
		a.server.Close()
		a.server = nil
	}
	if a.reqLogger != nil {
		if err := a.reqLogger.Close(); err != nil {
			a.log.Error("logger close error", slog.String("error", err.Error()))
		}
		a.reqLogger = nil
	}
	if a.memCache != nil {
		a.memCache.Close()
		a.memCache = nil
	}
	if a.rdb != nil {
		if err := a.rdb.Close(); err != nil {
			a.log.Error("redis close error", slog.String("error", err.Error()))
		}
		a.rdb = nil
	}
}

// ── Private helpers ──────────────────────────────────────────────────────

// connectRedis parses the URL and verifies connectivity with a PING.
func connectRedis(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse url: %w", err)
	}

	rdb := redis.NewClient(opts)
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}

	return rdb, nil
}

// buildProviders constructs the fixed five-provider set. Ollama is always
// included — it needs no API key and an unreachable daemon simply reports
// unhealthy rather than failing startup.
func buildProviders(ctx context.Context, cfg *config.Config) map[string]httpapi.ProviderInfo {
	provs := make(map[string]httpapi.ProviderInfo, 5)

	if cfg.Groq.APIKey != "" {
		provs["groq"] = httpapi.ProviderInfo{Provider: groqProvider(cfg.Groq), Model: cfg.Groq.Model}
	}
	if cfg.Gemini.APIKey != "" {
		provs["gemini"] = httpapi.ProviderInfo{Provider: geminiProvider(ctx, cfg.Gemini), Model: cfg.Gemini.Model}
	}
	if cfg.OpenAI.APIKey != "" {
		provs["openai"] = httpapi.ProviderInfo{Provider: openaiProvider(cfg.OpenAI), Model: cfg.OpenAI.Model}
	}
	if cfg.HuggingFace.APIKey != "" {
		provs["huggingface"] = httpapi.ProviderInfo{Provider: huggingfaceProvider(cfg.HuggingFace), Model: cfg.HuggingFace.Model}
	}
	provs["ollama"] = httpapi.ProviderInfo{Provider: ollamaProvider(cfg.Ollama), Model: cfg.Ollama.Model}

	return provs
}

// buildLimiter seeds a per-provider token bucket limiter from each
// provider's configured RPM, falling back to the gateway-wide default for
// any provider left at RPM 0.
func buildLimiter(cfg *config.Config) *ratelimit.Limiter {
	l := ratelimit.NewLimiter(float64(cfg.RateLimit.MaxRequestsPerMinute), time.Minute)
	l.WithProvider("groq", float64(cfg.Groq.RPM))
	l.WithProvider("gemini", float64(cfg.Gemini.RPM))
	l.WithProvider("openai", float64(cfg.OpenAI.RPM))
	l.WithProvider("huggingface", float64(cfg.HuggingFace.RPM))
	l.WithProvider("ollama", float64(cfg.Ollama.RPM))
	return l
}

// providerNames returns the keys of provs as a slice, for seeding the
// circuit breaker.
func providerNames(provs map[string]httpapi.ProviderInfo) []string {
	names := make([]string, 0, len(provs))
	for name := range provs {
		names = append(names, name)
	}
	return names
}

// providerSlice extracts the providers.Provider values from provs, for the
// orchestrator's fan-out list.
func providerSlice(provs map[string]httpapi.ProviderInfo) []providers.Provider {
	out := make([]providers.Provider, 0, len(provs))
	for _, info := range provs {
		out = append(out, info.Provider)
	}
	return out
}

// execConfigFromSandbox converts the static sandbox config into the
// per-request default ExecutionConfig.
func execConfigFromSandbox(cfg config.SandboxConfig) model.ExecutionConfig {
	return model.ExecutionConfig{
		TimeoutSeconds:  cfg.TimeoutSeconds,
		MemoryLimit:     cfg.MemoryLimit,
		CPUFraction:     cfg.CPUFraction,
		NetworkDisabled: cfg.NetworkDisabled,
	}
}
