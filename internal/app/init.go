package app

import (
	"context"
	"fmt"
	"log/slog"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	gwcache "github.com/shushantbk16/inference-verification-gateway/internal/cache"
	"github.com/shushantbk16/inference-verification-gateway/internal/config"
	"github.com/shushantbk16/inference-verification-gateway/internal/healer"
	"github.com/shushantbk16/inference-verification-gateway/internal/httpapi"
	"github.com/shushantbk16/inference-verification-gateway/internal/logger"
	"github.com/shushantbk16/inference-verification-gateway/internal/metrics"
	"github.com/shushantbk16/inference-verification-gateway/internal/orchestrator"
	"github.com/shushantbk16/inference-verification-gateway/internal/providers"
	"github.com/shushantbk16/inference-verification-gateway/internal/providers/gemini"
	"github.com/shushantbk16/inference-verification-gateway/internal/providers/groq"
	"github.com/shushantbk16/inference-verification-gateway/internal/providers/huggingface"
	"github.com/shushantbk16/inference-verification-gateway/internal/providers/ollama"
	"github.com/shushantbk16/inference-verification-gateway/internal/providers/openai"
	"github.com/shushantbk16/inference-verification-gateway/internal/ratelimit"
	"github.com/shushantbk16/inference-verification-gateway/internal/sandbox"
)

// initInfra connects to Redis when configured. Both the cache and the
// gateway-wide RPM limiter share this single client.
func (a *App) initInfra(ctx context.Context) error {
	if a.cfg.Cache.RedisURL == "" {
		a.log.Warn("no REDIS_URL configured, falling back to in-process cache and local rate limiting only")
		return nil
	}

	rdb, err := connectRedis(ctx, a.cfg.Cache.RedisURL)
	if err != nil {
		a.log.Warn("redis unreachable, falling back to in-process cache",
			slog.String("error", err.Error()))
		return nil
	}
	a.rdb = rdb
	return nil
}

// initProviders builds the fixed five-provider set.
func (a *App) initProviders(ctx context.Context) error {
	if !a.cfg.AtLeastOneProviderKey() {
		a.log.Warn("no LLM provider API key configured — only Ollama will be attempted")
	}
	a.provs = buildProviders(ctx, a.cfg)
	return nil
}

// initServices wires the cache, rate limiters, sandbox, and healer.
func (a *App) initServices(ctx context.Context) error {
	a.prom = metrics.New()

	reqLogger, err := logger.New(ctx, a.log)
	if err != nil {
		return fmt.Errorf("request logger: %w", err)
	}
	a.reqLogger = reqLogger

	store, embedder := a.buildCacheStore(ctx)
	a.semCache = gwcache.NewSemanticCache(store, a.rdb, embedder, a.cfg.Cache.SimilarityThreshold, a.cfg.Cache.TTL)

	exclude, err := gwcache.NewExclusionList(a.cfg.Cache.ExcludeExact, a.cfg.Cache.ExcludePatterns)
	if err != nil {
		return fmt.Errorf("cache exclusion list: %w", err)
	}

	limiter := buildLimiter(a.cfg)
	if a.rdb != nil {
		a.rpmLimiter = ratelimit.NewRPMLimiter(a.rdb, a.cfg.RateLimit.MaxRequestsPerMinute)
	}

	a.sandbox = sandbox.New(a.cfg.Sandbox, buildZapLogger(a.cfg.LogLevel))
	a.heal = healer.New(a.sandbox, a.log)

	a.orch = orchestrator.New(orchestrator.Config{
		Providers:      providerSlice(a.provs),
		Limiter:        limiter,
		Breaker:        orchestrator.NewCircuitBreaker(providerNames(a.provs), orchestrator.CBConfig{}),
		Cache:          a.semCache,
		CacheExclude:   exclude,
		Metrics:        a.prom,
		RequestTimeout: a.cfg.RequestTimeout,
		Logger:         a.log,
	})

	return nil
}

// initServer builds the HTTP server on top of the orchestrator.
func (a *App) initServer(ctx context.Context) error {
	a.server = httpapi.New(ctx, httpapi.Config{
		Orchestrator:    a.orch,
		Sandbox:         a.sandbox,
		Healer:          a.heal,
		Cache:           a.semCache,
		Metrics:         a.prom,
		RequestLogger:   a.reqLogger,
		Providers:       a.provs,
		GatewayAPIKey:   a.cfg.GatewayAPIKey,
		DefaultExecConf: execConfigFromSandbox(a.cfg.Sandbox),
		RPMLimiter:      a.rpmLimiter,
		Logger:          a.log,
	})
	return nil
}

// buildCacheStore picks the Redis or in-process cache backend and selects
// an embedding provider for the semantic tier, preferring OpenAI (a
// dedicated small embedding model) over Gemini when both are configured.
func (a *App) buildCacheStore(ctx context.Context) (gwcache.Cache, gwcache.Embedder) {
	var store gwcache.Cache
	if a.rdb != nil {
		store = gwcache.NewExactCacheFromClient(a.rdb)
	} else {
		a.memCache = gwcache.NewMemoryCache(ctx)
		store = a.memCache
	}

	var embedder gwcache.Embedder
	if info, ok := a.provs["openai"]; ok {
		if e, ok := info.Provider.(gwcache.Embedder); ok {
			embedder = e
		}
	} else if info, ok := a.provs["gemini"]; ok {
		if e, ok := info.Provider.(gwcache.Embedder); ok {
			embedder = e
		}
	}

	return store, embedder
}

func groqProvider(cfg config.ProviderConfig) providers.Provider {
	return groq.New(cfg.APIKey, cfg.Model)
}

func geminiProvider(ctx context.Context, cfg config.ProviderConfig) providers.Provider {
	return gemini.New(ctx, cfg.APIKey, cfg.Model)
}

func openaiProvider(cfg config.ProviderConfig) providers.Provider {
	return openai.New(cfg.APIKey, cfg.Model)
}

func huggingfaceProvider(cfg config.ProviderConfig) providers.Provider {
	return huggingface.New(cfg.APIKey, cfg.Model)
}

func ollamaProvider(cfg config.ProviderConfig) providers.Provider {
	return ollama.New("", cfg.Model)
}

// buildZapLogger mirrors the gateway's slog level selection for the
// sandbox executor, which is grounded on zap rather than slog.
func buildZapLogger(level string) *zap.Logger {
	var zl zapcore.Level
	switch level {
	case "debug":
		zl = zapcore.DebugLevel
	case "warn":
		zl = zapcore.WarnLevel
	case "error":
		zl = zapcore.ErrorLevel
	default:
		zl = zapcore.InfoLevel
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(zl)
	logger, err := cfg.Build()
	if err != nil {
		return zap.NewNop()
	}
	return logger
}
