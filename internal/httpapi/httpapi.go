// Package httpapi exposes the gateway's HTTP surface: authentication,
// routing, and the request pipeline that composes the orchestrator, code
// extractor, sandbox, healer and verifier into one InferenceResponse.
package httpapi

import (
	"context"
	"log/slog"
	"time"

	"github.com/valyala/fasthttp"

	"github.com/shushantbk16/inference-verification-gateway/internal/cache"
	"github.com/shushantbk16/inference-verification-gateway/internal/healer"
	"github.com/shushantbk16/inference-verification-gateway/internal/logger"
	"github.com/shushantbk16/inference-verification-gateway/internal/metrics"
	"github.com/shushantbk16/inference-verification-gateway/internal/model"
	"github.com/shushantbk16/inference-verification-gateway/internal/orchestrator"
	"github.com/shushantbk16/inference-verification-gateway/internal/providers"
	"github.com/shushantbk16/inference-verification-gateway/internal/ratelimit"
	"github.com/shushantbk16/inference-verification-gateway/internal/sandbox"
)

// metricsRecorder is the subset of metrics.Registry the middleware chain
// needs, kept narrow so middleware tests can fake it.
type metricsRecorder interface {
	IncInFlight()
	DecInFlight()
	ObserveHTTP(route string, statusCode int, dur time.Duration)
}

// ProviderInfo pairs a named provider with the model it was configured
// with, for GET /api/v1/models.
type ProviderInfo struct {
	Provider providers.Provider
	Model    string
}

// Server holds every collaborator the HTTP layer drives and implements
// the full per-request pipeline described by the inference endpoint.
type Server struct {
	orch          *orchestrator.Orchestrator
	sandbox       *sandbox.Executor
	healer        *healer.Healer
	cache         *cache.SemanticCache
	metrics       *metrics.Registry
	reqLogger     *logger.Logger
	health        *healthChecker
	providerInfo  map[string]ProviderInfo
	providers     map[string]providers.Provider
	gatewayAPIKey string
	defaultExec   model.ExecutionConfig
	rpmLimiter    *ratelimit.RPMLimiter
	log           *slog.Logger
}

// Config bundles everything Server needs to be constructed.
type Config struct {
	Orchestrator    *orchestrator.Orchestrator
	Sandbox         *sandbox.Executor
	Healer          *healer.Healer
	Cache           *cache.SemanticCache
	Metrics         *metrics.Registry
	RequestLogger   *logger.Logger
	Providers       map[string]ProviderInfo
	GatewayAPIKey   string
	DefaultExecConf model.ExecutionConfig
	RPMLimiter      *ratelimit.RPMLimiter
	Logger          *slog.Logger
}

// New builds a Server and starts its background health probes. ctx bounds
// the probe goroutine's lifetime — callers should cancel it on shutdown.
func New(ctx context.Context, cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	provs := make(map[string]providers.Provider, len(cfg.Providers))
	for name, info := range cfg.Providers {
		provs[name] = info.Provider
	}

	var cacheReady func() bool
	if cfg.Cache != nil {
		cacheReady = func() bool { return cfg.Cache.Stats(ctx).Enabled }
	}

	return &Server{
		orch:          cfg.Orchestrator,
		sandbox:       cfg.Sandbox,
		healer:        cfg.Healer,
		cache:         cfg.Cache,
		metrics:       cfg.Metrics,
		reqLogger:     cfg.RequestLogger,
		health:        newHealthChecker(ctx, provs, cacheReady, cfg.Metrics),
		providerInfo:  cfg.Providers,
		providers:     provs,
		gatewayAPIKey: cfg.GatewayAPIKey,
		defaultExec:   cfg.DefaultExecConf,
		rpmLimiter:    cfg.RPMLimiter,
		log:           logger,
	}
}

// Close stops background work owned by the server (currently just the
// health prober).
func (s *Server) Close() {
	if s.health != nil {
		s.health.close()
	}
}

// Handler builds the full fasthttp handler: routes wrapped in the
// middleware chain, outermost-first (recovery first, the gateway-wide rate
// limit last before the route handler runs).
func (s *Server) Handler() fasthttp.RequestHandler {
	r := s.router()

	var rec metricsRecorder = noopMetrics{}
	if s.metrics != nil {
		rec = s.metrics
	}

	mws := []func(fasthttp.RequestHandler) fasthttp.RequestHandler{
		recovery,
		requestID,
		timing(rec),
		corsHandler,
		securityHeaders,
		gatewayRateLimit(s.rpmLimiter),
	}
	return applyMiddleware(r, mws...)
}

// noopMetrics backs the middleware chain when no metrics.Registry was
// wired in, e.g. in tests that construct a Server directly.
type noopMetrics struct{}

func (noopMetrics) IncInFlight()                                          {}
func (noopMetrics) DecInFlight()                                          {}
func (noopMetrics) ObserveHTTP(route string, statusCode int, dur time.Duration) {}

// ListenAndServe starts the fasthttp server on addr (e.g. ":8080").
func (s *Server) ListenAndServe(addr string) error {
	srv := &fasthttp.Server{
		Handler:      s.Handler(),
		ReadTimeout:  120 * time.Second,
		WriteTimeout: 120 * time.Second,
	}
	return srv.ListenAndServe(addr)
}
