// Package metrics provides a Prometheus metrics registry for the gateway.
//
// All metrics are scoped to a private registry (not the global default) so
// they don't interfere with host-level metrics when embedded in other
// applications. The /metrics HTTP handler is exposed via Handler().
package metrics

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttpadaptor"
)

// Registry holds all exported metrics.
type Registry struct {
	reg *prometheus.Registry

	// gateway_inflight_requests
	inFlight prometheus.Gauge

	// gateway_http_requests_total{route,status}
	httpRequestsTotal *prometheus.CounterVec

	// gateway_http_request_duration_seconds{route}
	httpDuration *prometheus.HistogramVec

	// gateway_provider_calls_total{provider,outcome}
	providerCalls *prometheus.CounterVec

	// gateway_provider_latency_seconds{provider,outcome}
	providerLatency *prometheus.HistogramVec

	// gateway_cache_operations_total{tier,result}
	cacheOps *prometheus.CounterVec

	// gateway_cache_entries — best-effort gauge of keyspace size
	cacheEntries prometheus.Gauge

	// gateway_sandbox_executions_total{language,result}
	sandboxExecutions *prometheus.CounterVec

	// gateway_sandbox_duration_seconds{language,backend}
	sandboxDuration *prometheus.HistogramVec

	// gateway_healing_attempts_total{provider,result}
	healingAttempts *prometheus.CounterVec

	// gateway_verification_strategy_total{strategy}
	verificationStrategy *prometheus.CounterVec

	// gateway_rate_limit_total{provider,result}
	rateLimitTotal *prometheus.CounterVec

	// gateway_circuit_breaker_state{provider} — 0=closed,1=open,2=half-open
	circuitBreakerState *prometheus.GaugeVec

	// gateway_provider_health{provider}
	providerHealth *prometheus.GaugeVec

	// gateway_build_info{version}
	buildInfo *prometheus.GaugeVec

	cbMu        sync.Mutex
	lastCBState map[string]float64

	metricsHandler fasthttp.RequestHandler
}

// New builds a Registry with a fresh private prometheus.Registry.
func New() *Registry {
	reg := prometheus.NewRegistry()

	reg.MustRegister(prometheus.NewGoCollector())
	reg.MustRegister(prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))

	latencyBuckets := []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 20, 30, 60, 120}

	r := &Registry{
		reg:         reg,
		lastCBState: make(map[string]float64),

		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "gateway_inflight_requests",
			Help: "Current number of in-flight inference requests",
		}),

		httpRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gateway_http_requests_total",
				Help: "Total number of HTTP requests handled by the gateway",
			},
			[]string{"route", "status"},
		),

		httpDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "gateway_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: latencyBuckets,
			},
			[]string{"route"},
		),

		providerCalls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gateway_provider_calls_total",
				Help: "Total provider completion calls by outcome",
			},
			[]string{"provider", "outcome"},
		),

		providerLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "gateway_provider_latency_seconds",
				Help:    "Provider completion call latency in seconds",
				Buckets: latencyBuckets,
			},
			[]string{"provider", "outcome"},
		),

		cacheOps: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gateway_cache_operations_total",
				Help: "Cache operations by tier and result",
			},
			[]string{"tier", "result"},
		),

		cacheEntries: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "gateway_cache_entries",
			Help: "Approximate number of keys in the cache keyspace",
		}),

		sandboxExecutions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gateway_sandbox_executions_total",
				Help: "Sandbox code executions by language and result",
			},
			[]string{"language", "result"},
		),

		sandboxDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "gateway_sandbox_duration_seconds",
				Help:    "Sandbox execution wall-clock duration in seconds",
				Buckets: latencyBuckets,
			},
			[]string{"language", "backend"},
		),

		healingAttempts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gateway_healing_attempts_total",
				Help: "Reflexion healing attempts by provider and result",
			},
			[]string{"provider", "result"},
		),

		verificationStrategy: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gateway_verification_strategy_total",
				Help: "Synthesis strategy chosen per request",
			},
			[]string{"strategy"},
		),

		rateLimitTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gateway_rate_limit_total",
				Help: "Rate limiter decisions by provider and result",
			},
			[]string{"provider", "result"},
		),

		circuitBreakerState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "gateway_circuit_breaker_state",
				Help: "Circuit breaker state (0=closed,1=open,2=half-open)",
			},
			[]string{"provider"},
		),

		providerHealth: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "gateway_provider_health",
				Help: "Provider health status (1=ok, 0=degraded)",
			},
			[]string{"provider"},
		),

		buildInfo: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "gateway_build_info",
				Help: "Build information",
			},
			[]string{"version"},
		),
	}

	reg.MustRegister(
		r.inFlight,
		r.httpRequestsTotal,
		r.httpDuration,
		r.providerCalls,
		r.providerLatency,
		r.cacheOps,
		r.cacheEntries,
		r.sandboxExecutions,
		r.sandboxDuration,
		r.healingAttempts,
		r.verificationStrategy,
		r.rateLimitTotal,
		r.circuitBreakerState,
		r.providerHealth,
		r.buildInfo,
	)

	h := promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
	r.metricsHandler = fasthttpadaptor.NewFastHTTPHandler(h)

	return r
}

func (r *Registry) IncInFlight() { r.inFlight.Inc() }
func (r *Registry) DecInFlight() { r.inFlight.Dec() }

// ObserveHTTP records end-to-end HTTP metrics for one route.
func (r *Registry) ObserveHTTP(route string, statusCode int, dur time.Duration) {
	status := strconv.Itoa(statusCode)
	r.httpRequestsTotal.WithLabelValues(route, status).Inc()
	r.httpDuration.WithLabelValues(route).Observe(dur.Seconds())
}

// ObserveProviderCall records one provider completion attempt.
func (r *Registry) ObserveProviderCall(provider, outcome string, dur time.Duration) {
	r.providerCalls.WithLabelValues(provider, outcome).Inc()
	r.providerLatency.WithLabelValues(provider, outcome).Observe(dur.Seconds())
}

func (r *Registry) CacheHit(tier string)   { r.cacheOps.WithLabelValues(tier, "hit").Inc() }
func (r *Registry) CacheMiss(tier string)  { r.cacheOps.WithLabelValues(tier, "miss").Inc() }
func (r *Registry) CacheError(tier string) { r.cacheOps.WithLabelValues(tier, "error").Inc() }
func (r *Registry) SetCacheEntries(n int)  { r.cacheEntries.Set(float64(n)) }

// ObserveSandboxExecution records one sandbox run.
func (r *Registry) ObserveSandboxExecution(language, backend string, success bool, dur time.Duration) {
	result := "failure"
	if success {
		result = "success"
	}
	r.sandboxExecutions.WithLabelValues(language, result).Inc()
	r.sandboxDuration.WithLabelValues(language, backend).Observe(dur.Seconds())
}

// RecordHealingAttempt records one reflexion repair attempt.
func (r *Registry) RecordHealingAttempt(provider string, healed bool) {
	result := "unchanged"
	if healed {
		result = "healed"
	}
	r.healingAttempts.WithLabelValues(provider, result).Inc()
}

// RecordVerificationStrategy records the synthesis strategy chosen for one request.
func (r *Registry) RecordVerificationStrategy(strategy string) {
	r.verificationStrategy.WithLabelValues(strategy).Inc()
}

// RecordRateLimit records one rate limiter admission decision.
func (r *Registry) RecordRateLimit(provider, result string) {
	r.rateLimitTotal.WithLabelValues(provider, result).Inc()
}

// SetCircuitBreaker sets the circuit breaker state gauge for provider.
func (r *Registry) SetCircuitBreaker(provider string, state int64) {
	r.circuitBreakerState.WithLabelValues(provider).Set(float64(state))

	r.cbMu.Lock()
	r.lastCBState[provider] = float64(state)
	r.cbMu.Unlock()
}

func (r *Registry) SetProviderHealth(provider string, ok bool) {
	if ok {
		r.providerHealth.WithLabelValues(provider).Set(1)
		return
	}
	r.providerHealth.WithLabelValues(provider).Set(0)
}

func (r *Registry) SetBuildInfo(version string) {
	r.buildInfo.WithLabelValues(version).Set(1)
}

func (r *Registry) Handler() fasthttp.RequestHandler {
	return r.metricsHandler
}

func (r *Registry) PromRegistry() *prometheus.Registry { return r.reg }
