package httpapi

import (
	"context"
	"sync"
	"time"

	"github.com/shushantbk16/inference-verification-gateway/internal/metrics"
	"github.com/shushantbk16/inference-verification-gateway/internal/providers"
)

const healthProbeInterval = 30 * time.Second
const healthProbeTimeout = 5 * time.Second

// healthStatus holds the last known health result for one component,
// guarded against concurrent probe/read access.
type healthStatus struct {
	mu     sync.RWMutex
	status bool
}

func (s *healthStatus) set(v bool) {
	s.mu.Lock()
	s.status = v
	s.mu.Unlock()
}

func (s *healthStatus) get() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

// healthChecker runs background probes against every configured provider
// and the cache, exposing the latest results for GET /api/v1/health.
type healthChecker struct {
	providers  map[string]providers.Provider
	cacheReady func() bool
	metrics    *metrics.Registry
	baseCtx    context.Context

	providerStatus map[string]*healthStatus
	cacheStatus    healthStatus

	startTime time.Time
	done      chan struct{}
	wg        sync.WaitGroup
}

func newHealthChecker(ctx context.Context, provs map[string]providers.Provider, cacheReady func() bool, met *metrics.Registry) *healthChecker {
	hc := &healthChecker{
		providers:      provs,
		cacheReady:     cacheReady,
		metrics:        met,
		baseCtx:        ctx,
		providerStatus: make(map[string]*healthStatus, len(provs)),
		startTime:      time.Now(),
		done:           make(chan struct{}),
	}
	for name := range provs {
		hc.providerStatus[name] = &healthStatus{}
	}

	hc.probe()

	hc.wg.Add(1)
	go hc.run()

	return hc
}

// healthSnapshot is the {status, providers} portion of the health payload;
// the handler adds the static models map separately.
type healthSnapshot struct {
	Status    string          `json:"status"`
	Providers map[string]bool `json:"providers"`
}

func (hc *healthChecker) snapshot() healthSnapshot {
	overall := "ok"
	provs := make(map[string]bool, len(hc.providerStatus))
	for name, s := range hc.providerStatus {
		ok := s.get()
		provs[name] = ok
		if !ok {
			overall = "degraded"
		}
	}
	if hc.cacheReady != nil && !hc.cacheStatus.get() {
		overall = "degraded"
	}
	return healthSnapshot{Status: overall, Providers: provs}
}

func (hc *healthChecker) close() {
	close(hc.done)
	hc.wg.Wait()
}

func (hc *healthChecker) run() {
	defer hc.wg.Done()
	ticker := time.NewTicker(healthProbeInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			hc.probe()
		case <-hc.done:
			return
		}
	}
}

func (hc *healthChecker) probe() {
	ctx, cancel := context.WithTimeout(hc.baseCtx, healthProbeTimeout)
	defer cancel()

	var wg sync.WaitGroup
	for name, p := range hc.providers {
		name, p := name, p
		s := hc.providerStatus[name]
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok := p.HealthCheck(ctx)
			s.set(ok)
			if hc.metrics != nil {
				hc.metrics.SetProviderHealth(name, ok)
			}
		}()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		hc.cacheStatus.set(hc.cacheReady == nil || hc.cacheReady())
	}()

	wg.Wait()
}
