package httpapi

import (
	"github.com/fasthttp/router"
	"github.com/valyala/fasthttp"
)

func (s *Server) router() fasthttp.RequestHandler {
	r := router.New()

	auth := authRequired(s.gatewayAPIKey)

	r.POST("/api/v1/inference", auth(s.handleInference))
	r.GET("/api/v1/health", s.handleHealth)
	r.GET("/api/v1/models", s.handleModels)
	r.GET("/api/v1/cache/stats", s.handleCacheStats)
	r.POST("/api/v1/cache/clear", auth(s.handleCacheClear))

	if s.metrics != nil {
		r.GET("/metrics", s.metrics.Handler())
	}

	return r.Handler
}
