package httpapi

import (
	"crypto/subtle"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/valyala/fasthttp"

	"github.com/shushantbk16/inference-verification-gateway/internal/ratelimit"
	"github.com/shushantbk16/inference-verification-gateway/pkg/apierr"
)

// recovery catches panics in any handler and returns a 500 without crashing
// the server process. The panic value is logged at ERROR level.
func recovery(next fasthttp.RequestHandler) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		defer func() {
			if r := recover(); r != nil {
				slog.Error("handler_panic",
					slog.Any("panic", r),
					slog.String("path", string(ctx.Path())),
					slog.String("method", string(ctx.Method())),
				)
				ctx.ResetBody()
				apierr.Write(ctx, fasthttp.StatusInternalServerError, "internal server error", apierr.TypeServerError, apierr.CodeInternalError)
			}
		}()
		next(ctx)
	}
}

// requestID ensures every request carries an X-Request-ID, generating a
// UUID v4 when the client supplies none, and stashes it in the request
// context under "request_id" for handlers and InferenceResponse.RequestID.
func requestID(next fasthttp.RequestHandler) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		id := string(ctx.Request.Header.Peek("X-Request-ID"))
		if id == "" {
			id = uuid.New().String()
		}
		ctx.Response.Header.Set("X-Request-ID", id)
		ctx.SetUserValue("request_id", id)
		next(ctx)
	}
}

func requestIDFromCtx(ctx *fasthttp.RequestCtx) string {
	if v, ok := ctx.UserValue("request_id").(string); ok {
		return v
	}
	return ""
}

// timing records total handler duration in the X-Response-Time header and
// reports it, with the in-flight count, to reg.
func timing(reg metricsRecorder) func(fasthttp.RequestHandler) fasthttp.RequestHandler {
	return func(next fasthttp.RequestHandler) fasthttp.RequestHandler {
		return func(ctx *fasthttp.RequestCtx) {
			start := time.Now()
			reg.IncInFlight()
			next(ctx)
			reg.DecInFlight()
			dur := time.Since(start)
			ctx.Response.Header.Set("X-Response-Time", dur.String())
			reg.ObserveHTTP(string(ctx.Path()), ctx.Response.StatusCode(), dur)
		}
	}
}

// securityHeaders adds HTTP security headers recommended by OWASP to every
// response.
func securityHeaders(next fasthttp.RequestHandler) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		next(ctx)
		h := &ctx.Response.Header
		h.Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("X-XSS-Protection", "0")
		h.Set("Content-Security-Policy", "default-src 'none'")
		h.Set("Referrer-Policy", "no-referrer")
		h.Set("Permissions-Policy", "geolocation=(), camera=(), microphone=()")
	}
}

// corsHandler returns a CORS middleware open to all origins — this gateway
// has no browser-session notion of its own to scope an allowlist against.
func corsHandler(next fasthttp.RequestHandler) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		ctx.Response.Header.Set("Access-Control-Allow-Origin", "*")
		ctx.Response.Header.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		ctx.Response.Header.Set("Access-Control-Allow-Headers", "X-API-Key, Content-Type, X-Request-ID")

		if string(ctx.Method()) == fasthttp.MethodOptions {
			ctx.SetStatusCode(fasthttp.StatusNoContent)
			return
		}
		next(ctx)
	}
}

// authRequired compares the X-API-Key header against the configured
// gateway key. A gatewayKey of "" disables auth entirely, for local
// development.
func authRequired(gatewayKey string) func(fasthttp.RequestHandler) fasthttp.RequestHandler {
	return func(next fasthttp.RequestHandler) fasthttp.RequestHandler {
		return func(ctx *fasthttp.RequestCtx) {
			if gatewayKey == "" {
				next(ctx)
				return
			}
			supplied := ctx.Request.Header.Peek("X-API-Key")
			if len(supplied) == 0 || subtle.ConstantTimeCompare(supplied, []byte(gatewayKey)) != 1 {
				apierr.WriteUnauthorized(ctx)
				return
			}
			next(ctx)
		}
	}
}

// gatewayRateLimit gates inbound requests against the gateway-wide RPM
// limit, independent of the per-provider TokenBucket the orchestrator
// applies further down the pipeline. A nil limiter disables the check.
func gatewayRateLimit(limiter *ratelimit.RPMLimiter) func(fasthttp.RequestHandler) fasthttp.RequestHandler {
	return func(next fasthttp.RequestHandler) fasthttp.RequestHandler {
		return func(ctx *fasthttp.RequestCtx) {
			if limiter == nil {
				next(ctx)
				return
			}
			allowed, err := limiter.Allow(ctx)
			if err != nil || !allowed {
				apierr.WriteRateLimit(ctx)
				return
			}
			next(ctx)
		}
	}
}

// applyMiddleware wraps h with the given middleware chain. The first
// middleware in the slice becomes the outermost wrapper:
//
//	applyMiddleware(h, mw1, mw2) → mw1(mw2(h))
func applyMiddleware(h fasthttp.RequestHandler, mws ...func(fasthttp.RequestHandler) fasthttp.RequestHandler) fasthttp.RequestHandler {
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return h
}
