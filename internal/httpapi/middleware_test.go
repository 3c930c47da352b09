package httpapi

import (
	"strings"
	"testing"

	"github.com/valyala/fasthttp"
)

func TestRecovery_CatchesPanic(t *testing.T) {
	handler := recovery(func(ctx *fasthttp.RequestCtx) {
		panic("mock panic")
	})

	ctx := &fasthttp.RequestCtx{}
	handler(ctx)

	if ctx.Response.StatusCode() != fasthttp.StatusInternalServerError {
		t.Errorf("expected 500, got %d", ctx.Response.StatusCode())
	}
	if !strings.Contains(string(ctx.Response.Body()), "internal server error") {
		t.Errorf("expected error body to mention internal server error, got %s", ctx.Response.Body())
	}
}

func TestRequestID_GeneratesWhenMissing(t *testing.T) {
	handler := requestID(func(ctx *fasthttp.RequestCtx) {
		id, _ := ctx.UserValue("request_id").(string)
		if id == "" {
			t.Error("expected request_id to be set on the context")
		}
	})

	ctx := &fasthttp.RequestCtx{}
	handler(ctx)

	if string(ctx.Response.Header.Peek("X-Request-ID")) == "" {
		t.Error("expected X-Request-ID response header to be set")
	}
}

func TestRequestID_PreservesSuppliedValue(t *testing.T) {
	handler := requestID(func(ctx *fasthttp.RequestCtx) {})

	ctx := &fasthttp.RequestCtx{}
	ctx.Request.Header.Set("X-Request-ID", "client-supplied-id")
	handler(ctx)

	if string(ctx.Response.Header.Peek("X-Request-ID")) != "client-supplied-id" {
		t.Error("expected the client-supplied request ID to be preserved")
	}
}

func TestCorsHandler_AnswersPreflight(t *testing.T) {
	handler := corsHandler(func(ctx *fasthttp.RequestCtx) {
		t.Fatal("downstream handler should not run for an OPTIONS preflight")
	})

	ctx := &fasthttp.RequestCtx{}
	ctx.Request.Header.SetMethod(fasthttp.MethodOptions)
	handler(ctx)

	if ctx.Response.StatusCode() != fasthttp.StatusNoContent {
		t.Errorf("expected 204, got %d", ctx.Response.StatusCode())
	}
}

func TestSecurityHeaders_SetOnResponse(t *testing.T) {
	handler := securityHeaders(func(ctx *fasthttp.RequestCtx) {
		ctx.SetStatusCode(fasthttp.StatusOK)
	})

	ctx := &fasthttp.RequestCtx{}
	handler(ctx)

	if string(ctx.Response.Header.Peek("X-Frame-Options")) != "DENY" {
		t.Error("expected X-Frame-Options: DENY")
	}
}

func TestAuthRequired_NoKeyConfiguredAllowsAll(t *testing.T) {
	handler := authRequired("")(func(ctx *fasthttp.RequestCtx) {
		ctx.SetStatusCode(fasthttp.StatusOK)
	})

	ctx := &fasthttp.RequestCtx{}
	handler(ctx)

	if ctx.Response.StatusCode() != fasthttp.StatusOK {
		t.Error("expected auth to be a no-op when no gateway key is configured")
	}
}

func TestAuthRequired_MissingHeaderRejected(t *testing.T) {
	handler := authRequired("secret")(func(ctx *fasthttp.RequestCtx) {
		t.Fatal("downstream handler should not run without an API key")
	})

	ctx := &fasthttp.RequestCtx{}
	handler(ctx)

	if ctx.Response.StatusCode() != fasthttp.StatusUnauthorized {
		t.Errorf("expected 401, got %d", ctx.Response.StatusCode())
	}
}

func TestAuthRequired_CaseMismatchRejected(t *testing.T) {
	handler := authRequired("secret")(func(ctx *fasthttp.RequestCtx) {
		t.Fatal("downstream handler should not run for a case-folded key match")
	})

	ctx := &fasthttp.RequestCtx{}
	ctx.Request.Header.Set("X-API-Key", "SECRET")
	handler(ctx)

	if ctx.Response.StatusCode() != fasthttp.StatusUnauthorized {
		t.Errorf("expected 401 for a case-mismatched key, got %d", ctx.Response.StatusCode())
	}
}

func TestAuthRequired_ExactMatchAccepted(t *testing.T) {
	handler := authRequired("secret")(func(ctx *fasthttp.RequestCtx) {
		ctx.SetStatusCode(fasthttp.StatusOK)
	})

	ctx := &fasthttp.RequestCtx{}
	ctx.Request.Header.Set("X-API-Key", "secret")
	handler(ctx)

	if ctx.Response.StatusCode() != fasthttp.StatusOK {
		t.Errorf("expected 200 for exact key match, got %d", ctx.Response.StatusCode())
	}
}
