package httpapi

import (
	"encoding/json"
	"time"

	"github.com/valyala/fasthttp"

	"github.com/shushantbk16/inference-verification-gateway/internal/codeextract"
	"github.com/shushantbk16/inference-verification-gateway/internal/logger"
	"github.com/shushantbk16/inference-verification-gateway/internal/model"
	"github.com/shushantbk16/inference-verification-gateway/internal/verify"
	"github.com/shushantbk16/inference-verification-gateway/pkg/apierr"
)

func writeJSON(ctx *fasthttp.RequestCtx, status int, v any) {
	ctx.SetStatusCode(status)
	ctx.SetContentType("application/json")
	data, err := json.Marshal(v)
	if err != nil {
		apierr.Write(ctx, fasthttp.StatusInternalServerError, "failed to encode response", apierr.TypeServerError, apierr.CodeInternalError)
		return
	}
	ctx.SetBody(data)
}

// handleInference is the gateway's main entrypoint: fan the prompt out to
// every provider, execute any code each one returned, heal failures once,
// then synthesize a single selected answer plus a verification report.
func (s *Server) handleInference(ctx *fasthttp.RequestCtx) {
	var in inboundInferenceRequest
	if err := json.Unmarshal(ctx.PostBody(), &in); err != nil {
		apierr.Write(ctx, fasthttp.StatusBadRequest, "invalid request body", apierr.TypeInvalidRequest, apierr.CodeInvalidRequest)
		return
	}
	if in.Prompt == "" {
		apierr.Write(ctx, fasthttp.StatusBadRequest, "prompt must not be empty", apierr.TypeInvalidRequest, apierr.CodeInvalidRequest)
		return
	}

	req := in.toDomain(s.defaultExec)
	start := time.Now()

	responses := s.orch.RunInference(ctx, req.Prompt, req.Temperature, req.MaxTokens)

	if req.ExecuteCode {
		for i := range responses {
			s.runCodeForResponse(ctx, &responses[i], req.Execution)
		}
	}

	haveUsable := false
	for _, r := range responses {
		if r.Error == "" {
			haveUsable = true
			break
		}
	}
	if !haveUsable {
		apierr.WriteNoProvidersAvailable(ctx)
		return
	}

	selected, report := verify.Synthesize(responses, req.Verify)

	out := model.InferenceResponse{
		RequestID:        requestIDFromCtx(ctx),
		ModelResponses:   responses,
		Verification:     &report,
		SelectedResponse: selected,
		TotalLatencyS:    time.Since(start).Seconds(),
		Timestamp:        start,
	}

	if s.metrics != nil {
		s.metrics.RecordVerificationStrategy(string(report.SynthesisStrategy))
	}

	if s.reqLogger != nil {
		provs := make([]string, len(responses))
		for i, r := range responses {
			provs[i] = r.Provider
		}
		s.reqLogger.Log(logger.RequestLog{
			RequestID:      out.RequestID,
			Providers:      provs,
			Strategy:       string(report.SynthesisStrategy),
			TotalLatencyMs: time.Since(start).Milliseconds(),
			Status:         fasthttp.StatusOK,
			CreatedAt:      start,
		})
	}

	writeJSON(ctx, fasthttp.StatusOK, toOutboundInferenceResponse(out))
}

// runCodeForResponse extracts code blocks from resp.Text, executes the
// executable ones in the sandbox, attempts one healing pass per failure,
// and writes the results back onto resp in place.
func (s *Server) runCodeForResponse(ctx *fasthttp.RequestCtx, resp *model.ModelResponse, execCfg model.ExecutionConfig) {
	if resp.Error != "" || resp.Text == "" {
		return
	}

	blocks := codeextract.FilterExecutable(codeextract.Extract(resp.Text))
	if len(blocks) == 0 {
		return
	}

	resp.CodeBlocks = blocks
	resp.ExecutionResults = make([]model.ExecutionResult, len(blocks))

	for i, block := range blocks {
		if ok, reason := codeextract.ValidateSyntax(block); !ok {
			resp.ExecutionResults[i] = model.ExecutionResult{Success: false, ExitCode: -1, Stderr: reason}
			continue
		}
		resp.ExecutionResults[i] = s.sandbox.Execute(ctx, block, execCfg)
		if s.metrics != nil {
			s.metrics.ObserveSandboxExecution(string(block.Language), s.sandbox.BackendName(), resp.ExecutionResults[i].Success, durationFromSeconds(resp.ExecutionResults[i].ExecutionTimeS))
		}
	}

	if s.healer == nil {
		return
	}
	provider, ok := s.providers[resp.Provider]
	if !ok {
		return
	}
	s.healer.Heal(ctx, resp, provider, execCfg)
}

func durationFromSeconds(sec float64) time.Duration {
	return time.Duration(sec * float64(time.Second))
}

func (s *Server) handleHealth(ctx *fasthttp.RequestCtx) {
	snap := s.health.snapshot()
	models := make(map[string]string, len(s.providerInfo))
	for name, info := range s.providerInfo {
		models[name] = info.Model
	}
	writeJSON(ctx, fasthttp.StatusOK, struct {
		Status    string            `json:"status"`
		Providers map[string]bool   `json:"providers"`
		Models    map[string]string `json:"models"`
	}{Status: snap.Status, Providers: snap.Providers, Models: models})

	if snap.Status != "ok" {
		ctx.SetStatusCode(fasthttp.StatusServiceUnavailable)
	}
}

func (s *Server) handleModels(ctx *fasthttp.RequestCtx) {
	models := make(map[string]string, len(s.providerInfo))
	for name, info := range s.providerInfo {
		models[name] = info.Model
	}
	writeJSON(ctx, fasthttp.StatusOK, struct {
		Models map[string]string `json:"models"`
	}{Models: models})
}

func (s *Server) handleCacheStats(ctx *fasthttp.RequestCtx) {
	if s.cache == nil {
		writeJSON(ctx, fasthttp.StatusOK, struct {
			Enabled bool `json:"enabled"`
		}{Enabled: false})
		return
	}
	writeJSON(ctx, fasthttp.StatusOK, s.cache.Stats(ctx))
}

func (s *Server) handleCacheClear(ctx *fasthttp.RequestCtx) {
	if s.cache == nil {
		writeJSON(ctx, fasthttp.StatusOK, struct {
			Cleared bool `json:"cleared"`
		}{Cleared: false})
		return
	}
	if err := s.cache.Clear(ctx); err != nil {
		apierr.Write(ctx, fasthttp.StatusInternalServerError, "failed to clear cache", apierr.TypeServerError, apierr.CodeInternalError)
		return
	}
	writeJSON(ctx, fasthttp.StatusOK, struct {
		Cleared bool `json:"cleared"`
	}{Cleared: true})
}
