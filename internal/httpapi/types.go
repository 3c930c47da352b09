package httpapi

import (
	"time"

	"github.com/shushantbk16/inference-verification-gateway/internal/model"
)

// inboundInferenceRequest is the wire shape of POST /api/v1/inference.
type inboundInferenceRequest struct {
	Prompt      string  `json:"prompt"`
	ExecuteCode bool    `json:"execute_code"`
	Verify      bool    `json:"verify"`
	Temperature float64 `json:"temperature"`
	MaxTokens   int     `json:"max_tokens"`

	TimeoutSeconds  int     `json:"timeout_seconds,omitempty"`
	MemoryLimit     string  `json:"memory_limit,omitempty"`
	CPUFraction     float64 `json:"cpu_fraction,omitempty"`
	NetworkDisabled *bool   `json:"network_disabled,omitempty"`
}

func (r inboundInferenceRequest) toDomain(defaults model.ExecutionConfig) model.InferenceRequest {
	exec := defaults
	if r.TimeoutSeconds > 0 {
		exec.TimeoutSeconds = r.TimeoutSeconds
	}
	if r.MemoryLimit != "" {
		exec.MemoryLimit = r.MemoryLimit
	}
	if r.CPUFraction > 0 {
		exec.CPUFraction = r.CPUFraction
	}
	if r.NetworkDisabled != nil {
		exec.NetworkDisabled = *r.NetworkDisabled
	}

	temperature := r.Temperature
	if temperature == 0 {
		temperature = 0.7
	}
	maxTokens := r.MaxTokens
	if maxTokens == 0 {
		maxTokens = 2048
	}

	return model.InferenceRequest{
		Prompt:      r.Prompt,
		ExecuteCode: r.ExecuteCode,
		Verify:      r.Verify,
		Temperature: temperature,
		MaxTokens:   maxTokens,
		Execution:   exec,
	}
}

type outboundCodeBlock struct {
	Language  model.Language `json:"language"`
	Code      string         `json:"code"`
	LineStart int            `json:"line_start"`
	LineEnd   int            `json:"line_end"`
}

type outboundExecutionResult struct {
	Success        bool    `json:"success"`
	ExitCode       int     `json:"exit_code"`
	Stdout         string  `json:"stdout"`
	Stderr         string  `json:"stderr"`
	ExecutionTimeS float64 `json:"execution_time_s"`
	Error          string  `json:"error,omitempty"`
	Healed         bool    `json:"healed"`
}

type outboundModelResponse struct {
	Provider         string                     `json:"provider"`
	Model            string                     `json:"model"`
	Text             string                     `json:"text,omitempty"`
	CodeBlocks       []outboundCodeBlock        `json:"code_blocks,omitempty"`
	ExecutionResults []outboundExecutionResult  `json:"execution_results,omitempty"`
	LatencyS         float64                    `json:"latency_s"`
	Timestamp        time.Time                  `json:"timestamp"`
	Error            string                     `json:"error,omitempty"`
}

func toOutboundModelResponse(r model.ModelResponse) outboundModelResponse {
	out := outboundModelResponse{
		Provider:  r.Provider,
		Model:     r.ModelName,
		Text:      r.Text,
		LatencyS:  r.LatencyS,
		Timestamp: r.Timestamp,
		Error:     r.Error,
	}
	for _, b := range r.CodeBlocks {
		out.CodeBlocks = append(out.CodeBlocks, outboundCodeBlock{
			Language:  b.Language,
			Code:      b.Code,
			LineStart: b.LineStart,
			LineEnd:   b.LineEnd,
		})
	}
	for _, e := range r.ExecutionResults {
		out.ExecutionResults = append(out.ExecutionResults, outboundExecutionResult{
			Success:        e.Success,
			ExitCode:       e.ExitCode,
			Stdout:         e.Stdout,
			Stderr:         e.Stderr,
			ExecutionTimeS: e.ExecutionTimeS,
			Error:          e.Error,
			Healed:         e.Healed,
		})
	}
	return out
}

type outboundVerificationReport struct {
	Verified             bool           `json:"verified"`
	Consensus            bool           `json:"consensus"`
	SuccessfulExecutions int            `json:"successful_executions"`
	TotalExecutions      int            `json:"total_executions"`
	SynthesisStrategy    string         `json:"synthesis_strategy"`
	Details              map[string]any `json:"details,omitempty"`
}

func toOutboundReport(r model.VerificationReport) outboundVerificationReport {
	return outboundVerificationReport{
		Verified:             r.Verified,
		Consensus:            r.Consensus,
		SuccessfulExecutions: r.SuccessfulExecutions,
		TotalExecutions:      r.TotalExecutions,
		SynthesisStrategy:    string(r.SynthesisStrategy),
		Details:              r.Details,
	}
}

type outboundInferenceResponse struct {
	RequestID        string                     `json:"request_id"`
	ModelResponses   []outboundModelResponse    `json:"model_responses"`
	Verification     *outboundVerificationReport `json:"verification,omitempty"`
	SelectedResponse *outboundModelResponse     `json:"selected_response,omitempty"`
	TotalLatencyS    float64                    `json:"total_latency_s"`
	Timestamp        time.Time                  `json:"timestamp"`
}

func toOutboundInferenceResponse(resp model.InferenceResponse) outboundInferenceResponse {
	out := outboundInferenceResponse{
		RequestID:     resp.RequestID,
		TotalLatencyS: resp.TotalLatencyS,
		Timestamp:     resp.Timestamp,
	}
	for _, r := range resp.ModelResponses {
		out.ModelResponses = append(out.ModelResponses, toOutboundModelResponse(r))
	}
	if resp.Verification != nil {
		rep := toOutboundReport(*resp.Verification)
		out.Verification = &rep
	}
	if resp.SelectedResponse != nil {
		sel := toOutboundModelResponse(*resp.SelectedResponse)
		out.SelectedResponse = &sel
	}
	return out
}
