// Package model holds the data types shared across the inference gateway:
// requests, provider responses, sandbox execution results and the final
// verification report. Types here are intentionally transport-agnostic —
// the HTTP layer marshals them, nothing else should need to.
package model

import "time"

// Language is a normalized programming language tag for an extracted code
// block. Unrecognized fence tags normalize to LangUnknown.
type Language string

const (
	LangPython     Language = "python"
	LangJavaScript Language = "javascript"
	LangTypeScript Language = "typescript"
	LangBash       Language = "bash"
	LangUnknown    Language = "unknown"
)

// ExecutableLanguages is the set of languages the sandbox will actually run.
// Blocks in any other language are dropped from the inference response and
// never executed.
var ExecutableLanguages = map[Language]bool{
	LangPython:     true,
	LangJavaScript: true,
	LangBash:       true,
}

// ExecutionConfig bounds a single sandbox run.
type ExecutionConfig struct {
	TimeoutSeconds    int
	MemoryLimit       string // e.g. "256m", passed to the container backend verbatim.
	CPUFraction       float64
	NetworkDisabled   bool
}

// CodeBlock is one fenced code block extracted from model output.
type CodeBlock struct {
	Language  Language
	Code      string
	LineStart int
	LineEnd   int
}

// ExecutionResult is the outcome of running one CodeBlock in the sandbox.
// Success is true if and only if ExitCode == 0.
type ExecutionResult struct {
	Success        bool
	ExitCode       int
	Stdout         string
	Stderr         string
	ExecutionTimeS float64
	Error          string

	// Healed is set once a failing block has gone through the healer, so a
	// later verification pass never attempts a second repair of it.
	Healed bool
}

// ModelResponse is one provider's answer to an InferenceRequest.
//
// Invariant: Error != "" implies Text == "", CodeBlocks == nil and
// ExecutionResults == nil — a failed provider call carries no partial
// output. ExecutionResults is always index-aligned with CodeBlocks and
// never longer than it.
type ModelResponse struct {
	Provider         string
	ModelName        string
	Text             string
	CodeBlocks       []CodeBlock
	ExecutionResults []ExecutionResult
	LatencyS         float64
	Timestamp        time.Time
	Error            string
}

// SynthesisStrategy names how the verifier picked (or failed to pick) a
// winning response.
type SynthesisStrategy string

const (
	StrategyConsensus      SynthesisStrategy = "consensus"
	StrategyHighConfidence SynthesisStrategy = "high_confidence"
	StrategyBestAvailable  SynthesisStrategy = "best_available"
	StrategyFallback       SynthesisStrategy = "fallback"
	StrategyNoResponses    SynthesisStrategy = "no_responses"
)

// VerificationReport summarizes how a set of ModelResponses was scored and
// reconciled into a single answer.
type VerificationReport struct {
	Verified             bool
	Consensus            bool
	SuccessfulExecutions int
	TotalExecutions      int
	SynthesisStrategy    SynthesisStrategy
	Details              map[string]any
}

// InferenceRequest is the inbound request body for POST /api/v1/inference.
type InferenceRequest struct {
	Prompt      string
	ExecuteCode bool
	Verify      bool
	Temperature float64
	MaxTokens   int
	Execution   ExecutionConfig
}

// InferenceResponse is the outbound body for POST /api/v1/inference.
type InferenceResponse struct {
	RequestID        string
	ModelResponses   []ModelResponse
	Verification     *VerificationReport
	SelectedResponse *ModelResponse
	TotalLatencyS    float64
	Timestamp        time.Time
}
