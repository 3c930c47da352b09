// Package healer implements the reflexion self-repair loop: when a sandbox
// execution fails, the same provider that produced the code is asked to
// fix it using the error text, and the fix is re-executed once.
package healer

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/shushantbk16/inference-verification-gateway/internal/codeextract"
	"github.com/shushantbk16/inference-verification-gateway/internal/model"
	"github.com/shushantbk16/inference-verification-gateway/internal/providers"
	"github.com/shushantbk16/inference-verification-gateway/internal/sandbox"
)

const (
	healingTemperature = 0.2
	healingMaxTokens    = 2048
)

// Healer repairs failing code blocks by feeding their error back to the
// provider that generated them.
type Healer struct {
	sandbox *sandbox.Executor
	log     *slog.Logger
}

// New creates a Healer that re-executes fixes through sandboxExec.
func New(sandboxExec *sandbox.Executor, log *slog.Logger) *Healer {
	if log == nil {
		log = slog.Default()
	}
	return &Healer{sandbox: sandboxExec, log: log}
}

// Heal walks resp.ExecutionResults and attempts exactly one repair pass for
// every index that failed with non-empty stderr and has not already been
// healed. prov is the provider that produced resp — healing always asks
// the same model that wrote the broken code to fix it. execCfg bounds the
// re-execution the same way the original run was bounded.
//
// Healing never mutates resp on failure to produce a candidate fix: the
// original CodeBlock/ExecutionResult pair is left untouched so the
// synthesizer still sees the real failure.
func (h *Healer) Heal(ctx context.Context, resp *model.ModelResponse, prov providers.Provider, execCfg model.ExecutionConfig) {
	for i := range resp.ExecutionResults {
		result := resp.ExecutionResults[i]
		if result.Success || result.Stderr == "" || result.Healed {
			continue
		}
		if i >= len(resp.CodeBlocks) {
			continue
		}

		fixed, err := h.attemptFix(ctx, prov, resp.CodeBlocks[i], result.Stderr)
		if err != nil {
			h.log.WarnContext(ctx, "healing_failed",
				slog.String("provider", resp.Provider),
				slog.String("error", err.Error()),
			)
			continue
		}
		if fixed == nil {
			h.log.WarnContext(ctx, "healing_no_candidate", slog.String("provider", resp.Provider))
			continue
		}

		rerun := h.sandbox.Execute(ctx, *fixed, execCfg)
		rerun.Healed = true

		resp.CodeBlocks[i] = *fixed
		resp.ExecutionResults[i] = rerun
	}
}

// attemptFix asks prov to repair code given the error text, and returns the
// first executable code block in its reply. A nil, nil return means the
// model produced no usable fix candidate — not an error, just nothing to
// apply.
func (h *Healer) attemptFix(ctx context.Context, prov providers.Provider, block model.CodeBlock, stderr string) (*model.CodeBlock, error) {
	prompt := fmt.Sprintf(
		"The following code failed to execute with an error.\n"+
			"Please fix the code to resolve the error. Return ONLY the fixed code.\n\n"+
			"ERROR:\n%s\n\n"+
			"BROKEN CODE:\n```%s\n%s\n```\n\n"+
			"FIXED CODE:",
		stderr, block.Language, block.Code,
	)

	result, err := prov.GenerateCompletion(ctx, providers.CompletionRequest{
		Prompt:      prompt,
		Temperature: healingTemperature,
		MaxTokens:   healingMaxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("healer: generate fix: %w", err)
	}
	if result.Text == "" {
		return nil, nil
	}

	blocks := codeextract.FilterExecutable(codeextract.Extract(result.Text))
	if len(blocks) == 0 {
		return nil, nil
	}
	return &blocks[0], nil
}
