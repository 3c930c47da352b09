package verify

import (
	"fmt"
	"strings"

	"github.com/shushantbk16/inference-verification-gateway/internal/model"
)

// Synthesize picks the best ModelResponse from responses and builds the
// VerificationReport that explains the choice. verify controls only the
// report's Verified flag — scoring and strategy selection always run so
// the caller can still inspect per-response quality even when verification
// was not requested.
func Synthesize(responses []model.ModelResponse, verify bool) (*model.ModelResponse, model.VerificationReport) {
	if len(responses) == 0 {
		return nil, model.VerificationReport{
			SynthesisStrategy: model.StrategyNoResponses,
			Details:           map[string]any{"error": "No responses available"},
		}
	}

	successful, total := CountSuccessfulExecutions(responses)
	consensus := CheckConsensus(responses)

	scores := make([]float64, len(responses))
	bestIdx := 0
	for i, resp := range responses {
		scores[i] = ScoreResponse(resp)
		if scores[i] > scores[bestIdx] {
			bestIdx = i
		}
	}
	bestScore := scores[bestIdx]

	strategy := selectStrategy(consensus, bestScore)

	scoreDetails := make(map[string]float64, len(responses))
	for i, resp := range responses {
		key := fmt.Sprintf("%s/%s", resp.Provider, resp.ModelName)
		scoreDetails[key] = scores[i]
	}

	selected := responses[bestIdx]
	report := model.VerificationReport{
		Verified:             verify && successful > 0,
		Consensus:            consensus,
		SuccessfulExecutions: successful,
		TotalExecutions:      total,
		SynthesisStrategy:    strategy,
		Details: map[string]any{
			"best_score":        bestScore,
			"selected_provider": selected.Provider,
			"selected_model":    selected.ModelName,
			"scores":            scoreDetails,
			"summary":           createSummary(responses, strategy, consensus, successful, total),
		},
	}

	return &selected, report
}

func selectStrategy(consensus bool, bestScore float64) model.SynthesisStrategy {
	switch {
	case consensus:
		return model.StrategyConsensus
	case bestScore >= 0.8:
		return model.StrategyHighConfidence
	case bestScore >= 0.5:
		return model.StrategyBestAvailable
	default:
		return model.StrategyFallback
	}
}

// createSummary renders a one-line human-readable recap of a synthesis
// pass, attached to VerificationReport.Details["summary"].
func createSummary(responses []model.ModelResponse, strategy model.SynthesisStrategy, consensus bool, successful, total int) string {
	parts := []string{
		fmt.Sprintf("Received %d response(s) from LLM providers", len(responses)),
	}
	if total > 0 {
		parts = append(parts, fmt.Sprintf("Executed %d code block(s): %d successful", total, successful))
	}
	if consensus {
		parts = append(parts, "Models reached consensus on output")
	}
	parts = append(parts, fmt.Sprintf("Selected response using '%s' strategy", strategy))
	return strings.Join(parts, ". ") + "."
}
