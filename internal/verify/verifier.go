// Package verify scores individual ModelResponses, detects cross-provider
// consensus, and synthesizes a single selected response plus a
// VerificationReport for the HTTP layer to return.
package verify

import (
	"strings"

	"github.com/shushantbk16/inference-verification-gateway/internal/model"
)

const (
	noExecutionTextScore = 0.5
	maxLatencyBonus      = 0.2
	latencyBonusDivisor  = 100.0
)

// ScoreResponse implements the response scoring rule:
//
//	error          -> 0
//	no executions  -> 0.5 if text is non-empty, else 0
//	otherwise      -> min(1, successful/total + max(0, 0.2 - latency/100))
func ScoreResponse(resp model.ModelResponse) float64 {
	if resp.Error != "" {
		return 0
	}
	if len(resp.ExecutionResults) == 0 {
		if resp.Text != "" {
			return noExecutionTextScore
		}
		return 0
	}

	successful, total := countExecutions(resp.ExecutionResults)
	base := float64(successful) / float64(total)
	latencyBonus := maxLatencyBonus - resp.LatencyS/latencyBonusDivisor
	if latencyBonus < 0 {
		latencyBonus = 0
	}

	score := base + latencyBonus
	if score > 1.0 {
		score = 1.0
	}
	return score
}

func countExecutions(results []model.ExecutionResult) (successful, total int) {
	for _, r := range results {
		total++
		if r.Success && r.ExitCode == 0 {
			successful++
		}
	}
	return successful, total
}

// CountSuccessfulExecutions sums successful/total executions across every
// response, for the VerificationReport.
func CountSuccessfulExecutions(responses []model.ModelResponse) (successful, total int) {
	for _, resp := range responses {
		s, t := countExecutions(resp.ExecutionResults)
		successful += s
		total += t
	}
	return successful, total
}

// CheckConsensus reports whether there are at least two successful
// executions (across all responses) and all their outputs are string-equal
// after trimming. Order-independent by construction: equality of a set of
// strings to their first element does not depend on iteration order.
func CheckConsensus(responses []model.ModelResponse) bool {
	var outputs []string
	for _, resp := range responses {
		for _, r := range resp.ExecutionResults {
			if r.Success && r.ExitCode == 0 {
				outputs = append(outputs, strings.TrimSpace(r.Stdout))
			}
		}
	}
	if len(outputs) < 2 {
		return false
	}
	first := outputs[0]
	for _, o := range outputs[1:] {
		if o != first {
			return false
		}
	}
	return true
}
