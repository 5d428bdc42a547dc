// Package answer decides whether the pipeline has enough grounding to
// answer a query, and builds the clarification text when it doesn't.
package answer

import (
	"fmt"

	"github.com/bbiangul/ragcore/rerank"
)

// Thresholds configures the abstain gate. Comprehensive-profile queries
// use a lower MinSimilarity (0.2 vs. the default 0.3) since that profile
// already retrieves and reranks a much larger candidate pool.
type Thresholds struct {
	MinSimilarity float64
	MinResults    int
	MinHybrid     float64
}

// DefaultThresholds is used by every retrieval profile except comprehensive.
var DefaultThresholds = Thresholds{MinSimilarity: 0.3, MinResults: 1, MinHybrid: 0.2}

// ComprehensiveThresholds is used by the comprehensive retrieval profile.
var ComprehensiveThresholds = Thresholds{MinSimilarity: 0.2, MinResults: 1, MinHybrid: 0.2}

// Decision is the outcome of the abstain gate.
type Decision struct {
	Abstain bool
	Reason  string
}

// ShouldAbstain decides whether to answer from ranked results. It checks,
// in order: emptiness, a minimum result count, mean+max composite score
// against MinSimilarity (with max given a 1.5x allowance), and mean fused
// score against MinHybrid.
func ShouldAbstain(ranked []rerank.Ranked, t Thresholds) Decision {
	if len(ranked) == 0 {
		return Decision{Abstain: true, Reason: "No results found in knowledge base"}
	}
	if len(ranked) < t.MinResults {
		return Decision{Abstain: true, Reason: fmt.Sprintf("Only %d result(s) found, insufficient for confident answer", len(ranked))}
	}

	var sumScore, maxScore float64
	for _, r := range ranked {
		score := r.FinalScore
		if score == 0 {
			score = r.FusedScore
		}
		if score > maxScore {
			maxScore = score
		}
		sumScore += score
	}
	avgScore := sumScore / float64(len(ranked))

	if avgScore < t.MinSimilarity && maxScore < t.MinSimilarity*1.5 {
		return Decision{Abstain: true, Reason: fmt.Sprintf("Low relevance scores (avg: %.3f, max: %.3f)", avgScore, maxScore)}
	}

	var sumFused float64
	var fusedCount int
	for _, r := range ranked {
		if r.FusedScore > 0 {
			sumFused += r.FusedScore
			fusedCount++
		}
	}
	if fusedCount > 0 {
		avgFused := sumFused / float64(fusedCount)
		if avgFused < t.MinHybrid {
			return Decision{Abstain: true, Reason: fmt.Sprintf("Low hybrid relevance score (avg: %.3f)", avgFused)}
		}
	}

	return Decision{}
}

// ClarificationPrompt builds the user-facing message returned when the
// gate abstains.
func ClarificationPrompt(query, reason string) string {
	return fmt.Sprintf(
		"I found limited information for your question: '%s'. Reason: %s. Could you:\n"+
			"1. Rephrase your question with more specific terms?\n"+
			"2. Specify the product, version, or document type?\n"+
			"3. Try breaking down your question into smaller parts?",
		query, reason,
	)
}
