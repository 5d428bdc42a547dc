// Package rerank refines fused candidates with a cross-encoder-style HTTP
// scorer (when available) or a rule-based fallback, then combines that
// relevance signal with freshness, quality, and feedback into one
// composite score.
package rerank

import (
	"context"
	"log/slog"
	"strings"

	"github.com/bbiangul/ragcore/rank"
)

const maxCrossEncoderChars = 512

// Weights controls how much each signal contributes to a candidate's
// composite score. The defaults mirror the reference advanced reranker.
type Weights struct {
	Fused     float64
	Rerank    float64
	Freshness float64
	Quality   float64
	Feedback  float64
}

// DefaultWeights matches the reference AdvancedReranker.weights.
var DefaultWeights = Weights{
	Fused:     0.4,
	Rerank:    0.3,
	Freshness: 0.1,
	Quality:   0.1,
	Feedback:  0.1,
}

// ScoreFunc scores query/document pairs, e.g. via an HTTP cross-encoder
// endpoint. Returned scores are typically in roughly [-1, 1] and are
// clamped into [0, 1] by Rerank before weighting.
type ScoreFunc func(ctx context.Context, query string, docs []string) ([]float64, error)

// Ranked is a fused candidate enriched with its composite rerank score and
// component breakdown.
type Ranked struct {
	rank.Fused
	RerankScore    float64
	FreshnessScore float64
	QualityScore   float64
	FeedbackScore  float64
	FinalScore     float64
}

// Reranker combines a relevance scorer with freshness/quality/feedback
// signals into one composite ranking.
type Reranker struct {
	score   ScoreFunc
	weights Weights
}

// New builds a Reranker. score may be nil, in which case rule-based
// scoring is always used.
func New(score ScoreFunc, weights Weights) *Reranker {
	if weights == (Weights{}) {
		weights = DefaultWeights
	}
	return &Reranker{score: score, weights: weights}
}

// Rerank scores every fused candidate against query and returns them
// ordered by composite FinalScore, descending.
func (r *Reranker) Rerank(ctx context.Context, query string, fused []rank.Fused) []Ranked {
	if len(fused) == 0 {
		return nil
	}

	relevance := r.relevanceScores(ctx, query, fused)

	out := make([]Ranked, len(fused))
	for i, f := range fused {
		out[i] = Ranked{
			Fused:          f,
			RerankScore:    relevance[i],
			FreshnessScore: calculateFreshness(),
			QualityScore:   calculateQuality(f.Content),
			FeedbackScore:  calculateFeedback(),
		}
		out[i].FinalScore = r.weights.Fused*f.FusedScore +
			r.weights.Rerank*out[i].RerankScore +
			r.weights.Freshness*out[i].FreshnessScore +
			r.weights.Quality*out[i].QualityScore +
			r.weights.Feedback*out[i].FeedbackScore
	}

	sortByFinalScore(out)
	return out
}

// relevanceScores tries the cross-encoder ScoreFunc first, falling back to
// rule-based scoring if it is unset or errors.
func (r *Reranker) relevanceScores(ctx context.Context, query string, fused []rank.Fused) []float64 {
	if r.score != nil {
		docs := make([]string, len(fused))
		for i, f := range fused {
			docs[i] = truncate(f.Content, maxCrossEncoderChars)
		}
		raw, err := r.score(ctx, query, docs)
		if err == nil && len(raw) == len(fused) {
			out := make([]float64, len(raw))
			for i, s := range raw {
				out[i] = clampUnitInterval(s)
			}
			return out
		}
		slog.Warn("rerank: cross-encoder scoring failed, falling back to rule-based", "error", err)
	}

	return ruleBasedScores(query, fused)
}

// clampUnitInterval folds a roughly [-1, 1] cross-encoder score into [0, 1].
func clampUnitInterval(s float64) float64 {
	switch {
	case s > 1:
		return 1.0
	case s < -1:
		return 0.0
	default:
		return (s + 1) / 2
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

func sortByFinalScore(items []Ranked) {
	for i := 1; i < len(items); i++ {
		for j := i; j > 0 && items[j].FinalScore > items[j-1].FinalScore; j-- {
			items[j], items[j-1] = items[j-1], items[j]
		}
	}
}

func calculateFreshness() float64 { return 0.5 }
func calculateFeedback() float64  { return 0.5 }

// calculateQuality scores content on length, structure, technical-term
// presence, and sentence count, mirroring the reference heuristic.
func calculateQuality(content string) float64 {
	score := 0.5
	lower := strings.ToLower(content)

	if n := len(content); n >= 100 && n <= 1000 {
		score += 0.2
	}
	if containsAny(lower, "step", "procedure", "process") {
		score += 0.1
	}
	if containsAny(lower, "configure", "install", "setup") {
		score += 0.1
	}
	if strings.Count(content, ".") > 2 {
		score += 0.1
	}

	if score > 1.0 {
		return 1.0
	}
	return score
}

func containsAny(text string, candidates ...string) bool {
	for _, c := range candidates {
		if strings.Contains(text, c) {
			return true
		}
	}
	return false
}
