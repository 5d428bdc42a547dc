package rerank

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/bbiangul/ragcore/rank"
	"github.com/bbiangul/ragcore/retrieval"
)

func fusedCand(id int64, content string, score float64) rank.Fused {
	return rank.Fused{
		Candidate:  retrieval.Candidate{ChunkID: id, SourceID: 1, SourceName: "doc.pdf", Content: content},
		FusedScore: score,
	}
}

func TestRerankUsesCrossEncoderWhenAvailable(t *testing.T) {
	score := func(ctx context.Context, query string, docs []string) ([]float64, error) {
		return []float64{1.0, -1.0}, nil
	}
	r := New(score, DefaultWeights)
	ranked := r.Rerank(context.Background(), "query", []rank.Fused{
		fusedCand(1, "a relevant passage with some structure. and more.", 0.5),
		fusedCand(2, "irrelevant passage", 0.5),
	})
	if ranked[0].ChunkID != 1 {
		t.Errorf("expected chunk 1 (cross-encoder score 1.0) to rank first, got %d", ranked[0].ChunkID)
	}
}

func TestRerankFallsBackOnScoreFuncError(t *testing.T) {
	score := func(ctx context.Context, query string, docs []string) ([]float64, error) {
		return nil, errors.New("unavailable")
	}
	r := New(score, DefaultWeights)
	ranked := r.Rerank(context.Background(), "install the pump", []rank.Fused{
		fusedCand(1, "steps to install the pump are as follows", 0.5),
		fusedCand(2, "unrelated content about something else entirely", 0.5),
	})
	if len(ranked) != 2 {
		t.Fatalf("expected 2 ranked results, got %d", len(ranked))
	}
}

func TestRerankNilScoreFuncUsesRuleBased(t *testing.T) {
	r := New(nil, DefaultWeights)
	ranked := r.Rerank(context.Background(), "install pump", []rank.Fused{
		fusedCand(1, "install pump instructions here", 0.5),
		fusedCand(2, "totally different text", 0.5),
	})
	if ranked[0].ChunkID != 1 {
		t.Errorf("expected exact-term match to rank first, got chunk %d", ranked[0].ChunkID)
	}
}

func TestRerankEmptyInputReturnsNil(t *testing.T) {
	r := New(nil, DefaultWeights)
	if got := r.Rerank(context.Background(), "q", nil); got != nil {
		t.Errorf("expected nil for empty input, got %v", got)
	}
}

func TestClampUnitInterval(t *testing.T) {
	cases := []struct{ in, want float64 }{
		{2.0, 1.0}, {-2.0, 0.0}, {0.0, 0.5}, {1.0, 1.0}, {-1.0, 0.0},
	}
	for _, c := range cases {
		if got := clampUnitInterval(c.in); got != c.want {
			t.Errorf("clampUnitInterval(%v) = %v, want %v", c.in, got, c.want)
		}
	}
}

func TestCalculateQualityRewardsStructureAndLength(t *testing.T) {
	short := calculateQuality("too short")
	structured := calculateQuality(strings.Repeat("configure the step process setup. ", 5))
	if structured <= short {
		t.Errorf("expected structured/technical content to score higher: structured=%v short=%v", structured, short)
	}
}

func rankedCand(id int64, content string, finalScore float64) Ranked {
	return Ranked{
		Fused:      fusedCand(id, content, finalScore),
		FinalScore: finalScore,
	}
}

func TestSelectMMRReturnsAllWhenFewerThanTopK(t *testing.T) {
	ranked := []Ranked{rankedCand(1, "a", 1.0)}
	got := SelectMMR(ranked, 5)
	if len(got) != 1 {
		t.Errorf("expected passthrough of single candidate, got %d", len(got))
	}
}

func TestSelectMMRPrefersDiverseOverRedundant(t *testing.T) {
	ranked := []Ranked{
		rankedCand(1, "alpha beta gamma", 1.0),
		rankedCand(2, "alpha beta gamma", 0.99), // near-identical to #1
		rankedCand(3, "completely different topic entirely", 0.5),
	}
	got := SelectMMR(ranked, 2)
	if len(got) != 2 {
		t.Fatalf("expected 2 selected, got %d", len(got))
	}
	if got[1].ChunkID != 3 {
		t.Errorf("expected diverse candidate 3 to be picked second, got chunk %d", got[1].ChunkID)
	}
}

func TestSelectMMRUsesFinalScoreNotFusedScore(t *testing.T) {
	// Candidate 2 has a lower FusedScore but a higher FinalScore than
	// candidate 1 — MMR must prefer it on relevance grounds because the
	// composite post-rerank score is what §4.10 calls "final score".
	ranked := []Ranked{
		{Fused: fusedCand(1, "alpha beta gamma delta", 0.9), FinalScore: 0.2},
		{Fused: fusedCand(2, "epsilon zeta eta theta", 0.1), FinalScore: 0.95},
	}
	got := SelectMMR(ranked, 1)
	if len(got) != 1 || got[0].ChunkID != 2 {
		t.Errorf("expected candidate 2 (higher FinalScore) to be selected, got %+v", got)
	}
}
