package bm25

import (
	"reflect"
	"testing"
)

func TestTokenizeLowercasesAndDropsShortWords(t *testing.T) {
	got := Tokenize("The API-key is: K2! Reset it.")
	want := []string{"the", "api", "key", "is", "reset", "it"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Tokenize = %v, want %v", got, want)
	}
}

func TestScoreFavorsRarerTerms(t *testing.T) {
	stats := &Stats{
		TotalDocs:    4,
		DocFrequency: map[string]int{"common": 3, "rare": 1},
		AvgDocLength: 10,
		docTokens:    map[int64][]string{},
	}
	sc := NewScorer(stats)

	commonScore := sc.Score([]string{"common"}, 0, "common common common common common common common common common common")
	rareScore := sc.Score([]string{"rare"}, 0, "rare common common common common common common common common common")

	if rareScore <= commonScore {
		t.Errorf("expected rare term to score higher: rare=%v common=%v", rareScore, commonScore)
	}
}

func TestScoreZeroForUnknownTerm(t *testing.T) {
	stats := &Stats{TotalDocs: 2, DocFrequency: map[string]int{"foo": 1}, AvgDocLength: 5}
	sc := NewScorer(stats)
	if got := sc.Score([]string{"bar"}, 0, "foo foo foo"); got != 0 {
		t.Errorf("expected 0 for term absent from corpus, got %v", got)
	}
}

func TestScoreEmptyStatsIsZero(t *testing.T) {
	sc := NewScorer(nil)
	if got := sc.Score([]string{"anything"}, 0, "content"); got != 0 {
		t.Errorf("expected 0 with nil stats, got %v", got)
	}
}

func TestNormalizeScoresRange(t *testing.T) {
	got := NormalizeScores([]float64{1, 3, 5})
	want := []float64{0, 0.5, 1}
	for i := range got {
		if got[i] != want[i] {
			t.Errorf("NormalizeScores[%d] = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestNormalizeScoresDegenerateAllOne(t *testing.T) {
	got := NormalizeScores([]float64{4, 4, 4})
	for _, v := range got {
		if v != 1.0 {
			t.Errorf("expected all-equal scores to normalize to 1.0, got %v", v)
		}
	}
}

func TestNormalizeScoresEmpty(t *testing.T) {
	got := NormalizeScores(nil)
	if len(got) != 0 {
		t.Errorf("expected empty output for empty input, got %v", got)
	}
}
