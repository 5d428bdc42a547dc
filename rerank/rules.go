package rerank

import (
	"strings"

	"github.com/bbiangul/ragcore/rank"
)

// ruleBasedScores computes a relevance score per candidate using exact
// substring, term-overlap, filename, and positional heuristics, then
// normalizes into [0, 1] via min-max (matching how the rest of the
// pipeline treats rule scores as a comparable relevance signal).
func ruleBasedScores(query string, fused []rank.Fused) []float64 {
	queryLower := strings.ToLower(query)
	queryTerms := tokenSet(queryLower)

	raw := make([]float64, len(fused))
	for i, f := range fused {
		content := strings.ToLower(f.Content)
		filename := strings.ToLower(f.SourceName)

		var score float64

		if strings.Contains(content, queryLower) {
			score += 2.0
		}

		contentWords := tokenSet(content)
		score += float64(overlapCount(queryTerms, contentWords)) * 0.5

		filenameWords := tokenSet(filename)
		score += float64(overlapCount(queryTerms, filenameWords)) * 0.3

		for term := range queryTerms {
			pos := strings.Index(content, term)
			if pos >= 0 && len(content) > 0 {
				positionBonus := 1.0 - float64(pos)/float64(len(content))
				if positionBonus < 0 {
					positionBonus = 0
				}
				score += positionBonus * 0.2
			}
		}

		switch {
		case len(content) < 50:
			score *= 0.8
		case len(content) > 2000:
			score *= 0.9
		}

		raw[i] = score
	}

	return normalizeToUnit(raw)
}

func tokenSet(s string) map[string]bool {
	words := strings.Fields(s)
	set := make(map[string]bool, len(words))
	for _, w := range words {
		set[w] = true
	}
	return set
}

func overlapCount(a, b map[string]bool) int {
	n := 0
	for t := range a {
		if b[t] {
			n++
		}
	}
	return n
}

func normalizeToUnit(scores []float64) []float64 {
	if len(scores) == 0 {
		return scores
	}
	min, max := scores[0], scores[0]
	for _, s := range scores[1:] {
		if s < min {
			min = s
		}
		if s > max {
			max = s
		}
	}
	out := make([]float64, len(scores))
	if max == min {
		for i := range out {
			out[i] = 1.0
		}
		return out
	}
	for i, s := range scores {
		out[i] = (s - min) / (max - min)
	}
	return out
}
