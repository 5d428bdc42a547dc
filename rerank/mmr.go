package rerank

import "github.com/bbiangul/ragcore/rank"

// mmrLambda balances relevance against diversity: 1.0 is pure relevance,
// 0.0 is pure diversity.
const mmrLambda = 0.6

// SelectMMR greedily selects up to topK candidates from ranked, trading
// relevance against diversity: the highest-scoring candidate is always
// taken first, then each subsequent pick maximizes
// lambda*FinalScore + (1-lambda)*(1-maxSimilarityToSelected), where
// similarity is Jaccard token overlap over full content and FinalScore is
// the reranker's composite relevance score. If ranked already has topK or
// fewer candidates, it is returned unchanged (truncated to topK).
func SelectMMR(ranked []Ranked, topK int) []Ranked {
	if len(ranked) == 0 || topK <= 0 {
		return nil
	}
	if len(ranked) <= topK {
		return ranked
	}

	remaining := make([]Ranked, len(ranked))
	copy(remaining, ranked)

	first := 0
	for i := range remaining {
		if remaining[i].FinalScore > remaining[first].FinalScore {
			first = i
		}
	}
	selected := []Ranked{remaining[first]}
	remaining = append(remaining[:first], remaining[first+1:]...)

	for len(selected) < topK && len(remaining) > 0 {
		bestIdx := -1
		bestScore := -1.0

		for i, cand := range remaining {
			maxSim := 0.0
			for _, s := range selected {
				if sim := rank.Jaccard(cand.Content, s.Content); sim > maxSim {
					maxSim = sim
				}
			}
			diversity := 1.0 - maxSim
			score := mmrLambda*cand.FinalScore + (1-mmrLambda)*diversity

			if score > bestScore {
				bestScore = score
				bestIdx = i
			}
		}

		if bestIdx == -1 {
			break
		}
		selected = append(selected, remaining[bestIdx])
		remaining = append(remaining[:bestIdx], remaining[bestIdx+1:]...)
	}

	return selected
}
