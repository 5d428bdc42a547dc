// Package rank fuses and deduplicates candidate chunks
// gathered from multiple retrieval strategies.
package rank

import (
	"sort"

	"github.com/bbiangul/ragcore/retrieval"
)

// FusionMode selects how per-strategy rankings are combined into one score.
type FusionMode string

const (
	// FusionRRF combines rankings with Reciprocal Rank Fusion, the default:
	// it needs no score normalization across heterogeneous scales (cosine
	// similarity vs. BM25).
	FusionRRF FusionMode = "rrf"
	// FusionWeightedSum combines normalized scores directly, weighting
	// dense 0.7 and lexical 0.3 as in the reference hybrid search.
	FusionWeightedSum FusionMode = "weighted_sum"
)

const rrfK = 60

const (
	denseWeight   = 0.7
	lexicalWeight = 0.3
)

// Fused is a candidate chunk with its combined relevance score.
type Fused struct {
	retrieval.Candidate
	FusedScore float64
}

// Fuse combines dense and lexical candidate rankings into a single ordered
// list, descending by fused score. mode selects the combination strategy;
// an empty mode defaults to RRF.
func Fuse(dense, lexical []retrieval.Candidate, mode FusionMode) []Fused {
	if mode == "" {
		mode = FusionRRF
	}

	switch mode {
	case FusionWeightedSum:
		return fuseWeightedSum(dense, lexical)
	default:
		return fuseRRF(dense, lexical)
	}
}

func fuseRRF(dense, lexical []retrieval.Candidate) []Fused {
	scores := make(map[int64]float64)
	byID := make(map[int64]retrieval.Candidate)

	for rank, c := range dense {
		scores[c.ChunkID] += 1.0 / float64(rrfK+rank+1)
		byID[c.ChunkID] = c
	}
	for rank, c := range lexical {
		scores[c.ChunkID] += 1.0 / float64(rrfK+rank+1)
		if _, ok := byID[c.ChunkID]; !ok {
			byID[c.ChunkID] = c
		}
	}

	return sortedFused(scores, byID)
}

func fuseWeightedSum(dense, lexical []retrieval.Candidate) []Fused {
	denseScores := extractScores(dense)
	lexicalScores := extractScores(lexical)
	normDense := normalize(denseScores)
	normLexical := normalize(lexicalScores)

	scores := make(map[int64]float64)
	byID := make(map[int64]retrieval.Candidate)

	for i, c := range dense {
		scores[c.ChunkID] += denseWeight * normDense[i]
		byID[c.ChunkID] = c
	}
	for i, c := range lexical {
		scores[c.ChunkID] += lexicalWeight * normLexical[i]
		if _, ok := byID[c.ChunkID]; !ok {
			byID[c.ChunkID] = c
		}
	}

	return sortedFused(scores, byID)
}

func sortedFused(scores map[int64]float64, byID map[int64]retrieval.Candidate) []Fused {
	out := make([]Fused, 0, len(scores))
	for id, score := range scores {
		c := byID[id]
		out = append(out, Fused{Candidate: c, FusedScore: score})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].FusedScore != out[j].FusedScore {
			return out[i].FusedScore > out[j].FusedScore
		}
		return out[i].ChunkID < out[j].ChunkID
	})
	return out
}

func extractScores(candidates []retrieval.Candidate) []float64 {
	out := make([]float64, len(candidates))
	for i, c := range candidates {
		out[i] = c.Score
	}
	return out
}

func normalize(scores []float64) []float64 {
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
