// Package bm25 scores chunks against a query using the BM25 ranking
// function over corpus statistics built from every ready chunk.
package bm25

import (
	"context"
	"math"
	"regexp"
	"strings"
	"sync"

	"github.com/bbiangul/ragcore/cache"
	"github.com/bbiangul/ragcore/store"
)

const (
	k1 = 1.5
	b  = 0.75
)

var wordPattern = regexp.MustCompile(`[a-zA-Z]{2,}`)

// Tokenize lowercases text and extracts alphabetic words of length >= 2,
// matching the reference scorer's preprocessing exactly.
func Tokenize(text string) []string {
	return wordPattern.FindAllString(strings.ToLower(text), -1)
}

// Stats holds corpus-wide statistics needed to score a document: per-term
// document frequency, and average document length across the corpus.
type Stats struct {
	TotalDocs    int
	DocFrequency map[string]int
	AvgDocLength float64
	docTokens    map[int64][]string
}

// BuildStats scans every ready chunk and computes document frequencies and
// average chunk length. The statistics are rebuilt from the store on every
// call; the fixed key "bm25-corpus-stats" written to ScopeSearch holds only a
// presence marker and is never read back as a source of statistics.
func BuildStats(ctx context.Context, s *store.Store, c *cache.Store) (*Stats, error) {
	const cacheKey = "bm25-corpus-stats"

	if c != nil {
		if _, ok := c.Get(cache.ScopeSearch, cacheKey); ok {
			// The cache stores only a presence marker, not the statistics
			// (they hold per-doc token slices), so a hit does not skip the
			// rebuild below.
		}
	}

	chunks, err := s.AllReadyChunks(ctx)
	if err != nil {
		return nil, err
	}

	df := make(map[string]int)
	docTokens := make(map[int64][]string, len(chunks))
	var totalLength int

	for _, ch := range chunks {
		tokens := Tokenize(ch.Content)
		docTokens[ch.ID] = tokens
		totalLength += len(tokens)

		seen := make(map[string]bool, len(tokens))
		for _, t := range tokens {
			if !seen[t] {
				seen[t] = true
				df[t]++
			}
		}
	}

	avgLen := 0.0
	if len(chunks) > 0 {
		avgLen = float64(totalLength) / float64(len(chunks))
	}

	if c != nil {
		c.Set(cache.ScopeSearch, cacheKey, []byte("built"))
	}

	return &Stats{
		TotalDocs:    len(chunks),
		DocFrequency: df,
		AvgDocLength: avgLen,
		docTokens:    docTokens,
	}, nil
}

// Scorer computes BM25 relevance scores against a fixed set of corpus
// Stats, built once per query-processing cycle and reused across
// candidates.
type Scorer struct {
	mu    sync.RWMutex
	stats *Stats
}

// NewScorer wraps precomputed Stats in a Scorer.
func NewScorer(stats *Stats) *Scorer {
	return &Scorer{stats: stats}
}

// Score returns the BM25 relevance of content against queryTerms. chunkID,
// if known (nonzero) and present in the corpus's token cache, avoids
// re-tokenizing content; otherwise content is tokenized fresh, letting the
// scorer handle candidates outside the corpus snapshot (e.g. newly
// embedded chunks not yet folded into Stats).
func (sc *Scorer) Score(queryTerms []string, chunkID int64, content string) float64 {
	sc.mu.RLock()
	stats := sc.stats
	sc.mu.RUnlock()

	if stats == nil || stats.TotalDocs == 0 {
		return 0
	}

	docTokens, ok := stats.docTokens[chunkID]
	if !ok {
		docTokens = Tokenize(content)
	}
	docLength := len(docTokens)
	if docLength == 0 {
		return 0
	}

	tf := make(map[string]int, docLength)
	for _, t := range docTokens {
		tf[t]++
	}

	var score float64
	for _, term := range queryTerms {
		df, ok := stats.DocFrequency[term]
		if !ok {
			continue
		}
		freq := tf[term]
		if freq == 0 {
			continue
		}

		idf := math.Log((float64(stats.TotalDocs)-float64(df)+0.5)/(float64(df)+0.5))
		numerator := float64(freq) * (k1 + 1)
		denominator := float64(freq) + k1*(1-b+b*(float64(docLength)/stats.AvgDocLength))
		score += idf * (numerator / denominator)
	}
	return score
}

// NormalizeScores min-max normalizes scores to [0, 1]. A corpus where every
// score is equal (including the empty case) normalizes to all 1.0, matching
// the reference implementation's handling of a degenerate score set.
func NormalizeScores(scores []float64) []float64 {
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
