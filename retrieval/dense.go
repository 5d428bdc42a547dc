// Package retrieval performs dense (embedding-based) candidate retrieval
// against the chunk store.
package retrieval

import (
	"context"

	"github.com/bbiangul/ragcore/embedclient"
	"github.com/bbiangul/ragcore/store"
)

// Candidate is a scored chunk surfaced by retrieval, before fusion.
type Candidate struct {
	ChunkID    int64
	SourceID   int64
	SourceName string
	Content    string
	PageNumber int
	Section    string
	Ordinal    int
	Score      float64
}

// DenseRetriever embeds a query and searches the store for its nearest
// chunks by cosine similarity.
type DenseRetriever struct {
	embed *embedclient.Client
	store *store.Store
}

// NewDenseRetriever builds a DenseRetriever over the given embedding client
// and chunk store.
func NewDenseRetriever(embed *embedclient.Client, s *store.Store) *DenseRetriever {
	return &DenseRetriever{embed: embed, store: s}
}

// Retrieve returns up to n chunks nearest the query's embedding, scored by
// cosine similarity, filtered by filter. minSimilarity drops candidates
// below the threshold before returning (0 disables the cutoff).
func (r *DenseRetriever) Retrieve(ctx context.Context, query string, n int, filter store.Filter, minSimilarity float64) ([]Candidate, error) {
	vec, err := r.embed.Embed(ctx, query)
	if err != nil {
		return nil, err
	}

	results, err := r.store.Nearest(ctx, vec, n, filter)
	if err != nil {
		return nil, err
	}

	out := make([]Candidate, 0, len(results))
	for _, res := range results {
		if minSimilarity > 0 && res.Score < minSimilarity {
			continue
		}
		out = append(out, Candidate{
			ChunkID:    res.ChunkID,
			SourceID:   res.SourceID,
			SourceName: res.SourceName,
			Content:    res.Content,
			PageNumber: res.PageNumber,
			Section:    res.Section,
			Ordinal:    res.Ordinal,
			Score:      res.Score,
		})
	}
	return out, nil
}
