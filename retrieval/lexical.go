package retrieval

import (
	"context"

	"github.com/bbiangul/ragcore/bm25"
	"github.com/bbiangul/ragcore/query"
	"github.com/bbiangul/ragcore/store"
)

// LexicalScorer ranks FTS5 candidates by BM25 relevance against a built
// Stats snapshot. FTS5 only seeds the candidate set; it never contributes
// a score itself.
type LexicalScorer struct {
	store *store.Store
	bm25  *bm25.Scorer
}

// NewLexicalScorer wraps a store and a pre-built BM25 Scorer.
func NewLexicalScorer(s *store.Store, scorer *bm25.Scorer) *LexicalScorer {
	return &LexicalScorer{store: s, bm25: scorer}
}

// Retrieve seeds up to n candidates via FTS5 using the processed query's
// normalized form, then scores each by BM25 against the query's key terms.
func (l *LexicalScorer) Retrieve(ctx context.Context, qc query.Context, n int) ([]Candidate, error) {
	seeded, err := l.store.FTSSearch(ctx, ftsQuery(qc), n)
	if err != nil {
		return nil, err
	}

	out := make([]Candidate, 0, len(seeded))
	for _, res := range seeded {
		out = append(out, Candidate{
			ChunkID:    res.ChunkID,
			SourceID:   res.SourceID,
			SourceName: res.SourceName,
			Content:    res.Content,
			PageNumber: res.PageNumber,
			Section:    res.Section,
			Ordinal:    res.Ordinal,
			Score:      l.bm25.Score(qc.Terms, res.ChunkID, res.Content),
		})
	}
	return out, nil
}

// ftsQuery builds a best-effort MATCH expression from the key terms SQLite's
// FTS5 query syntax treats bare words as an implicit AND; OR the terms so a
// query partially matching a chunk can still seed the candidate set.
func ftsQuery(qc query.Context) string {
	if len(qc.Terms) == 0 {
		return qc.Normalized
	}
	out := qc.Terms[0]
	for _, t := range qc.Terms[1:] {
		out += " OR " + t
	}
	return out
}
