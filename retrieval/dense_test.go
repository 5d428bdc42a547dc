package retrieval

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/bbiangul/ragcore/embedclient"
	"github.com/bbiangul/ragcore/store"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.New(filepath.Join(t.TempDir(), "test.db"), 4)
	if err != nil {
		t.Fatalf("creating store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestDenseRetrieveFiltersByMinSimilarity(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string][]float64{"embedding": {1, 0, 0, 0}})
	}))
	defer srv.Close()

	s := newTestStore(t)
	ctx := context.Background()

	src, err := s.UpsertSource(ctx, "doc.pdf", "file", "hash-1")
	if err != nil {
		t.Fatalf("upserting source: %v", err)
	}
	chunks := []store.Chunk{
		{SourceID: src.ID, Ordinal: 0, PageNumber: 1, Content: "alpha"},
		{SourceID: src.ID, Ordinal: 1, PageNumber: 1, Content: "beta"},
	}
	embeddings := [][]float32{{1, 0, 0, 0}, {-1, 0, 0, 0}}
	if _, err := s.InsertChunks(ctx, src.ID, chunks, embeddings); err != nil {
		t.Fatalf("inserting chunks: %v", err)
	}

	client := embedclient.New(embedclient.Config{BaseURL: srv.URL, Model: "test", Dim: 4}, nil)
	retriever := NewDenseRetriever(client, s)

	results, err := retriever.Retrieve(ctx, "query", 10, store.Filter{}, 0.5)
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	for _, r := range results {
		if r.Score < 0.5 {
			t.Errorf("expected all results above threshold 0.5, got score %v", r.Score)
		}
	}
}
