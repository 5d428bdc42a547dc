package ingest

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

func fakeEmbedServer(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string][]float64{"embedding": {1, 2, 3, 4}})
	}))
}

func TestIngestReachesReadyStatus(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	srv := fakeEmbedServer(t)
	defer srv.Close()

	src, err := s.UpsertSource(ctx, "doc.pdf", "file", "hash-1")
	if err != nil {
		t.Fatalf("upserting source: %v", err)
	}

	embed := embedclient.New(embedclient.Config{BaseURL: srv.URL, Model: "test", Dim: 4}, nil)
	ing := New(s, embed, Config{})

	pages := []Page{{Number: 1, Content: "The pump requires routine maintenance every six months."}}
	if err := ing.Ingest(ctx, src.ID, pages); err != nil {
		t.Fatalf("Ingest: %v", err)
	}

	got, err := s.GetSource(ctx, src.ID)
	if err != nil {
		t.Fatalf("GetSource: %v", err)
	}
	if got.Status != store.StatusReady {
		t.Errorf("expected status ready, got %s", got.Status)
	}
	if got.ChunkCount == 0 {
		t.Error("expected at least one chunk recorded")
	}
}

func TestIngestFailsWhenEmbeddingUnavailable(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	src, err := s.UpsertSource(ctx, "doc.pdf", "file", "hash-2")
	if err != nil {
		t.Fatalf("upserting source: %v", err)
	}

	embed := embedclient.New(embedclient.Config{BaseURL: srv.URL, Model: "test", Dim: 4, Retries: 1}, nil)
	ing := New(s, embed, Config{SourceRetries: 0})

	pages := []Page{{Number: 1, Content: "some content to embed"}}
	if err := ing.Ingest(ctx, src.ID, pages); err == nil {
		t.Fatal("expected ingest to fail when embedding is unavailable")
	}

	got, err := s.GetSource(ctx, src.ID)
	if err != nil {
		t.Fatalf("GetSource: %v", err)
	}
	if got.Status != store.StatusFailed {
		t.Errorf("expected status failed, got %s", got.Status)
	}
	if got.ErrorText == "" {
		t.Error("expected error_text to be recorded on failure")
	}
}

func TestIngestTruncatesAtMaxChunks(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	srv := fakeEmbedServer(t)
	defer srv.Close()

	src, err := s.UpsertSource(ctx, "doc.pdf", "file", "hash-3")
	if err != nil {
		t.Fatalf("upserting source: %v", err)
	}

	embed := embedclient.New(embedclient.Config{BaseURL: srv.URL, Model: "test", Dim: 4}, nil)
	ing := New(s, embed, Config{MaxChunks: 2})

	var pages []Page
	for i := 0; i < 5; i++ {
		pages = append(pages, Page{Number: i + 1, Content: "distinct unrelated filler sentence number " + string(rune('a'+i)) + "."})
	}
	if err := ing.Ingest(ctx, src.ID, pages); err != nil {
		t.Fatalf("Ingest: %v", err)
	}

	got, err := s.GetSource(ctx, src.ID)
	if err != nil {
		t.Fatalf("GetSource: %v", err)
	}
	if got.ChunkCount != 2 {
		t.Errorf("expected chunk count capped at 2, got %d", got.ChunkCount)
	}
	if !got.IsTruncated {
		t.Error("expected is_truncated to be set")
	}
	if got.CoveragePct >= 100 {
		t.Errorf("expected coverage_pct below 100 for truncated source, got %v", got.CoveragePct)
	}
}

func TestRefreshReplacesChunks(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	srv := fakeEmbedServer(t)
	defer srv.Close()

	src, err := s.UpsertSource(ctx, "doc.pdf", "file", "hash-4")
	if err != nil {
		t.Fatalf("upserting source: %v", err)
	}

	embed := embedclient.New(embedclient.Config{BaseURL: srv.URL, Model: "test", Dim: 4}, nil)
	ing := New(s, embed, Config{})

	if err := ing.Ingest(ctx, src.ID, []Page{{Number: 1, Content: "original content about valves."}}); err != nil {
		t.Fatalf("initial Ingest: %v", err)
	}

	if err := ing.Refresh(ctx, src.ID, []Page{{Number: 1, Content: "replacement content about filters."}}); err != nil {
		t.Fatalf("Refresh: %v", err)
	}

	chunks, err := s.GetChunksBySource(ctx, src.ID)
	if err != nil {
		t.Fatalf("GetChunksBySource: %v", err)
	}
	for _, c := range chunks {
		if c.Content == "original content about valves." {
			t.Error("expected original chunk content to be replaced")
		}
	}
}
