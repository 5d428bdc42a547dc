package ragcore

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
)

func fakeEmbedServer(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string][]float64{"embedding": {1, 0, 0, 0}})
	}))
}

func fakeChatServer(t *testing.T, reply string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"message": map[string]string{"content": reply},
		})
	}))
}

func newTestEngine(t *testing.T, embedURL, chatURL string) Engine {
	t.Helper()
	cfg := DefaultConfig()
	cfg.DBPath = filepath.Join(t.TempDir(), "test.db")
	cfg.EmbeddingDim = 4
	cfg.Embedding.BaseURL = embedURL
	cfg.Generator.BaseURL = chatURL
	cfg.MinSimilarity = -1
	cfg.MinSimilarityComprehensive = -1
	cfg.MinHybrid = -1

	e, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { e.Close() })
	return e
}

func writeTestFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing test file: %v", err)
	}
	return path
}

func TestEngineIngestAndQueryEndToEnd(t *testing.T) {
	embedSrv := fakeEmbedServer(t)
	defer embedSrv.Close()
	chatSrv := fakeChatServer(t, "The pump requires maintenance every six months. [1]")
	defer chatSrv.Close()

	e := newTestEngine(t, embedSrv.URL, chatSrv.URL)
	ctx := context.Background()

	path := writeTestFile(t, "manual.txt", "The pump requires routine maintenance every six months.")
	srcID, err := e.Ingest(ctx, path)
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if srcID == 0 {
		t.Fatal("expected non-zero source id")
	}

	ans, err := e.Query(ctx, "how often does the pump need maintenance?")
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if ans.Abstained {
		t.Fatalf("did not expect abstain, got clarification %q", ans.Clarification)
	}
	if ans.Text == "" {
		t.Error("expected non-empty answer text")
	}
	if len(ans.Sources) == 0 {
		t.Error("expected at least one cited source")
	}
}

func TestEngineIngestDuplicateHashRejected(t *testing.T) {
	embedSrv := fakeEmbedServer(t)
	defer embedSrv.Close()
	chatSrv := fakeChatServer(t, "answer")
	defer chatSrv.Close()

	e := newTestEngine(t, embedSrv.URL, chatSrv.URL)
	ctx := context.Background()

	path := writeTestFile(t, "doc.txt", "duplicate ingest content.")
	if _, err := e.Ingest(ctx, path); err != nil {
		t.Fatalf("first Ingest: %v", err)
	}
	if _, err := e.Ingest(ctx, path); err == nil {
		t.Fatal("expected second ingest of identical content to fail")
	}
}

func TestEngineQueryEmptyReturnsError(t *testing.T) {
	embedSrv := fakeEmbedServer(t)
	defer embedSrv.Close()
	chatSrv := fakeChatServer(t, "answer")
	defer chatSrv.Close()

	e := newTestEngine(t, embedSrv.URL, chatSrv.URL)
	ctx := context.Background()

	if _, err := e.Query(ctx, "   "); err == nil {
		t.Fatal("expected empty query to error")
	}
}

func TestEngineQueryAbstainsOnEmptyCorpus(t *testing.T) {
	embedSrv := fakeEmbedServer(t)
	defer embedSrv.Close()
	chatSrv := fakeChatServer(t, "answer")
	defer chatSrv.Close()

	e := newTestEngine(t, embedSrv.URL, chatSrv.URL)
	ctx := context.Background()

	ans, err := e.Query(ctx, "what is the meaning of life?")
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if !ans.Abstained {
		t.Error("expected abstain on a completely empty corpus")
	}
}
