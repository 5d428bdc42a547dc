package eval

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/bbiangul/ragcore"
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

func newTestEngine(t *testing.T, embedURL, chatURL string) ragcore.Engine {
	t.Helper()
	cfg := ragcore.DefaultConfig()
	cfg.DBPath = filepath.Join(t.TempDir(), "eval.db")
	cfg.EmbeddingDim = 4
	cfg.Embedding.BaseURL = embedURL
	cfg.Generator.BaseURL = chatURL
	cfg.MinSimilarity = -1
	cfg.MinSimilarityComprehensive = -1
	cfg.MinHybrid = -1

	e, err := ragcore.New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { e.Close() })
	return e
}

func TestEvaluatorRunScoresAccuracyAndAbstain(t *testing.T) {
	embedSrv := fakeEmbedServer(t)
	defer embedSrv.Close()
	chatSrv := fakeChatServer(t, "The effective date is January 1, 2026.")
	defer chatSrv.Close()

	engine := newTestEngine(t, embedSrv.URL, chatSrv.URL)
	ctx := context.Background()

	path := filepath.Join(t.TempDir(), "agreement.txt")
	if err := os.WriteFile(path, []byte("The effective date of this agreement is January 1, 2026."), 0o644); err != nil {
		t.Fatalf("writing fixture: %v", err)
	}
	if _, err := engine.Ingest(ctx, path); err != nil {
		t.Fatalf("Ingest: %v", err)
	}

	dataset := Dataset{
		Name:       "fixture",
		Difficulty: DifficultyEasy,
		Tests: []TestCase{
			{
				Question:      "What is the effective date of the agreement?",
				ExpectedFacts: []string{"effective date"},
				Category:      "single-fact",
			},
		},
	}

	report, err := NewEvaluator(engine).Run(ctx, dataset)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if report.TotalTests != 1 {
		t.Fatalf("expected 1 test, got %d", report.TotalTests)
	}
	if report.Passed != 1 {
		t.Errorf("expected test to pass, got report: %s", FormatReport(report))
	}
	if report.Metrics.AvgAccuracy == 0 {
		t.Error("expected non-zero accuracy for a matching fact")
	}
}

func TestEvaluatorAbstainExpectation(t *testing.T) {
	embedSrv := fakeEmbedServer(t)
	defer embedSrv.Close()
	chatSrv := fakeChatServer(t, "answer")
	defer chatSrv.Close()

	engine := newTestEngine(t, embedSrv.URL, chatSrv.URL)
	ctx := context.Background()

	dataset := Dataset{
		Name: "empty-corpus",
		Tests: []TestCase{
			{Question: "what is the meaning of life?", WantAbstain: true, Category: "abstain"},
		},
	}

	report, err := NewEvaluator(engine).Run(ctx, dataset)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if report.Passed != 1 {
		t.Errorf("expected abstain-correctness test to pass, got report: %s", FormatReport(report))
	}
}
