package embedclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/bbiangul/ragcore/cache"
	"github.com/bbiangul/ragcore/errs"
)

func fakeServer(t *testing.T, dim int, failCount *int32) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if failCount != nil && atomic.AddInt32(failCount, -1) >= 0 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		var req embedRequest
		json.NewDecoder(r.Body).Decode(&req)
		vec := make([]float64, dim)
		for i := range vec {
			vec[i] = float64(len(req.Prompt)) + float64(i)*0.001
		}
		json.NewEncoder(w).Encode(embedResponse{Embedding: vec})
	}))
}

func TestEmbedReturnsDimensionD(t *testing.T) {
	srv := fakeServer(t, 8, nil)
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL, Model: "test", Dim: 8, Retries: 1}, nil)
	vec, err := c.Embed(context.Background(), "hello")
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if len(vec) != 8 {
		t.Errorf("got dim %d, want 8", len(vec))
	}
}

func TestEmbedCachesResult(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		json.NewEncoder(w).Encode(embedResponse{Embedding: []float64{1, 2, 3, 4}})
	}))
	defer srv.Close()

	store := cache.New(nil)
	c := New(Config{BaseURL: srv.URL, Model: "test", Dim: 4}, store)

	ctx := context.Background()
	if _, err := c.Embed(ctx, "hello"); err != nil {
		t.Fatalf("first Embed: %v", err)
	}
	if _, err := c.Embed(ctx, "hello"); err != nil {
		t.Fatalf("second Embed: %v", err)
	}
	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Errorf("expected 1 HTTP call due to cache hit, got %d", got)
	}
}

func TestEmbedRetriesThenFails(t *testing.T) {
	failCount := int32(10)
	srv := fakeServer(t, 4, &failCount)
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL, Model: "test", Dim: 4, Retries: 2}, nil)
	_, err := c.Embed(context.Background(), "hello")
	if err == nil {
		t.Fatalf("expected error after exhausting retries")
	}
	if !errs.Is(err, errs.EmbeddingUnavailable) {
		t.Errorf("expected EmbeddingUnavailable, got %v", err)
	}
}

func TestEmbedBatchPreservesOrder(t *testing.T) {
	srv := fakeServer(t, 4, nil)
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL, Model: "test", Dim: 4, Concurrency: 2, BatchSize: 2}, nil)
	texts := []string{"a", "bb", "ccc", "dddd", "e"}
	vecs, err := c.EmbedBatch(context.Background(), texts)
	if err != nil {
		t.Fatalf("EmbedBatch: %v", err)
	}
	if len(vecs) != len(texts) {
		t.Fatalf("got %d vectors, want %d", len(vecs), len(texts))
	}
	for i, text := range texts {
		want := float32(len(text))
		if vecs[i][0] != want {
			t.Errorf("vec[%d][0] = %v, want %v (order not preserved)", i, vecs[i][0], want)
		}
	}
}

func TestEmbedBatchAllCachedMakesNoCalls(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		json.NewEncoder(w).Encode(embedResponse{Embedding: []float64{1, 2}})
	}))
	defer srv.Close()

	store := cache.New(nil)
	c := New(Config{BaseURL: srv.URL, Model: "test", Dim: 2}, store)

	ctx := context.Background()
	if _, err := c.EmbedBatch(ctx, []string{"x", "y"}); err != nil {
		t.Fatalf("warm EmbedBatch: %v", err)
	}
	warmCalls := atomic.LoadInt32(&calls)

	if _, err := c.EmbedBatch(ctx, []string{"x", "y"}); err != nil {
		t.Fatalf("cached EmbedBatch: %v", err)
	}
	if atomic.LoadInt32(&calls) != warmCalls {
		t.Errorf("expected no additional HTTP calls on fully-cached batch")
	}
}

func TestFitDimensionPadsAndTruncates(t *testing.T) {
	padded, err := fitDimension([]float64{1, 2}, 4)
	if err != nil {
		t.Fatalf("fitDimension pad: %v", err)
	}
	if len(padded) != 4 || padded[2] != 0 || padded[3] != 0 {
		t.Errorf("expected zero-padded tail, got %v", padded)
	}

	truncated, err := fitDimension([]float64{1, 2, 3, 4, 5}, 3)
	if err != nil {
		t.Fatalf("fitDimension truncate: %v", err)
	}
	if len(truncated) != 3 {
		t.Errorf("expected truncation to 3, got %d", len(truncated))
	}
}

func TestFitDimensionRejectsNonFinite(t *testing.T) {
	_, err := fitDimension([]float64{1, mathNaN()}, 2)
	if !errs.Is(err, errs.BadVector) {
		t.Errorf("expected BadVector for non-finite component, got %v", err)
	}
}

func mathNaN() float64 {
	var zero float64
	return zero / zero
}
