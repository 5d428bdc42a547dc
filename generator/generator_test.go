package generator

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/bbiangul/ragcore/cache"
	"github.com/bbiangul/ragcore/errs"
	"github.com/bbiangul/ragcore/query"
)

func TestGenerateReturnsContent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req chatRequest
		json.NewDecoder(r.Body).Decode(&req)
		json.NewEncoder(w).Encode(chatResponse{Message: struct {
			Content string `json:"content"`
		}{Content: "the answer is 42"}})
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL, Model: "test"}, nil)
	out, err := c.Generate(context.Background(), "what is the answer?", query.TypeGeneral, cache.ScopeResponse)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if out != "the answer is 42" {
		t.Errorf("got %q, want 'the answer is 42'", out)
	}
}

func TestGenerateCachesResponse(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		json.NewEncoder(w).Encode(chatResponse{Message: struct {
			Content string `json:"content"`
		}{Content: "cached answer"}})
	}))
	defer srv.Close()

	store := cache.New(nil)
	c := New(Config{BaseURL: srv.URL, Model: "test"}, store)

	ctx := context.Background()
	if _, err := c.Generate(ctx, "prompt", query.TypeGeneral, cache.ScopeResponse); err != nil {
		t.Fatalf("first Generate: %v", err)
	}
	if _, err := c.Generate(ctx, "prompt", query.TypeGeneral, cache.ScopeResponse); err != nil {
		t.Fatalf("second Generate: %v", err)
	}
	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Errorf("expected 1 HTTP call due to cache hit, got %d", got)
	}
}

func TestGenerateUsesComprehensiveSamplingAndTimeout(t *testing.T) {
	var got chatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&got)
		json.NewEncoder(w).Encode(chatResponse{Message: struct {
			Content string `json:"content"`
		}{Content: "ok"}})
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL, Model: "test"}, nil)
	if _, err := c.Generate(context.Background(), "prompt", query.TypeProcedural, cache.ScopeComprehensiveResp); err != nil {
		t.Fatalf("Generate: %v", err)
	}

	want := comprehensiveSamplingByType[query.TypeProcedural]
	if got.Options.NumPredict != want.NumPredict || got.Options.NumCtx != want.NumCtx || got.Options.TopK != want.TopK {
		t.Errorf("expected comprehensive sampling options %+v, got %+v", want, got.Options)
	}
}

func TestGenerateFailsAfterRetriesExhausted(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL, Model: "test", Retries: 1}, nil)
	_, err := c.Generate(context.Background(), "prompt", query.TypeGeneral, cache.ScopeResponse)
	if !errs.Is(err, errs.GenerationUnavailable) {
		t.Errorf("expected GenerationUnavailable, got %v", err)
	}
}
