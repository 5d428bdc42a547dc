// Package embedclient maps text to dense vectors through an HTTP embedding
// service, with cache-through lookups and bounded-concurrency batching.
package embedclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/bbiangul/ragcore/cache"
	"github.com/bbiangul/ragcore/errs"
)

// Config configures a Client.
type Config struct {
	BaseURL     string
	Model       string
	APIKey      string
	Dim         int           // D, the fixed output dimension
	Concurrency int           // W, bounded fan-out for batch misses
	BatchSize   int           // B, batch misses handled per worker (one request per text)
	Retries     int           // R, retries per failed embed before giving up
	Timeout     time.Duration // per-request timeout
}

func (c Config) withDefaults() Config {
	if c.Concurrency <= 0 {
		c.Concurrency = 10
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 50
	}
	if c.Retries <= 0 {
		c.Retries = 3
	}
	if c.Timeout <= 0 {
		c.Timeout = 120 * time.Second
	}
	return c
}

// Client embeds text via an Ollama-style native embedding endpoint
// ({model, prompt} -> {embedding}), cache-through, with retry-with-backoff
// on transport errors and bounded concurrent fan-out for batch misses.
type Client struct {
	cfg   Config
	http  *http.Client
	cache *cache.Store
}

// New builds a Client. cacheStore may be nil, in which case every call is a
// cache miss.
func New(cfg Config, cacheStore *cache.Store) *Client {
	cfg = cfg.withDefaults()
	return &Client{
		cfg:   cfg,
		http:  &http.Client{Timeout: cfg.Timeout},
		cache: cacheStore,
	}
}

type embedRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type embedResponse struct {
	Embedding []float64 `json:"embedding"`
}

// Embed returns the D-dimensional embedding for text, using the cache first.
// On model error it retries up to cfg.Retries times with exponential
// backoff; after exhausting retries it surfaces EmbeddingUnavailable. There
// is no fallback to a synthetic or hash-based vector.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	key := cache.Key(text, c.cfg.Model)
	if c.cache != nil {
		if raw, ok := c.cache.Get(cache.ScopeEmbedding, key); ok {
			if vec, ok := decodeVector(raw); ok {
				return vec, nil
			}
		}
	}

	vec, err := c.embedWithRetry(ctx, text)
	if err != nil {
		return nil, err
	}

	vec, err = fitDimension(vec, c.cfg.Dim)
	if err != nil {
		return nil, err
	}

	if c.cache != nil {
		c.cache.Set(cache.ScopeEmbedding, key, encodeVector(vec))
	}
	return vec, nil
}

// EmbedBatch embeds texts preserving input order. Texts already in cache
// are served directly; misses are fanned out with bounded concurrency W
// and implicit grouping into batches of size B. If any miss ultimately
// fails after retries, the whole batch is aborted with EmbeddingUnavailable
// and no partial cache entries are written for in-flight texts.
func (c *Client) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	results := make([][]float32, len(texts))
	var missIdx []int

	for i, t := range texts {
		key := cache.Key(t, c.cfg.Model)
		if c.cache != nil {
			if raw, ok := c.cache.Get(cache.ScopeEmbedding, key); ok {
				if vec, ok := decodeVector(raw); ok {
					results[i] = vec
					continue
				}
			}
		}
		missIdx = append(missIdx, i)
	}
	if len(missIdx) == 0 {
		return results, nil
	}

	sem := semaphore.NewWeighted(int64(c.cfg.Concurrency))
	g, gctx := errgroup.WithContext(ctx)

	for start := 0; start < len(missIdx); start += c.cfg.BatchSize {
		end := start + c.cfg.BatchSize
		if end > len(missIdx) {
			end = len(missIdx)
		}
		batch := missIdx[start:end]

		if err := sem.Acquire(gctx, 1); err != nil {
			return nil, errs.Wrap(errs.Cancelled, "embedding batch cancelled", err)
		}
		g.Go(func() error {
			defer sem.Release(1)
			for _, idx := range batch {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				vec, err := c.embedWithRetry(gctx, texts[idx])
				if err != nil {
					return err
				}
				vec, err = fitDimension(vec, c.cfg.Dim)
				if err != nil {
					return err
				}
				results[idx] = vec
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		if ctx.Err() != nil {
			return nil, errs.Wrap(errs.Cancelled, "embedding batch cancelled", ctx.Err())
		}
		if e, ok := err.(*errs.Error); ok {
			return nil, e
		}
		return nil, errs.Wrap(errs.EmbeddingUnavailable, "batch embedding failed", err)
	}

	if c.cache != nil {
		for _, idx := range missIdx {
			key := cache.Key(texts[idx], c.cfg.Model)
			c.cache.Set(cache.ScopeEmbedding, key, encodeVector(results[idx]))
		}
	}
	return results, nil
}

func (c *Client) embedWithRetry(ctx context.Context, text string) ([]float64, error) {
	var lastErr error
	for attempt := 0; attempt <= c.cfg.Retries; attempt++ {
		if attempt > 0 {
			delay := time.Duration(1<<(attempt-1)) * time.Second
			slog.Warn("embedclient: retrying embed request", "attempt", attempt, "delay", delay, "error", lastErr)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, errs.Wrap(errs.Cancelled, "embed cancelled during backoff", ctx.Err())
			}
		}

		vec, err := c.doEmbed(ctx, text)
		if err == nil {
			return vec, nil
		}
		if ctx.Err() != nil {
			return nil, errs.Wrap(errs.Cancelled, "embed cancelled", ctx.Err())
		}
		lastErr = err
	}
	return nil, errs.Wrap(errs.EmbeddingUnavailable, fmt.Sprintf("embedding failed after %d retries", c.cfg.Retries), lastErr)
}

func (c *Client) doEmbed(ctx context.Context, text string) ([]float64, error) {
	body, err := json.Marshal(embedRequest{Model: c.cfg.Model, Prompt: text})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/api/embed", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("embedding request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading embedding response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("embedding service returned %d: %s", resp.StatusCode, string(respBody))
	}

	var parsed embedResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, fmt.Errorf("decoding embedding response: %w", err)
	}
	if len(parsed.Embedding) == 0 {
		return nil, fmt.Errorf("embedding response had no vector")
	}
	return parsed.Embedding, nil
}

// fitDimension validates and coerces vec to exactly dim components,
// zero-padding short vectors and truncating long ones, logging either case
// as spec.md Open Question 1 requires. A non-finite component is rejected
// outright with BadVector.
func fitDimension(vec []float64, dim int) ([]float32, error) {
	for _, f := range vec {
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return nil, errs.New(errs.BadVector, "embedding contains a non-finite component")
		}
	}

	out := make([]float32, dim)
	n := len(vec)
	if n > dim {
		slog.Warn("embedclient: truncating oversized embedding", "got", n, "want", dim)
		n = dim
	} else if n < dim {
		slog.Warn("embedclient: zero-padding undersized embedding", "got", n, "want", dim)
	}
	for i := 0; i < n; i++ {
		out[i] = float32(vec[i])
	}
	return out, nil
}

func encodeVector(vec []float32) []byte {
	buf := make([]byte, len(vec)*4)
	for i, f := range vec {
		bits := math.Float32bits(f)
		buf[i*4+0] = byte(bits)
		buf[i*4+1] = byte(bits >> 8)
		buf[i*4+2] = byte(bits >> 16)
		buf[i*4+3] = byte(bits >> 24)
	}
	return buf
}

func decodeVector(buf []byte) ([]float32, bool) {
	if len(buf)%4 != 0 {
		return nil, false
	}
	vec := make([]float32, len(buf)/4)
	for i := range vec {
		bits := uint32(buf[i*4+0]) | uint32(buf[i*4+1])<<8 | uint32(buf[i*4+2])<<16 | uint32(buf[i*4+3])<<24
		vec[i] = math.Float32frombits(bits)
	}
	return vec, true
}
