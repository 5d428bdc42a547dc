// Package generator calls an Ollama-native chat endpoint to produce the
// final answer text from a built prompt, with response caching and
// per-query-type sampling.
package generator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/bbiangul/ragcore/cache"
	"github.com/bbiangul/ragcore/errs"
	"github.com/bbiangul/ragcore/query"
)

const (
	maxRetries        = 3
	baseRetryDelay    = 2 * time.Second
	minRateLimitDelay = 5 * time.Second
)

// Sampling holds per-query-type generation parameters, passed through
// verbatim as the chat request's "options" table.
type Sampling struct {
	NumPredict    int
	Temperature   float64
	TopP          float64
	TopK          int
	RepeatPenalty float64
	NumCtx        int
}

// defaultSampling covers query types not otherwise tuned.
var defaultSampling = Sampling{NumPredict: 1024, Temperature: 0.3, TopP: 0.9, TopK: 40, RepeatPenalty: 1.1, NumCtx: 4096}

// samplingByType tunes generation conservatively for procedural/
// troubleshooting answers (lower temperature, more deterministic) and
// allows a bit more latitude for general/definitional prose. Used for the
// baseline/enhanced/advanced profiles, timeout 120s.
var samplingByType = map[query.Type]Sampling{
	query.TypeProcedural:   {NumPredict: 1200, Temperature: 0.1, TopP: 0.8, TopK: 40, RepeatPenalty: 1.2, NumCtx: 4096},
	query.TypeDefinitional: {NumPredict: 800, Temperature: 0.15, TopP: 0.85, TopK: 40, RepeatPenalty: 1.15, NumCtx: 4096},
	query.TypeTroubleshoot: {NumPredict: 1000, Temperature: 0.1, TopP: 0.8, TopK: 40, RepeatPenalty: 1.25, NumCtx: 4096},
	query.TypeLocational:   {NumPredict: 600, Temperature: 0.05, TopP: 0.75, TopK: 40, RepeatPenalty: 1.1, NumCtx: 4096},
	query.TypeGeneral:      {NumPredict: 1024, Temperature: 0.2, TopP: 0.9, TopK: 40, RepeatPenalty: 1.1, NumCtx: 4096},
}

// comprehensiveSamplingByType replaces samplingByType for
// cache.ScopeComprehensiveResp: longer outputs, near-zero temperature, and a
// wider context window to accommodate the 12000-char context budget,
// timeout 300s.
var comprehensiveSamplingByType = map[query.Type]Sampling{
	query.TypeProcedural:   {NumPredict: 4000, Temperature: 0.05, TopP: 0.7, TopK: 20, RepeatPenalty: 1.3, NumCtx: 8192},
	query.TypeDefinitional: {NumPredict: 3000, Temperature: 0.05, TopP: 0.75, TopK: 20, RepeatPenalty: 1.25, NumCtx: 8192},
	query.TypeTroubleshoot: {NumPredict: 4000, Temperature: 0.05, TopP: 0.7, TopK: 20, RepeatPenalty: 1.3, NumCtx: 8192},
	query.TypeLocational:   {NumPredict: 2500, Temperature: 0.05, TopP: 0.7, TopK: 20, RepeatPenalty: 1.2, NumCtx: 8192},
	query.TypeGeneral:      {NumPredict: 3500, Temperature: 0.05, TopP: 0.8, TopK: 20, RepeatPenalty: 1.2, NumCtx: 8192},
}

const (
	standardTimeout      = 120 * time.Second
	comprehensiveTimeout = 300 * time.Second
)

// Config configures the generator client.
type Config struct {
	BaseURL string
	Model   string
	APIKey  string
	Timeout time.Duration
	Retries int
}

func (c Config) withDefaults() Config {
	if c.Timeout == 0 {
		// Ceiling for the underlying http.Client; the per-request deadline
		// is tightened further via context in doGenerate (120s standard,
		// 300s comprehensive), so this only needs to cover the longest case.
		c.Timeout = comprehensiveTimeout
	}
	if c.Retries == 0 {
		c.Retries = maxRetries
	}
	return c
}

// Client calls the generator (chat) endpoint.
type Client struct {
	cfg   Config
	http  *http.Client
	cache *cache.Store
}

// New builds a generator Client. cacheStore may be nil to disable response
// caching.
func New(cfg Config, cacheStore *cache.Store) *Client {
	cfg = cfg.withDefaults()
	return &Client{
		cfg:   cfg,
		http:  &http.Client{Timeout: cfg.Timeout},
		cache: cacheStore,
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatOptions struct {
	NumPredict    int     `json:"num_predict"`
	Temperature   float64 `json:"temperature"`
	TopP          float64 `json:"top_p"`
	TopK          int     `json:"top_k"`
	RepeatPenalty float64 `json:"repeat_penalty"`
	NumCtx        int     `json:"num_ctx"`
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
	Stream   bool          `json:"stream"`
	Options  chatOptions   `json:"options"`
}

type chatResponse struct {
	Message struct {
		Content string `json:"content"`
	} `json:"message"`
}

// Generate produces an answer for the given prompt, classified queryType,
// and a cache scope (ScopeResponse for normal queries, ScopeComprehensiveResp
// for the comprehensive profile). Responses are cached keyed by model,
// query type, and prompt hash.
func (c *Client) Generate(ctx context.Context, prompt string, queryType query.Type, scope cache.Scope) (string, error) {
	key := cache.Key(c.cfg.Model, string(queryType), prompt)

	if c.cache != nil {
		if cached, ok := c.cache.Get(scope, key); ok {
			return string(cached), nil
		}
	}

	table := samplingByType
	timeout := standardTimeout
	if scope == cache.ScopeComprehensiveResp {
		table = comprehensiveSamplingByType
		timeout = comprehensiveTimeout
	}
	sampling, ok := table[queryType]
	if !ok {
		sampling = defaultSampling
	}

	content, err := c.generateWithRetry(ctx, prompt, sampling, timeout)
	if err != nil {
		return "", err
	}

	if c.cache != nil {
		c.cache.Set(scope, key, []byte(content))
	}
	return content, nil
}

func (c *Client) generateWithRetry(ctx context.Context, prompt string, sampling Sampling, timeout time.Duration) (string, error) {
	body := chatRequest{
		Model:    c.cfg.Model,
		Messages: []chatMessage{{Role: "user", Content: prompt}},
		Stream:   false,
		Options: chatOptions{
			NumPredict:    sampling.NumPredict,
			Temperature:   sampling.Temperature,
			TopP:          sampling.TopP,
			TopK:          sampling.TopK,
			RepeatPenalty: sampling.RepeatPenalty,
			NumCtx:        sampling.NumCtx,
		},
	}

	var lastErr error
	for attempt := 0; attempt <= c.cfg.Retries; attempt++ {
		if attempt > 0 {
			delay := baseRetryDelay * time.Duration(1<<(attempt-1))
			slog.Warn("generator: retrying request", "attempt", attempt, "delay", delay, "error", lastErr)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return "", errs.Wrap(errs.Cancelled, "context cancelled during generation retry", ctx.Err())
			}
		}

		content, retryDelay, err := c.doGenerate(ctx, body, timeout)
		if err == nil {
			return content, nil
		}
		if ctx.Err() != nil {
			return "", errs.Wrap(errs.Cancelled, "context cancelled during generation", ctx.Err())
		}
		lastErr = err
		if retryDelay > 0 {
			select {
			case <-time.After(retryDelay):
			case <-ctx.Done():
				return "", errs.Wrap(errs.Cancelled, "context cancelled during generation retry", ctx.Err())
			}
		}
	}

	return "", errs.Wrap(errs.GenerationUnavailable, "exhausted retries calling generator", lastErr)
}

// doGenerate performs one HTTP attempt, bounded by timeout (120s for
// baseline/enhanced/advanced queries, 300s for comprehensive ones — the
// comprehensive profile's larger num_predict/num_ctx take longer to
// generate). retryDelay is nonzero only for 429 responses, honoring any
// Retry-After header.
func (c *Client) doGenerate(ctx context.Context, body chatRequest, timeout time.Duration) (string, time.Duration, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	data, err := json.Marshal(body)
	if err != nil {
		return "", 0, err
	}

	url := c.cfg.BaseURL + "/api/chat"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return "", 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return "", 0, fmt.Errorf("generator request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", 0, fmt.Errorf("reading generator response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		delay := time.Duration(0)
		if resp.StatusCode == http.StatusTooManyRequests {
			delay = minRateLimitDelay
			if ra := resp.Header.Get("Retry-After"); ra != "" {
				if seconds, err := strconv.Atoi(ra); err == nil && seconds > 0 {
					if d := time.Duration(seconds) * time.Second; d > delay {
						delay = d
					}
				}
			}
		}
		return "", delay, fmt.Errorf("generator API error %d: %s", resp.StatusCode, string(respBody))
	}

	var out chatResponse
	if err := json.Unmarshal(respBody, &out); err != nil {
		return "", 0, fmt.Errorf("decoding generator response: %w", err)
	}
	return out.Message.Content, 0, nil
}
