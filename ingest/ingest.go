// Package ingest drives a source through the ingest state machine:
// pending -> extracting -> chunking -> embedding -> ready, or -> failed on
// an unrecoverable error.
package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"github.com/bbiangul/ragcore/embedclient"
	"github.com/bbiangul/ragcore/store"
)

const (
	defaultMaxChunksPerSource = 2000
	defaultSourceRetries      = 2 // three whole-source attempts in total
	baseRetryDelay            = 2 * time.Second
)

// Page is one unit of extracted source text, in document order.
type Page struct {
	Number  int
	Section string
	Content string
}

// Config controls chunk sizing and ingest resilience.
type Config struct {
	CharBudget    int
	CharOverlap   int
	MaxChunks     int
	SourceRetries int
}

func (c Config) withDefaults() Config {
	if c.CharBudget == 0 {
		c.CharBudget = defaultCharBudget
	}
	if c.CharOverlap == 0 {
		c.CharOverlap = defaultCharOverlap
	}
	if c.MaxChunks == 0 {
		c.MaxChunks = defaultMaxChunksPerSource
	}
	if c.SourceRetries == 0 {
		c.SourceRetries = defaultSourceRetries
	}
	return c
}

// Ingestor turns extracted pages into persisted, embedded chunks.
type Ingestor struct {
	store *store.Store
	embed *embedclient.Client
	cfg   Config
}

// New builds an Ingestor.
func New(s *store.Store, embed *embedclient.Client, cfg Config) *Ingestor {
	return &Ingestor{store: s, embed: embed, cfg: cfg.withDefaults()}
}

// Ingest chunks, embeds, and stores pages for sourceID, retrying the whole
// source up to cfg.SourceRetries times with exponential backoff and
// jitter on failure. The source's final status is set to ready or failed.
func (ing *Ingestor) Ingest(ctx context.Context, sourceID int64, pages []Page) error {
	var lastErr error
	for attempt := 0; attempt <= ing.cfg.SourceRetries; attempt++ {
		if attempt > 0 {
			delay := jittered(baseRetryDelay * time.Duration(1<<(attempt-1)))
			slog.Warn("ingest: retrying source", "source_id", sourceID, "attempt", attempt, "delay", delay, "error", lastErr)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		if err := ing.runOnce(ctx, sourceID, pages); err != nil {
			lastErr = err
			continue
		}
		return nil
	}

	failMsg := fmt.Sprintf("ingest failed after %d attempts: %v", ing.cfg.SourceRetries+1, lastErr)
	if err := ing.store.UpdateSourceStatus(ctx, sourceID, store.StatusFailed, failMsg); err != nil {
		slog.Error("ingest: failed to record failed status", "source_id", sourceID, "error", err)
	}
	return lastErr
}

// Refresh replaces a ready (or failed) source's chunks with a fresh ingest
// of pages, without changing the source's identity. The existing chunks are
// deleted before the new ones are built, so the swap is not atomic: while
// the re-ingest runs the source has no chunks, and if it fails the old
// chunks are not restored.
func (ing *Ingestor) Refresh(ctx context.Context, sourceID int64, pages []Page) error {
	if err := ing.store.UpdateSourceStatus(ctx, sourceID, store.StatusPending, ""); err != nil {
		return err
	}
	if err := ing.store.DeleteSourceChunks(ctx, sourceID); err != nil {
		return err
	}
	return ing.Ingest(ctx, sourceID, pages)
}

func (ing *Ingestor) runOnce(ctx context.Context, sourceID int64, pages []Page) error {
	if err := ing.store.UpdateSourceStatus(ctx, sourceID, store.StatusExtracting, ""); err != nil {
		return err
	}

	if err := ing.store.UpdateSourceStatus(ctx, sourceID, store.StatusChunking, ""); err != nil {
		return err
	}
	candidates, truncated, totalBeforeTruncation := ing.chunkAll(pages)

	if err := ing.store.UpdateSourceStatus(ctx, sourceID, store.StatusEmbedding, ""); err != nil {
		return err
	}

	texts := make([]string, len(candidates))
	for i, c := range candidates {
		texts[i] = c.content
	}
	embeddings, err := ing.embed.EmbedBatch(ctx, texts)
	if err != nil {
		return fmt.Errorf("embedding chunks for source %d: %w", sourceID, err)
	}

	chunks := make([]store.Chunk, len(candidates))
	for i, c := range candidates {
		chunks[i] = store.Chunk{
			SourceID:     sourceID,
			Ordinal:      i,
			PageNumber:   c.pageNumber,
			Section:      c.section,
			Content:      c.content,
			IsDefinition: c.isDefinition,
		}
	}

	if _, err := ing.store.InsertChunks(ctx, sourceID, chunks, embeddings); err != nil {
		return fmt.Errorf("inserting chunks for source %d: %w", sourceID, err)
	}

	coveragePct := 100.0
	if truncated && totalBeforeTruncation > 0 {
		coveragePct = float64(len(candidates)) / float64(totalBeforeTruncation) * 100
	}
	if err := ing.store.UpdateSourceCounts(ctx, sourceID, len(pages), len(chunks), len(chunks), truncated, coveragePct); err != nil {
		return err
	}

	return ing.store.UpdateSourceStatus(ctx, sourceID, store.StatusReady, "")
}

// chunkAll chunks every page and applies the hard max_chunks_per_source
// cap, reporting whether truncation occurred and the pre-truncation count
// (for coverage_pct).
func (ing *Ingestor) chunkAll(pages []Page) ([]candidate, bool, int) {
	cfg := splitConfig{charBudget: ing.cfg.CharBudget, charOverlap: ing.cfg.CharOverlap}

	var all []candidate
	for _, p := range pages {
		all = append(all, chunkPage(p.Number, p.Section, p.Content, cfg)...)
	}

	if len(all) > ing.cfg.MaxChunks {
		return all[:ing.cfg.MaxChunks], true, len(all)
	}
	return all, false, len(all)
}

func jittered(d time.Duration) time.Duration {
	jitter := time.Duration(rand.Int63n(int64(d) / 2))
	return d + jitter
}
