package ragcore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/bbiangul/ragcore/answer"
	"github.com/bbiangul/ragcore/bm25"
	ragcontext "github.com/bbiangul/ragcore/context"
	"github.com/bbiangul/ragcore/cache"
	"github.com/bbiangul/ragcore/embedclient"
	"github.com/bbiangul/ragcore/errs"
	"github.com/bbiangul/ragcore/generator"
	"github.com/bbiangul/ragcore/ingest"
	"github.com/bbiangul/ragcore/parser"
	"github.com/bbiangul/ragcore/prompt"
	"github.com/bbiangul/ragcore/query"
	"github.com/bbiangul/ragcore/rank"
	"github.com/bbiangul/ragcore/rerank"
	"github.com/bbiangul/ragcore/respclean"
	"github.com/bbiangul/ragcore/retrieval"
	"github.com/bbiangul/ragcore/store"
)

// Engine is the entry point for the document-grounded question-answering
// pipeline: ingestion through to a synthesized, cited answer.
type Engine interface {
	// Ingest extracts, chunks, embeds, and indexes a source file, returning
	// its source id. Ingesting a path whose content hash already belongs to
	// a ready source returns Duplicate.
	Ingest(ctx context.Context, path string) (int64, error)

	// Query runs a question through classification, hybrid retrieval,
	// fusion, reranking, and (unless abstained) generation.
	Query(ctx context.Context, question string, opts ...QueryOption) (*Answer, error)

	// Refresh re-extracts and re-chunks an existing source in place,
	// replacing its chunks without changing its id.
	Refresh(ctx context.Context, sourceID int64, path string) error

	// Delete removes a source and all of its chunks.
	Delete(ctx context.Context, sourceID int64) error

	// Store returns the underlying chunk store for diagnostic access.
	Store() *store.Store

	// Close cleanly shuts down the engine.
	Close() error
}

// Answer is the result of a Query call.
type Answer struct {
	Text          string
	Sources       []Source
	Abstained     bool
	Clarification string
	QueryType     query.Type
	Stats         SearchStats
}

// Source is a provenance-annotated passage backing an Answer.
type Source struct {
	ChunkID    int64
	SourceID   int64
	SourceName string
	PageNumber int
	Section    string
	Content    string
	Score      float64
}

// SearchStats surfaces pipeline diagnostics alongside an Answer.
type SearchStats struct {
	CandidatesDense    int
	CandidatesLexical  int
	CandidatesFused    int
	CandidatesReranked int
	Profile            Profile
}

// QueryOption configures a single Query call.
type QueryOption func(*queryOptions)

type queryOptions struct {
	profile Profile
	filter  store.Filter
}

// WithProfile selects the retrieval depth/budget/threshold bundle for this
// query. Defaults to ProfileBaseline.
func WithProfile(p Profile) QueryOption {
	return func(o *queryOptions) { o.profile = p }
}

// WithFilter narrows retrieval to chunks matching filter.
func WithFilter(filter store.Filter) QueryOption {
	return func(o *queryOptions) { o.filter = filter }
}

type engine struct {
	cfg     Config
	store   *store.Store
	cache   *cache.Store
	embed   *embedclient.Client
	gen     *generator.Client
	ingestr *ingest.Ingestor
	parsers *parser.Registry
}

// New builds an Engine from cfg, opening (or creating) its backing store.
func New(cfg Config) (Engine, error) {
	if cfg.EmbeddingDim == 0 {
		cfg = DefaultConfig()
	}

	dbPath := cfg.resolveDBPath()
	s, err := store.New(dbPath, cfg.EmbeddingDim)
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}

	cacheStore := cache.New(nil, cfg.cacheTTLOverrides())

	embed := embedclient.New(embedclient.Config{
		BaseURL:     cfg.Embedding.BaseURL,
		Model:       cfg.Embedding.Model,
		APIKey:      cfg.Embedding.APIKey,
		Dim:         cfg.EmbeddingDim,
		Concurrency: cfg.EmbeddingConcurrency,
		BatchSize:   cfg.EmbeddingBatchSize,
		Retries:     cfg.EmbeddingRetries,
	}, cacheStore)

	gen := generator.New(generator.Config{
		BaseURL: cfg.Generator.BaseURL,
		Model:   cfg.Generator.Model,
		APIKey:  cfg.Generator.APIKey,
	}, cacheStore)

	ingestr := ingest.New(s, embed, ingest.Config{
		CharBudget:  cfg.ChunkSize,
		CharOverlap: cfg.ChunkOverlap,
		MaxChunks:   cfg.MaxChunksPerSource,
	})

	return &engine{
		cfg:     cfg,
		store:   s,
		cache:   cacheStore,
		embed:   embed,
		gen:     gen,
		ingestr: ingestr,
		parsers: parser.NewRegistry(),
	}, nil
}

func (e *engine) Store() *store.Store { return e.store }

func (e *engine) Close() error { return e.store.Close() }

// Ingest parses path, computes its content hash, and — unless a source with
// the same hash already reached ready — drives it through the ingest state
// machine.
func (e *engine) Ingest(ctx context.Context, path string) (int64, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return 0, errs.Wrap(errs.BadInput, "resolving path", err)
	}

	hash, err := fileHash(absPath)
	if err != nil {
		return 0, errs.Wrap(errs.StoreUnavailable, "hashing file", err)
	}

	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(absPath), "."))
	p, err := e.parsers.Get(ext)
	if err != nil {
		return 0, errs.Wrap(errs.BadInput, "unsupported source format", err)
	}

	filename := filepath.Base(absPath)
	src, err := e.store.UpsertSource(ctx, filename, "file", hash)
	if err != nil {
		// UpsertSource already classifies a ready-duplicate hash as
		// errs.Duplicate; propagate its kind rather than rewrapping it.
		return 0, err
	}

	parsed, err := p.Parse(ctx, absPath)
	if err != nil {
		e.store.UpdateSourceStatus(ctx, src.ID, store.StatusFailed, err.Error())
		return src.ID, errs.Wrap(errs.BadInput, "parsing source", err)
	}

	pages := sectionsToPages(parsed.Sections)
	if err := e.ingestr.Ingest(ctx, src.ID, pages); err != nil {
		return src.ID, err
	}
	return src.ID, nil
}

// Refresh re-parses path and replaces sourceID's chunks in place.
func (e *engine) Refresh(ctx context.Context, sourceID int64, path string) error {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return errs.Wrap(errs.BadInput, "resolving path", err)
	}

	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(absPath), "."))
	p, err := e.parsers.Get(ext)
	if err != nil {
		return errs.Wrap(errs.BadInput, "unsupported source format", err)
	}

	parsed, err := p.Parse(ctx, absPath)
	if err != nil {
		return errs.Wrap(errs.BadInput, "parsing source", err)
	}

	return e.ingestr.Refresh(ctx, sourceID, sectionsToPages(parsed.Sections))
}

func (e *engine) Delete(ctx context.Context, sourceID int64) error {
	if err := e.store.DeleteSource(ctx, sourceID); err != nil {
		return errs.Wrap(errs.StoreUnavailable, "deleting source", err)
	}
	return nil
}

// Query runs the full retrieval-through-generation pipeline: normalize and
// classify, retrieve dense and then lexical candidates, fuse via RRF,
// deduplicate, rerank, select for diversity via MMR, check the abstain
// gate, assemble context, build a prompt, and generate.
func (e *engine) Query(ctx context.Context, question string, opts ...QueryOption) (*Answer, error) {
	if strings.TrimSpace(question) == "" {
		return nil, errs.ErrEmptyQuery
	}

	o := &queryOptions{profile: ProfileBaseline}
	for _, opt := range opts {
		opt(o)
	}
	depth := e.cfg.depthFor(o.profile)

	qc := query.Process(question)

	stats := SearchStats{Profile: o.profile}

	dense := retrieval.NewDenseRetriever(e.embed, e.store)
	denseCandidates, err := dense.Retrieve(ctx, qc.Expanded, depth.Candidates, o.filter, 0)
	if err != nil && !errs.IsTransient(err) {
		slog.Warn("query: dense retrieval failed, continuing lexical-only", "error", err)
		denseCandidates = nil
	}
	stats.CandidatesDense = len(denseCandidates)

	corpusStats, err := bm25.BuildStats(ctx, e.store, e.cache)
	var lexicalCandidates []retrieval.Candidate
	if err != nil {
		slog.Warn("query: bm25 corpus stats unavailable, skipping lexical path", "error", err)
	} else {
		scorer := bm25.NewScorer(corpusStats)
		lexical := retrieval.NewLexicalScorer(e.store, scorer)
		lexicalCandidates, err = lexical.Retrieve(ctx, qc, depth.Candidates)
		if err != nil {
			slog.Warn("query: lexical retrieval failed, continuing dense-only", "error", err)
			lexicalCandidates = nil
		}
	}
	stats.CandidatesLexical = len(lexicalCandidates)

	if len(denseCandidates) == 0 && len(lexicalCandidates) == 0 {
		return e.abstainAnswer(qc, "no results", stats), nil
	}

	fused := rank.Fuse(denseCandidates, lexicalCandidates, rank.FusionRRF)
	fused = rank.Deduplicate(fused)
	stats.CandidatesFused = len(fused)

	reranker := rerank.New(nil, rerank.DefaultWeights)
	ranked := reranker.Rerank(ctx, question, fused)
	ranked = rerank.SelectMMR(ranked, depth.TopK)
	stats.CandidatesReranked = len(ranked)

	thresholds := answer.Thresholds{
		MinSimilarity: e.cfg.minSimilarityFor(o.profile),
		MinResults:    e.cfg.MinResults,
		MinHybrid:     e.cfg.MinHybrid,
	}
	decision := answer.ShouldAbstain(ranked, thresholds)
	if decision.Abstain {
		return e.abstainAnswer(qc, decision.Reason, stats), nil
	}

	budget := e.cfg.contextBudgetFor(o.profile)
	contextText, sections := ragcontext.Assemble(ranked, budget)

	builtPrompt := prompt.Build(question, qc.Type, contextText)

	scope := cache.ScopeResponse
	if o.profile == ProfileComprehensive {
		scope = cache.ScopeComprehensiveResp
	}
	raw, err := e.gen.Generate(ctx, builtPrompt, qc.Type, scope)
	if err != nil {
		return &Answer{
			Text:      "",
			Sources:   sourcesFromSections(ranked, sections),
			QueryType: qc.Type,
			Stats:     stats,
		}, err
	}

	return &Answer{
		Text:      respclean.Clean(raw),
		Sources:   sourcesFromSections(ranked, sections),
		QueryType: qc.Type,
		Stats:     stats,
	}, nil
}

func (e *engine) abstainAnswer(qc query.Context, reason string, stats SearchStats) *Answer {
	return &Answer{
		Abstained:     true,
		Clarification: answer.ClarificationPrompt(qc.Raw, reason),
		QueryType:     qc.Type,
		Stats:         stats,
	}
}

func sourcesFromSections(ranked []rerank.Ranked, sections []ragcontext.Section) []Source {
	out := make([]Source, 0, len(sections))
	for _, sec := range sections {
		idx := sec.Index - 1
		if idx < 0 || idx >= len(ranked) {
			continue
		}
		r := ranked[idx]
		out = append(out, Source{
			ChunkID:    r.ChunkID,
			SourceID:   r.SourceID,
			SourceName: sec.SourceName,
			PageNumber: sec.PageNumber,
			Section:    r.Section,
			Content:    sec.Content,
			Score:      r.FinalScore,
		})
	}
	return out
}

func sectionsToPages(sections []parser.Section) []ingest.Page {
	pages := make([]ingest.Page, 0, len(sections))
	for _, s := range sections {
		content := s.Content
		if s.Heading != "" {
			content = s.Heading + "\n" + content
		}
		if strings.TrimSpace(content) == "" {
			continue
		}
		pages = append(pages, ingest.Page{
			Number:  s.PageNumber,
			Section: s.Heading,
			Content: content,
		})
	}
	return pages
}

func fileHash(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
