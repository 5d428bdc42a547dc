package ragcore

import (
	"os"
	"path/filepath"
	"time"

	"github.com/bbiangul/ragcore/cache"
)

// Profile names a tagged configuration bundle selecting candidate depth,
// context budget, and abstain strictness in one switch, collapsing what
// would otherwise be a basic -> improved -> advanced -> comprehensive
// inheritance chain of near-duplicate pipelines.
type Profile string

const (
	ProfileBaseline      Profile = "baseline"
	ProfileEnhanced      Profile = "enhanced"
	ProfileAdvanced      Profile = "advanced"
	ProfileComprehensive Profile = "comprehensive"
)

// RetrievalDepth is the per-profile top_k (final results) and candidates
// (pre-fusion pool size per ranking).
type RetrievalDepth struct {
	TopK       int
	Candidates int
}

// DefaultRetrievalDepths maps each profile to its candidate pool and
// final result depth.
var DefaultRetrievalDepths = map[Profile]RetrievalDepth{
	ProfileBaseline:      {TopK: 8, Candidates: 20},
	ProfileEnhanced:      {TopK: 8, Candidates: 20},
	ProfileAdvanced:      {TopK: 8, Candidates: 30},
	ProfileComprehensive: {TopK: 20, Candidates: 60},
}

// LLMConfig configures a single model-serving endpoint (embedding or chat
// generation), both assumed Ollama-native-compatible.
type LLMConfig struct {
	BaseURL string `json:"base_url" yaml:"base_url"`
	Model   string `json:"model" yaml:"model"`
	APIKey  string `json:"api_key,omitempty" yaml:"api_key,omitempty"`
}

// Config holds every tunable of the ragcore pipeline. It is built once per
// engine instance; there is no mid-pipeline mutation.
type Config struct {
	// DBPath is the full path to the SQLite database file. If empty,
	// defaults to ~/.ragcore/<DBName>.db.
	DBPath string `json:"db_path" yaml:"db_path"`
	DBName string `json:"db_name" yaml:"db_name"`
	// StorageDir is "home" (default) or "local" (current working directory).
	StorageDir string `json:"storage_dir" yaml:"storage_dir"`

	Embedding LLMConfig `json:"embedding" yaml:"embedding"`
	Generator LLMConfig `json:"generator" yaml:"generator"`

	// Chunking
	ChunkSize          int `json:"chunk_size" yaml:"chunk_size"`
	ChunkOverlap       int `json:"chunk_overlap" yaml:"chunk_overlap"`
	MaxChunksPerSource int `json:"max_chunks_per_source" yaml:"max_chunks_per_source"`

	// Embedding (D/W/B/R of spec.md §6)
	EmbeddingDim         int `json:"embedding_dim" yaml:"embedding_dim"`
	EmbeddingConcurrency int `json:"embedding_concurrency" yaml:"embedding_concurrency"`
	EmbeddingBatchSize   int `json:"embedding_batch_size" yaml:"embedding_batch_size"`
	EmbeddingRetries     int `json:"embedding_retries" yaml:"embedding_retries"`

	// Cache TTLs
	CacheTTLEmbedding         time.Duration `json:"cache_ttl_embedding" yaml:"cache_ttl_embedding"`
	CacheTTLSearch            time.Duration `json:"cache_ttl_search" yaml:"cache_ttl_search"`
	CacheTTLResponse          time.Duration `json:"cache_ttl_response" yaml:"cache_ttl_response"`
	CacheTTLComprehensiveResp time.Duration `json:"cache_ttl_comprehensive_response" yaml:"cache_ttl_comprehensive_response"`

	// Retrieval depths by profile; defaults to DefaultRetrievalDepths if nil.
	RetrievalDepths map[Profile]RetrievalDepth `json:"-" yaml:"-"`

	// Fusion
	RRFK           int     `json:"rrf_k" yaml:"rrf_k"`
	WeightedDense  float64 `json:"weighted_dense" yaml:"weighted_dense"`
	WeightedLexical float64 `json:"weighted_lexical" yaml:"weighted_lexical"`

	// BM25
	BM25K1 float64 `json:"bm25_k1" yaml:"bm25_k1"`
	BM25B  float64 `json:"bm25_b" yaml:"bm25_b"`

	// MMR
	MMRLambda float64 `json:"mmr_lambda" yaml:"mmr_lambda"`

	// Dedup
	DedupMaxPerSource      int     `json:"dedup_max_per_source" yaml:"dedup_max_per_source"`
	DedupOverlapThreshold  float64 `json:"dedup_overlap_threshold" yaml:"dedup_overlap_threshold"`

	// Abstain
	MinSimilarity             float64 `json:"min_similarity" yaml:"min_similarity"`
	MinSimilarityComprehensive float64 `json:"min_similarity_comprehensive" yaml:"min_similarity_comprehensive"`
	MinResults                int     `json:"min_results" yaml:"min_results"`
	MinHybrid                 float64 `json:"min_hybrid" yaml:"min_hybrid"`

	// Context budgets (characters), by profile: default and comprehensive.
	ContextBudget             int `json:"context_budget" yaml:"context_budget"`
	ContextBudgetComprehensive int `json:"context_budget_comprehensive" yaml:"context_budget_comprehensive"`
}

// DefaultConfig returns a Config with the values pinned by spec.md §6,
// pointed at a local Ollama-compatible server.
func DefaultConfig() Config {
	return Config{
		DBName:     "ragcore",
		StorageDir: "home",
		Embedding: LLMConfig{
			BaseURL: "http://localhost:11434",
			Model:   "nomic-embed-text",
		},
		Generator: LLMConfig{
			BaseURL: "http://localhost:11434",
			Model:   "llama3.1:8b",
		},

		ChunkSize:          600,
		ChunkOverlap:       120,
		MaxChunksPerSource: 2000,

		EmbeddingDim:         1024,
		EmbeddingConcurrency: 10,
		EmbeddingBatchSize:   50,
		EmbeddingRetries:     3,

		CacheTTLEmbedding:         24 * time.Hour,
		CacheTTLSearch:            1 * time.Hour,
		CacheTTLResponse:          30 * time.Minute,
		CacheTTLComprehensiveResp: 2 * time.Hour,

		RRFK:            60,
		WeightedDense:   0.7,
		WeightedLexical: 0.3,

		BM25K1: 1.5,
		BM25B:  0.75,

		MMRLambda: 0.6,

		DedupMaxPerSource:     3,
		DedupOverlapThreshold: 0.85,

		MinSimilarity:              0.3,
		MinSimilarityComprehensive: 0.2,
		MinResults:                 1,
		MinHybrid:                  0.2,

		ContextBudget:              4000,
		ContextBudgetComprehensive: 12000,
	}
}

// depthFor resolves the retrieval depth for a profile, falling back to
// DefaultRetrievalDepths if the config carries no override.
func (c Config) depthFor(p Profile) RetrievalDepth {
	if c.RetrievalDepths != nil {
		if d, ok := c.RetrievalDepths[p]; ok {
			return d
		}
	}
	if d, ok := DefaultRetrievalDepths[p]; ok {
		return d
	}
	return DefaultRetrievalDepths[ProfileBaseline]
}

// contextBudgetFor resolves the character budget for a profile.
func (c Config) contextBudgetFor(p Profile) int {
	if p == ProfileComprehensive {
		return c.ContextBudgetComprehensive
	}
	return c.ContextBudget
}

// minSimilarityFor resolves the abstain min_similarity threshold for a profile.
func (c Config) minSimilarityFor(p Profile) float64 {
	if p == ProfileComprehensive {
		return c.MinSimilarityComprehensive
	}
	return c.MinSimilarity
}

// cacheTTLOverrides builds the per-scope TTL override map handed to
// cache.New, so a Config's CacheTTL* fields actually take effect.
func (c Config) cacheTTLOverrides() map[cache.Scope]time.Duration {
	return map[cache.Scope]time.Duration{
		cache.ScopeEmbedding:         c.CacheTTLEmbedding,
		cache.ScopeSearch:            c.CacheTTLSearch,
		cache.ScopeResponse:          c.CacheTTLResponse,
		cache.ScopeComprehensiveResp: c.CacheTTLComprehensiveResp,
	}
}

// resolveDBPath computes the final database path from config fields.
func (c Config) resolveDBPath() string {
	if c.DBPath != "" {
		return c.DBPath
	}

	name := c.DBName
	if name == "" {
		name = "ragcore"
	}

	switch c.StorageDir {
	case "local", "cwd":
		return name + ".db"
	default:
		home, err := os.UserHomeDir()
		if err != nil {
			return name + ".db"
		}
		return filepath.Join(home, ".ragcore", name+".db")
	}
}
