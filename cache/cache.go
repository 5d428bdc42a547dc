// Package cache provides a keyed, TTL-scoped cache backing the embedding,
// search, and response layers of the pipeline.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// Scope names a cache namespace with its own TTL and size budget, mirroring
// spec.md's embedding/search/response/comprehensive-response scopes.
type Scope string

const (
	ScopeEmbedding         Scope = "embedding"
	ScopeSearch            Scope = "search"
	ScopeResponse          Scope = "response"
	ScopeComprehensiveResp Scope = "comprehensive_response"
)

// DefaultTTLs maps each scope to its default time-to-live, per spec.md §6.
var DefaultTTLs = map[Scope]time.Duration{
	ScopeEmbedding:         24 * time.Hour,
	ScopeSearch:            1 * time.Hour,
	ScopeResponse:          30 * time.Minute,
	ScopeComprehensiveResp: 2 * time.Hour,
}

const defaultSize = 4096

// Store is a set of independent expirable LRU caches, one per scope.
// A miss is always reported as ok=false; Store never returns an error —
// cache/transient failures are swallowed by design (spec.md §7).
type Store struct {
	scopes map[Scope]*expirable.LRU[string, []byte]
}

// New builds a Store with the given per-scope size budgets and an optional
// per-scope TTL override (nil uses DefaultTTLs throughout). A scope absent
// from sizes gets defaultSize entries.
func New(sizes map[Scope]int, ttlOverrides ...map[Scope]time.Duration) *Store {
	var overrides map[Scope]time.Duration
	if len(ttlOverrides) > 0 {
		overrides = ttlOverrides[0]
	}

	s := &Store{scopes: make(map[Scope]*expirable.LRU[string, []byte])}
	for _, scope := range []Scope{ScopeEmbedding, ScopeSearch, ScopeResponse, ScopeComprehensiveResp} {
		size := defaultSize
		if sz, ok := sizes[scope]; ok && sz > 0 {
			size = sz
		}
		ttl := DefaultTTLs[scope]
		if overrides != nil {
			if t, ok := overrides[scope]; ok && t > 0 {
				ttl = t
			}
		}
		s.scopes[scope] = expirable.NewLRU[string, []byte](size, nil, ttl)
	}
	return s
}

// Get looks up a value by scope and key.
func (s *Store) Get(scope Scope, key string) ([]byte, bool) {
	c, ok := s.scopes[scope]
	if !ok {
		return nil, false
	}
	return c.Get(key)
}

// Set stores a value under scope and key, using that scope's TTL.
func (s *Store) Set(scope Scope, key string, value []byte) {
	c, ok := s.scopes[scope]
	if !ok {
		return
	}
	c.Add(key, value)
}

// Len reports the number of live entries in a scope, for diagnostics.
func (s *Store) Len(scope Scope) int {
	c, ok := s.scopes[scope]
	if !ok {
		return 0
	}
	return c.Len()
}

// Key hashes one or more components into a stable cache key. Mirrors the
// amanmcp CachedEmbedder's "text\x00model" SHA256 convention, generalized
// to an arbitrary number of parts joined by NUL.
func Key(parts ...string) string {
	h := sha256.New()
	for i, p := range parts {
		if i > 0 {
			h.Write([]byte{0})
		}
		h.Write([]byte(p))
	}
	return hex.EncodeToString(h.Sum(nil))
}
