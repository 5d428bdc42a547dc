package cache

import "testing"

func TestStoreGetSetMiss(t *testing.T) {
	s := New(nil)

	if _, ok := s.Get(ScopeEmbedding, "missing"); ok {
		t.Fatalf("expected miss for unset key")
	}

	s.Set(ScopeEmbedding, "k1", []byte("v1"))
	got, ok := s.Get(ScopeEmbedding, "k1")
	if !ok {
		t.Fatalf("expected hit after Set")
	}
	if string(got) != "v1" {
		t.Errorf("got %q, want %q", got, "v1")
	}
}

func TestStoreScopesIndependent(t *testing.T) {
	s := New(nil)
	s.Set(ScopeSearch, "k", []byte("search-value"))

	if _, ok := s.Get(ScopeResponse, "k"); ok {
		t.Fatalf("expected response scope to be unaffected by search scope write")
	}
}

func TestKeyStableAndDistinguishesParts(t *testing.T) {
	a := Key("hello", "model-a")
	b := Key("hello", "model-a")
	if a != b {
		t.Errorf("Key not stable: %q != %q", a, b)
	}

	c := Key("hello", "model-b")
	if a == c {
		t.Errorf("Key collided across different model components")
	}

	// Key("ab", "c") must differ from Key("a", "bc") despite the same
	// concatenation, since parts are NUL-separated rather than joined.
	d := Key("ab", "c")
	e := Key("a", "bc")
	if d == e {
		t.Errorf("Key did not distinguish part boundaries")
	}
}

func TestUnknownScopeIsNoop(t *testing.T) {
	s := New(nil)
	s.Set(Scope("bogus"), "k", []byte("v"))
	if _, ok := s.Get(Scope("bogus"), "k"); ok {
		t.Errorf("expected unknown scope to never hit")
	}
}
