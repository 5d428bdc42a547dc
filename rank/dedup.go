package rank

import "strings"

const (
	maxPerSource     = 3
	overlapThreshold = 0.85
	overlapPrefixLen = 500
)

// Deduplicate drops near-duplicate and over-represented candidates from an
// already-ranked fused list: at most maxPerSource results survive per
// source, and a candidate whose leading overlapPrefixLen characters are
// near-identical (Jaccard over whitespace tokens >= overlapThreshold) to an
// already-kept candidate is dropped. Order (and therefore rank) is
// preserved for everything that survives.
func Deduplicate(fused []Fused) []Fused {
	perSource := make(map[int64]int)
	var kept []Fused
	var keptPrefixes []string

	for _, f := range fused {
		if perSource[f.SourceID] >= maxPerSource {
			continue
		}

		prefix := prefixOf(f.Content, overlapPrefixLen)
		duplicate := false
		for _, kp := range keptPrefixes {
			if Jaccard(prefix, kp) >= overlapThreshold {
				duplicate = true
				break
			}
		}
		if duplicate {
			continue
		}

		kept = append(kept, f)
		keptPrefixes = append(keptPrefixes, prefix)
		perSource[f.SourceID]++
	}

	return kept
}

func prefixOf(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

// Jaccard computes token-set similarity over whitespace-split lowercase
// tokens. Exported for reuse by rerank's post-rerank diversity selection.
func Jaccard(a, b string) float64 {
	setA := tokenSet(a)
	setB := tokenSet(b)
	if len(setA) == 0 && len(setB) == 0 {
		return 1.0
	}
	if len(setA) == 0 || len(setB) == 0 {
		return 0.0
	}

	intersection := 0
	for t := range setA {
		if setB[t] {
			intersection++
		}
	}
	union := len(setA) + len(setB) - intersection
	if union == 0 {
		return 0.0
	}
	return float64(intersection) / float64(union)
}

func tokenSet(s string) map[string]bool {
	words := strings.Fields(strings.ToLower(s))
	set := make(map[string]bool, len(words))
	for _, w := range words {
		set[w] = true
	}
	return set
}
