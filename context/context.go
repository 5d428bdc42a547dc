// Package context assembles ranked chunks into a single prompt-ready
// context string, grouped by source and truncated to a character budget.
package context

import (
	"fmt"
	"strings"

	"github.com/bbiangul/ragcore/rerank"
)

// Budget controls how much context text to assemble. Baseline/enhanced/
// advanced profiles use 4000 chars; the comprehensive profile uses 12000.
const (
	DefaultBudget       = 4000
	ComprehensiveBudget = 12000
)

// minKeepFraction is the fraction of a chunk's available length that must
// survive a sentence-boundary truncation before that boundary is trusted;
// below it, truncation falls back to a hard cut with an ellipsis.
const minKeepFraction = 0.6

// boundaryMarkers are tried in order when looking for a natural place to
// end a truncated chunk.
var boundaryMarkers = []string{". ", ":\n", "\n\n"}

// Section is one chunk's contribution to the assembled context, keyed back
// to its position in the ranked slice passed to Assemble.
type Section struct {
	Index      int // 1-based position in the Assemble input, for citation lookup
	SourceName string
	PageNumber int
	Score      float64
	Content    string
}

// sourceGroup collects a source's chunks, in the order they first appear in
// the ranked input, so groups are emitted in that same relative order.
type sourceGroup struct {
	name    string
	entries []groupEntry
}

type groupEntry struct {
	rankedIndex int
	ranked      rerank.Ranked
}

// Assemble groups ranked results by source, sorts each group's chunks by
// final score descending, and emits one "=== SOURCE: name ===" section per
// source containing "[n] (Page p, Relevance: s)\ncontent" blocks, numbered
// sequentially across the whole assembled text for citation. Assembly stops
// once budget characters are used; a block that would overflow the
// remaining budget is truncated at a natural boundary when at least
// minKeepFraction of its available length can be kept, else hard-cut with
// an ellipsis. Returns the joined text and the Sections actually included
// (for citation metadata downstream).
func Assemble(ranked []rerank.Ranked, budget int) (string, []Section) {
	if len(ranked) == 0 {
		return "", nil
	}

	groups := groupBySource(ranked)

	var parts []string
	var sections []Section
	currentLength := 0
	citationNum := 0

	for _, g := range groups {
		if currentLength >= budget {
			break
		}

		sectionHeader := fmt.Sprintf("=== SOURCE: %s ===", g.name)
		var blocks []string
		exhausted := false

		for _, entry := range g.entries {
			citationNum++
			r := entry.ranked

			header := fmt.Sprintf("[%d] (Page %d, Relevance: %.3f)", citationNum, r.PageNumber, r.FinalScore)
			available := budget - currentLength - len(sectionHeader) - len(header) - 50
			if available <= 0 {
				citationNum--
				exhausted = true
				break
			}

			content := r.Content
			if len(content) > available {
				content = truncateAtBoundary(content, available)
			}

			block := header + "\n" + content
			blocks = append(blocks, block)
			sections = append(sections, Section{
				Index:      entry.rankedIndex + 1,
				SourceName: r.SourceName,
				PageNumber: r.PageNumber,
				Score:      r.FinalScore,
				Content:    content,
			})
			currentLength += len(block) + 2

			if currentLength >= budget {
				exhausted = true
				break
			}
		}

		if len(blocks) > 0 {
			part := sectionHeader + "\n" + strings.Join(blocks, "\n\n")
			parts = append(parts, part)
			currentLength += len(sectionHeader) + 2
		}

		if exhausted {
			break
		}
	}

	return strings.Join(parts, "\n\n"), sections
}

// groupBySource buckets ranked entries by SourceName, preserving each
// group's first-appearance order, and sorts each group's entries by
// FinalScore descending.
func groupBySource(ranked []rerank.Ranked) []sourceGroup {
	order := make([]string, 0)
	byName := make(map[string]*sourceGroup)

	for i, r := range ranked {
		g, ok := byName[r.SourceName]
		if !ok {
			order = append(order, r.SourceName)
			g = &sourceGroup{name: r.SourceName}
			byName[r.SourceName] = g
		}
		g.entries = append(g.entries, groupEntry{rankedIndex: i, ranked: r})
	}

	groups := make([]sourceGroup, len(order))
	for i, name := range order {
		g := byName[name]
		sortEntriesByFinalScore(g.entries)
		groups[i] = *g
	}
	return groups
}

func sortEntriesByFinalScore(entries []groupEntry) {
	for i := 1; i < len(entries); i++ {
		for j := i; j > 0 && entries[j].ranked.FinalScore > entries[j-1].ranked.FinalScore; j-- {
			entries[j], entries[j-1] = entries[j-1], entries[j]
		}
	}
}

// truncateAtBoundary cuts content to n characters, preferring to end at the
// last occurrence of a natural boundary marker (trailing whitespace dropped)
// if that keeps at least minKeepFraction of the available length; otherwise
// it hard-cuts at n and appends an ellipsis.
func truncateAtBoundary(content string, n int) string {
	if n <= 0 {
		return ""
	}
	cut := content[:n]

	bestIdx := -1
	for _, marker := range boundaryMarkers {
		idx := strings.LastIndex(cut, marker)
		if idx < 0 {
			continue
		}
		if end := idx + len(marker); end > bestIdx {
			bestIdx = end
		}
	}

	if bestIdx > 0 && float64(bestIdx) > float64(n)*minKeepFraction {
		return strings.TrimRight(cut[:bestIdx], " \n")
	}
	return cut + "..."
}
