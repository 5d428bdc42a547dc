package eval

import (
	"strings"
	"unicode"

	"github.com/bbiangul/ragcore"
)

// normalizeLLMText collapses Unicode whitespace/hyphen variants an LLM tends
// to emit so substring matching against expected facts is reliable.
func normalizeLLMText(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case unicode.IsSpace(r):
			b.WriteByte(' ')
		case r == '‐' || r == '‑' || r == '‒' || r == '–' || r == '—':
			b.WriteByte('-')
		case r == '​' || r == '‌' || r == '‍' || r == '﻿':
			// strip zero-width characters
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// computeAccuracy returns the fraction of expectedFacts found (as a
// substring, modulo space/hyphen normalization) in the answer text. Each
// fact may list pipe-separated alternatives; matching any one counts.
func computeAccuracy(ans *ragcore.Answer, expectedFacts []string) float64 {
	if ans == nil || ans.Text == "" || len(expectedFacts) == 0 {
		return 0
	}

	normalized := normalizeLLMText(strings.ToLower(ans.Text))
	spaceless := strings.ReplaceAll(normalized, " ", "")

	found := 0
	for _, fact := range expectedFacts {
		for _, alt := range strings.Split(fact, "|") {
			alt = strings.TrimSpace(alt)
			if alt == "" {
				continue
			}
			normAlt := normalizeLLMText(strings.ToLower(alt))
			normAltNoSpace := strings.ReplaceAll(normAlt, " ", "")
			if strings.Contains(normalized, normAlt) || strings.Contains(spaceless, normAltNoSpace) {
				found++
				break
			}
		}
	}
	return float64(found) / float64(len(expectedFacts))
}

// computeContextRecall returns the fraction of expectedFacts present
// anywhere in the retrieved sources' content, independent of whether the
// generated answer text happened to mention them. Low recall against high
// accuracy flags a generator citing facts its own retrieval never surfaced.
func computeContextRecall(ans *ragcore.Answer, expectedFacts []string) float64 {
	if ans == nil || len(ans.Sources) == 0 || len(expectedFacts) == 0 {
		return 0
	}

	var corpus strings.Builder
	for _, src := range ans.Sources {
		corpus.WriteString(src.Content)
		corpus.WriteByte(' ')
		corpus.WriteString(src.Section)
		corpus.WriteByte(' ')
	}
	corpusText := normalizeLLMText(strings.ToLower(corpus.String()))

	found := 0
	for _, fact := range expectedFacts {
		for _, alt := range strings.Split(fact, "|") {
			alt = strings.TrimSpace(alt)
			if alt == "" {
				continue
			}
			if strings.Contains(corpusText, normalizeLLMText(strings.ToLower(alt))) {
				found++
				break
			}
		}
	}
	return float64(found) / float64(len(expectedFacts))
}

// computeRelevance scores the fraction of retrieved sources whose content
// shares a meaningful portion of the question's significant words.
func computeRelevance(ans *ragcore.Answer, question string) float64 {
	if ans == nil || len(ans.Sources) == 0 {
		return 0
	}

	words := significantWords(question)
	if len(words) == 0 {
		return 0.5
	}

	relevant := 0
	for _, src := range ans.Sources {
		lower := strings.ToLower(src.Content + " " + src.Section)
		matched := 0
		for _, w := range words {
			if strings.Contains(lower, w) {
				matched++
			}
		}
		if float64(matched)/float64(len(words)) >= 0.3 {
			relevant++
		}
	}
	return float64(relevant) / float64(len(ans.Sources))
}

var stopWords = map[string]bool{
	"the": true, "are": true, "was": true, "were": true, "for": true, "with": true,
	"what": true, "which": true, "who": true, "how": true, "where": true,
	"when": true, "that": true, "this": true, "and": true, "does": true,
}

func significantWords(text string) []string {
	var words []string
	for _, w := range strings.Fields(text) {
		w = strings.Trim(strings.ToLower(w), ".,;:!?\"'()[]")
		if len(w) > 2 && !stopWords[w] {
			words = append(words, w)
		}
	}
	return words
}
