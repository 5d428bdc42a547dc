package ingest

import (
	"regexp"
	"strings"
)

// charBudget and charOverlap bound each flat chunk; unlike the teacher's
// token-estimated hierarchical chunker, these are plain character counts
// against a character-budgeted spec, and chunks here have no parent/child
// relationship — ordinal position alone orders them within a source.
const (
	defaultCharBudget  = 600
	defaultCharOverlap = 120
)

const (
	minDefinitionChars = 80
	maxDefinitionChars = 180
)

// definitionPattern matches a short "Term: explanation" or "Term - explanation"
// line, the shape a glossary entry or inline definition typically takes.
var definitionPattern = regexp.MustCompile(`^[A-Z][A-Za-z0-9 /]{1,40}[:\-–]\s+.{10,}$`)

// pageBoilerplatePattern matches a standalone running header/footer line
// like "Page 3" or "Page 12 of 40".
var pageBoilerplatePattern = regexp.MustCompile(`(?i)^\s*page\s+\d+(\s+of\s+\d+)?\s*$`)

// bareNumberPattern matches a line that is only a page number.
var bareNumberPattern = regexp.MustCompile(`^\s*\d+\s*$`)

// excessiveBlankLines collapses 3+ consecutive newlines to a single
// paragraph break.
var excessiveBlankLines = regexp.MustCompile(`\n{3,}`)

// candidate is a chunk before it has a store-assigned ID or embedding.
type candidate struct {
	pageNumber   int
	section      string
	content      string
	isDefinition bool
}

// splitConfig controls chunkPage's fragment size.
type splitConfig struct {
	charBudget  int
	charOverlap int
}

func (c splitConfig) withDefaults() splitConfig {
	if c.charBudget == 0 {
		c.charBudget = defaultCharBudget
	}
	if c.charOverlap == 0 {
		c.charOverlap = defaultCharOverlap
	}
	return c
}

// chunkPage splits one page's text into content candidates sized to
// charBudget with charOverlap of trailing context carried into the next
// fragment, breaking at paragraph boundaries first, sentence boundaries
// when a paragraph alone exceeds the budget, and word boundaries when a
// single sentence exceeds it. Any line recognized as a
// short definition is additionally emitted as its own micro-chunk,
// appended after the page's regular fragments.
func chunkPage(pageNumber int, section, text string, cfg splitConfig) []candidate {
	cfg = cfg.withDefaults()
	text = preprocessText(text)

	var out []candidate
	for _, frag := range splitFragments(text, cfg.charBudget, cfg.charOverlap) {
		out = append(out, candidate{pageNumber: pageNumber, section: section, content: frag})
	}
	out = append(out, definitionMicrochunks(pageNumber, section, text)...)
	return out
}

// preprocessText normalizes a page's raw text before chunking: trailing
// whitespace is trimmed off each line, running-header/footer lines and
// bare page-number lines are dropped, and runs of 3+ newlines (two or more
// blank lines) collapse to a single paragraph break. Paragraph ("\n\n") and line ("\n")
// structure is otherwise preserved since splitFragments and
// definitionMicrochunks both split on it.
func preprocessText(text string) string {
	lines := strings.Split(text, "\n")
	kept := make([]string, 0, len(lines))
	for _, line := range lines {
		trimmed := strings.TrimRight(line, " \t\r")
		if pageBoilerplatePattern.MatchString(trimmed) || bareNumberPattern.MatchString(trimmed) {
			continue
		}
		kept = append(kept, trimmed)
	}
	out := strings.Join(kept, "\n")
	out = excessiveBlankLines.ReplaceAllString(out, "\n\n")
	return strings.TrimSpace(out)
}

func definitionMicrochunks(pageNumber int, section, text string) []candidate {
	var out []candidate
	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		n := len(trimmed)
		if n < minDefinitionChars || n > maxDefinitionChars {
			continue
		}
		if definitionPattern.MatchString(trimmed) {
			out = append(out, candidate{pageNumber: pageNumber, section: section, content: trimmed, isDefinition: true})
		}
	}
	return out
}

func splitFragments(text string, budget, overlap int) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if len(text) <= budget {
		return []string{text}
	}

	paragraphs := splitParagraphs(text)
	var fragments []string
	var current strings.Builder
	overlapText := ""

	flush := func() {
		if current.Len() == 0 {
			return
		}
		fragments = append(fragments, strings.TrimSpace(current.String()))
		overlapText = extractOverlap(current.String(), overlap)
		current.Reset()
	}

	for _, para := range paragraphs {
		if len(para) > budget {
			flush()
			sentenceFrags := splitBySentences(para, overlapText, budget, overlap)
			fragments = append(fragments, sentenceFrags...)
			if len(sentenceFrags) > 0 {
				overlapText = extractOverlap(sentenceFrags[len(sentenceFrags)-1], overlap)
			}
			continue
		}

		if current.Len()+len(para) > budget && current.Len() > 0 {
			flush()
			if overlapText != "" {
				current.WriteString(overlapText)
				current.WriteString("\n\n")
			}
		}

		if current.Len() > 0 {
			current.WriteString("\n\n")
		}
		current.WriteString(para)
	}
	flush()

	return fragments
}

func splitBySentences(text, initialOverlap string, budget, overlap int) []string {
	var sentences []string
	for _, sent := range splitSentences(text) {
		// A sentence longer than the budget is cut at word boundaries.
		for len(sent) > budget {
			cut := strings.LastIndexByte(sent[:budget], ' ')
			if cut <= 0 {
				cut = budget
			}
			sentences = append(sentences, strings.TrimSpace(sent[:cut]))
			sent = strings.TrimSpace(sent[cut:])
		}
		if sent != "" {
			sentences = append(sentences, sent)
		}
	}
	var fragments []string
	var current strings.Builder

	if initialOverlap != "" {
		current.WriteString(initialOverlap)
		current.WriteString(" ")
	}

	for _, sent := range sentences {
		if current.Len()+len(sent) > budget && current.Len() > 0 {
			fragments = append(fragments, strings.TrimSpace(current.String()))
			ov := extractOverlap(current.String(), overlap)
			current.Reset()
			if ov != "" {
				current.WriteString(ov)
				current.WriteString(" ")
			}
		}
		if current.Len() > 0 {
			current.WriteString(" ")
		}
		current.WriteString(sent)
	}
	if current.Len() > 0 {
		fragments = append(fragments, strings.TrimSpace(current.String()))
	}
	return fragments
}

func splitParagraphs(text string) []string {
	raw := strings.Split(text, "\n\n")
	out := make([]string, 0, len(raw))
	for _, p := range raw {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// splitSentences is a simple sentence tokenizer: it splits on
// ./?/! followed by whitespace or end of string.
func splitSentences(text string) []string {
	var sentences []string
	var cur strings.Builder

	runes := []rune(text)
	for i := 0; i < len(runes); i++ {
		cur.WriteRune(runes[i])
		if runes[i] == '.' || runes[i] == '?' || runes[i] == '!' {
			if i+1 >= len(runes) || runes[i+1] == ' ' || runes[i+1] == '\n' || runes[i+1] == '\t' {
				if s := strings.TrimSpace(cur.String()); s != "" {
					sentences = append(sentences, s)
				}
				cur.Reset()
			}
		}
	}
	if s := strings.TrimSpace(cur.String()); s != "" {
		sentences = append(sentences, s)
	}
	return sentences
}

// extractOverlap returns the trailing portion of text with at most
// maxChars characters, trimmed to a word boundary.
func extractOverlap(text string, maxChars int) string {
	text = strings.TrimSpace(text)
	if len(text) <= maxChars || maxChars <= 0 {
		return text
	}
	start := len(text) - maxChars
	if idx := strings.IndexByte(text[start:], ' '); idx >= 0 {
		start += idx + 1
	}
	return text[start:]
}
