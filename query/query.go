// Package query normalizes, classifies, and selectively expands user
// questions before they reach retrieval.
package query

import (
	"regexp"
	"strings"

	"github.com/bbiangul/ragcore/bm25"
)

// Type classifies a query's intent, used to tune prompt framing and
// generation sampling downstream.
type Type string

const (
	TypeProcedural   Type = "procedural"
	TypeDefinitional Type = "definitional"
	TypeTroubleshoot Type = "troubleshooting"
	TypeLocational   Type = "locational"
	TypeGeneral      Type = "general"
)

// Context is the fully processed form of a raw user question, carrying
// both the original and normalized/expanded variants through the pipeline.
type Context struct {
	Raw        string
	Normalized string
	Expanded   string
	Type       Type
	Terms      []string // key terms, stop words removed, used for BM25/dedup
}

var aliasMap = map[string]string{
	"openlab cds":                "OpenLab CDS",
	"openlab content management": "OpenLab ECM",
	"ol cds":                     "OpenLab CDS",
	"ol ecm":                     "OpenLab ECM",
	"7890b gc":                   "7890B GC",
	"masshunter":                 "MassHunter",
}

var errorCodePattern = regexp.MustCompile(`\b([kmKM])[ -]?(\d{3,6}[A-Z]?)\b`)

var versionPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\bv(\d+(?:\.\d+){0,2})\b`),
	regexp.MustCompile(`(?i)\bver\.?\s*(\d+(?:\.\d+){0,2})\b`),
	regexp.MustCompile(`(?i)\bversion\s+(\d+(?:\.\d+){0,2})\b`),
}

var stopWords = map[string]bool{
	"the": true, "a": true, "an": true, "and": true, "or": true, "but": true,
	"in": true, "on": true, "at": true, "to": true, "for": true, "of": true,
	"with": true, "by": true, "is": true, "are": true, "was": true, "were": true,
	"be": true, "been": true, "have": true, "has": true, "had": true, "do": true,
	"does": true, "did": true, "will": true, "would": true, "could": true,
	"should": true, "may": true, "might": true, "can": true, "this": true,
	"that": true, "these": true, "those": true, "i": true, "you": true, "he": true,
	"she": true, "it": true, "we": true, "they": true, "me": true, "him": true,
	"her": true, "us": true, "them": true,
}

var synonyms = map[string][]string{
	"install":   {"installation", "setup", "configure", "deploy"},
	"error":     {"problem", "issue", "failure", "bug"},
	"configure": {"configuration", "setup", "setting", "config"},
	"connect":   {"connection", "link", "attach", "join"},
	"start":     {"begin", "launch", "run", "execute"},
	"stop":      {"end", "terminate", "halt", "shutdown"},
	"update":    {"upgrade", "modify", "change", "refresh"},
}

var specificQuestionPatterns = []*regexp.Regexp{
	regexp.MustCompile(`^what is (the )?\w+$`),
	regexp.MustCompile(`^where is (the )?\w+$`),
	regexp.MustCompile(`^when did \w+`),
}

var technicalExactTerms = []string{"version", "ip", "url", "api", "id", "uuid", "hash"}

// Process runs the full normalization/classification/expansion pipeline on
// a raw question.
func Process(raw string) Context {
	normalized := normalizeEntities(raw)
	terms := extractKeyTerms(normalized)

	ctx := Context{
		Raw:        raw,
		Normalized: normalized,
		Type:       classify(normalized),
		Terms:      terms,
	}

	if shouldExpand(raw, terms) {
		ctx.Expanded = expand(normalized)
	} else {
		ctx.Expanded = normalized
	}

	return ctx
}

// normalizeEntities canonicalizes known aliases, error codes (e.g. m8401 ->
// M8401), and version mentions (v2.8, version 2.8, ver. 3.6 -> v2.8).
func normalizeEntities(text string) string {
	if text == "" {
		return text
	}

	out := text
	lowered := strings.ToLower(out)
	for alias, canonical := range aliasMap {
		if strings.Contains(lowered, alias) {
			pattern := regexp.MustCompile(`(?i)` + regexp.QuoteMeta(alias))
			out = pattern.ReplaceAllString(out, canonical)
		}
	}

	out = errorCodePattern.ReplaceAllStringFunc(out, func(m string) string {
		sub := errorCodePattern.FindStringSubmatch(m)
		return strings.ToUpper(sub[1]) + strings.ToUpper(sub[2])
	})

	for _, pat := range versionPatterns {
		if loc := pat.FindStringSubmatchIndex(out); loc != nil {
			ver := out[loc[2]:loc[3]]
			out = out[:loc[0]] + "v" + ver + out[loc[1]:]
			break
		}
	}

	return out
}

// extractKeyTerms tokenizes a query and removes stop words, reusing the
// bm25 package's word-boundary tokenizer so retrieval and scoring agree on
// what counts as a term.
func extractKeyTerms(text string) []string {
	tokens := bm25.Tokenize(text)
	out := make([]string, 0, len(tokens))
	for _, t := range tokens {
		if !stopWords[t] {
			out = append(out, t)
		}
	}
	return out
}

// shouldExpand decides whether a query benefits from synonym expansion.
// Only queries with 3 to 8 significant words are expanded; quoted phrases,
// queries naming technical-exact terms, and queries matching a narrow
// question pattern are not.
func shouldExpand(raw string, terms []string) bool {
	if strings.Contains(raw, `"`) {
		return false
	}

	n := len(terms)
	if n < 3 || n > 8 {
		return false
	}

	lower := strings.ToLower(raw)
	for _, term := range technicalExactTerms {
		if strings.Contains(lower, term) {
			return false
		}
	}

	for _, pat := range specificQuestionPatterns {
		if pat.MatchString(lower) {
			return false
		}
	}

	return true
}

// expand appends the known synonyms of matching words after the original
// query, each at most once, preserving the original query as a prefix so
// exact-match signal is not lost.
func expand(text string) string {
	words := strings.Fields(strings.ToLower(text))
	out := append([]string(nil), words...)
	seen := make(map[string]bool, len(words))
	for _, w := range words {
		seen[w] = true
	}
	for _, w := range words {
		for _, syn := range synonyms[w] {
			if !seen[syn] {
				seen[syn] = true
				out = append(out, syn)
			}
		}
	}
	return strings.Join(out, " ")
}

// classify buckets a query into a Type by keyword presence, checked in a
// fixed priority order: procedural, definitional, troubleshooting,
// locational, else general.
func classify(text string) Type {
	lower := strings.ToLower(text)

	switch {
	case containsAny(lower, "how to", "how do", "steps", "process", "procedure"):
		return TypeProcedural
	case containsAny(lower, "what is", "what are", "define", "definition"):
		return TypeDefinitional
	case containsAny(lower, "error", "problem", "issue", "troubleshoot", "fix"):
		return TypeTroubleshoot
	case containsAny(lower, "where", "location", "find"):
		return TypeLocational
	default:
		return TypeGeneral
	}
}

func containsAny(text string, candidates ...string) bool {
	for _, c := range candidates {
		if strings.Contains(text, c) {
			return true
		}
	}
	return false
}
