// Package prompt builds the final grounding-only prompt sent to the
// generator, combining a fixed rule set with query-type-specific guidance.
package prompt

import (
	"fmt"
	"strings"

	"github.com/bbiangul/ragcore/query"
)

const baseInstruction = `You are an expert technical assistant. Answer the user's question using ONLY the provided context.
CRITICAL RULES:
1. Use ONLY information from the context - never use external knowledge
2. Cite sources using reference numbers [1], [2], etc.
3. If information is not in context, say "I don't know"
4. Provide comprehensive, well-structured answers
5. When multiple sources agree, synthesize the information
6. Mention relevance scores when information quality varies significantly
`

var typeInstructions = map[query.Type]string{
	query.TypeProcedural:   "Focus on step-by-step procedures and processes. Number the steps clearly.",
	query.TypeDefinitional: "Provide clear, comprehensive definitions with examples if available.",
	query.TypeTroubleshoot: "Focus on problem identification and solution steps. Prioritize actionable advice.",
	query.TypeLocational:   "Specify exact locations, paths, or positions mentioned in the context.",
	query.TypeGeneral:      "Provide a comprehensive answer addressing all aspects of the question.",
}

// Build assembles the final prompt from the original question, its
// classified Type, and the already-truncated context text.
func Build(original string, queryType query.Type, contextText string) string {
	instruction, ok := typeInstructions[queryType]
	if !ok {
		instruction = typeInstructions[query.TypeGeneral]
	}

	return fmt.Sprintf(
		"%sQUERY TYPE: %s\nSPECIFIC GUIDANCE: %s\n\nCONTEXT:\n%s\n\nQUESTION: %s\n\nANSWER:",
		baseInstruction, capitalize(string(queryType)), instruction, contextText, original,
	)
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
