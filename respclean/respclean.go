// Package respclean strips markdown artifacts a generator sometimes
// leaves in an otherwise plain-text answer.
//
// Built on regexp/strings rather than a markdown library: the task is
// narrowly "strip a few known artifact shapes" from already-generated
// text, not parse or render markdown, so pulling in a full markdown
// parser would be solving a different problem than the one here.
package respclean

import (
	"regexp"
	"strings"
)

var (
	headerPattern   = regexp.MustCompile(`(?m)^#{1,6}\s+`)
	ruleLinePattern = regexp.MustCompile(`(?m)^[\*\-=]{3,}\s*$`)
	blankRunPattern = regexp.MustCompile(`\n{3,}`)
)

// Clean removes markdown headers and horizontal-rule lines, collapses
// runs of 3+ newlines to a single blank line, and trims surrounding
// whitespace.
func Clean(text string) string {
	out := headerPattern.ReplaceAllString(text, "")
	out = ruleLinePattern.ReplaceAllString(out, "")
	out = blankRunPattern.ReplaceAllString(out, "\n\n")
	return strings.TrimSpace(out)
}
