package respclean

import "testing"

func TestCleanStripsHeaders(t *testing.T) {
	got := Clean("## Overview\nSome text.")
	if got != "Overview\nSome text." {
		t.Errorf("got %q", got)
	}
}

func TestCleanStripsRuleLines(t *testing.T) {
	got := Clean("Before\n---\nAfter")
	if got != "Before\n\nAfter" {
		t.Errorf("got %q", got)
	}
}

func TestCleanCollapsesBlankRuns(t *testing.T) {
	got := Clean("a\n\n\n\n\nb")
	if got != "a\n\nb" {
		t.Errorf("got %q", got)
	}
}

func TestCleanTrimsWhitespace(t *testing.T) {
	got := Clean("   padded text   \n")
	if got != "padded text" {
		t.Errorf("got %q", got)
	}
}
