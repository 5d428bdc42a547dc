package query

import "testing"

func TestProcessNormalizesErrorCode(t *testing.T) {
	ctx := Process("what does error m8401 mean")
	if !containsAny(ctx.Normalized, "M8401") {
		t.Errorf("expected normalized error code M8401, got %q", ctx.Normalized)
	}
}

func TestProcessNormalizesAlias(t *testing.T) {
	ctx := Process("how do I install ol cds")
	if !containsAny(ctx.Normalized, "OpenLab CDS") {
		t.Errorf("expected alias expansion to OpenLab CDS, got %q", ctx.Normalized)
	}
}

func TestProcessNormalizesVersion(t *testing.T) {
	ctx := Process("upgrade to version 2.8 now")
	if !containsAny(ctx.Normalized, "v2.8") {
		t.Errorf("expected version canonicalized to v2.8, got %q", ctx.Normalized)
	}
}

func TestClassifyProcedural(t *testing.T) {
	if got := classify("how to install the pump"); got != TypeProcedural {
		t.Errorf("classify = %s, want procedural", got)
	}
}

func TestClassifyDefinitional(t *testing.T) {
	if got := classify("what is a retention time"); got != TypeDefinitional {
		t.Errorf("classify = %s, want definitional", got)
	}
}

func TestClassifyTroubleshooting(t *testing.T) {
	if got := classify("I see error M8401 on startup"); got != TypeTroubleshoot {
		t.Errorf("classify = %s, want troubleshooting", got)
	}
}

func TestClassifyLocational(t *testing.T) {
	if got := classify("where is the injector valve"); got != TypeLocational {
		t.Errorf("classify = %s, want locational", got)
	}
}

func TestClassifyGeneralFallback(t *testing.T) {
	if got := classify("tell me about retention"); got != TypeGeneral {
		t.Errorf("classify = %s, want general", got)
	}
}

func TestShouldExpandQuotedPhraseNeverExpands(t *testing.T) {
	if shouldExpand(`"exact phrase here"`, []string{"exact", "phrase", "here"}) {
		t.Error("expected quoted phrase to skip expansion")
	}
}

func TestShouldExpandShortQuerySkips(t *testing.T) {
	if shouldExpand("gc error", []string{"gc", "error"}) {
		t.Error("expected <3-term query to skip expansion")
	}
}

func TestShouldExpandLongQuerySkips(t *testing.T) {
	terms := []string{"a", "b", "c", "d", "e", "f", "g", "h", "i"}
	if shouldExpand("a b c d e f g h i", terms) {
		t.Error("expected >8-term query to skip expansion")
	}
}

func TestShouldExpandTechnicalTermSkips(t *testing.T) {
	terms := []string{"api", "rate", "limit", "configuration"}
	if shouldExpand("what is the api rate limit configuration", terms) {
		t.Error("expected query containing a technical-exact term to skip expansion")
	}
}

func TestShouldExpandSpecificQuestionPatternSkips(t *testing.T) {
	if shouldExpand("what is the detector", []string{"detector"}) {
		t.Error("expected narrow 'what is x' pattern to skip expansion")
	}
}

func TestExpandAddsSynonyms(t *testing.T) {
	got := expand("install now")
	if !containsAny(got, "installation") {
		t.Errorf("expected synonym expansion, got %q", got)
	}
}

func TestExtractKeyTermsDropsStopWords(t *testing.T) {
	terms := extractKeyTerms("what is the error on the gc")
	for _, term := range terms {
		if stopWords[term] {
			t.Errorf("expected stop word %q to be dropped", term)
		}
	}
}
