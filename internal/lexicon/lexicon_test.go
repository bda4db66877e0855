package lexicon

import (
	"errors"
	"testing"

	"github.com/kailas-cloud/toxfilter/internal/domain"
	"github.com/kailas-cloud/toxfilter/internal/domain/severity"
)

func mustCompile(t *testing.T, sources ...Source) *Lexicon {
	t.Helper()
	lex, err := Compile(sources...)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	return lex
}

func TestFindAll_WordBoundary(t *testing.T) {
	lex := mustCompile(t, Source{Language: "en", Low: []string{"cat"}})

	for _, text := range []string{"concatenate", "bobcat", "cats", "cat_food"} {
		if got := lex.FindAll(text); len(got) != 0 {
			t.Errorf("FindAll(%q) = %+v, want no matches", text, got)
		}
	}

	got := lex.FindAll("a cat, another CAT.")
	if len(got) != 2 {
		t.Fatalf("got %d matches, want 2: %+v", len(got), got)
	}
	if got[0].Term != "cat" || got[0].Start != 2 || got[0].Length != 3 {
		t.Errorf("first match = %+v", got[0])
	}
	if got[1].Term != "CAT" || got[1].Start != 15 {
		t.Errorf("second match = %+v", got[1])
	}
}

func TestFindAll_LongestFirst(t *testing.T) {
	lex := mustCompile(t, Source{
		Language: "en",
		Medium:   []string{"a b"},
		Low:      []string{"b"},
	})

	got := lex.FindAll("a b")
	if len(got) != 1 {
		t.Fatalf("got %d matches, want 1: %+v", len(got), got)
	}
	if got[0].Term != "a b" || got[0].Severity != severity.Medium {
		t.Errorf("match = %+v, want term %q severity medium", got[0], "a b")
	}
}

func TestFindAll_LongerTermNotFragmented(t *testing.T) {
	lex := mustCompile(t, Source{
		Language: "en",
		High:     []string{"how to kill"},
		Low:      []string{"kill"},
	})

	got := lex.FindAll("Asking how to kill time? kill it.")
	if len(got) != 2 {
		t.Fatalf("got %d matches, want 2: %+v", len(got), got)
	}
	if got[0].Term != "how to kill" || got[0].Severity != severity.High {
		t.Errorf("first = %+v", got[0])
	}
	if got[1].Term != "kill" || got[1].Severity != severity.Low {
		t.Errorf("second = %+v", got[1])
	}
}

func TestFindAll_PrefixInsideWord(t *testing.T) {
	lex := mustCompile(t, Source{Language: "en", Low: []string{"ab", "abc"}})

	got := lex.FindAll("abcd ab")
	if len(got) != 1 || got[0].Term != "ab" || got[0].Start != 5 {
		t.Fatalf("got %+v, want single match on trailing ab", got)
	}

	got = lex.FindAll("ab c")
	if len(got) != 1 || got[0].Term != "ab" || got[0].End() != 2 {
		t.Fatalf("got %+v, want shorter alternative", got)
	}
}

func TestFindAll_EscapesMetacharacters(t *testing.T) {
	lex := mustCompile(t, Source{Language: "en", Low: []string{"a+b", "(x)"}})

	if got := lex.FindAll("aab"); len(got) != 0 {
		t.Errorf("a+b must be literal, got %+v", got)
	}
	got := lex.FindAll("say a+b or (x) now")
	if len(got) != 2 {
		t.Fatalf("got %+v, want 2 matches", got)
	}
	if got[0].Term != "a+b" || got[1].Term != "(x)" {
		t.Errorf("terms = %q, %q", got[0].Term, got[1].Term)
	}
}

func TestFindAll_Unicode(t *testing.T) {
	lex := mustCompile(t, Source{Language: "de", High: []string{"möse"}})

	got := lex.FindAll("Du MÖSE!")
	if len(got) != 1 {
		t.Fatalf("got %+v, want 1 match", got)
	}
	if got[0].Term != "MÖSE" || got[0].Severity != severity.High {
		t.Errorf("match = %+v", got[0])
	}
	if got := lex.FindAll("mösec"); len(got) != 0 {
		t.Errorf("non-ASCII word rune must act as boundary, got %+v", got)
	}
}

func TestCompile_DuplicatesHighestWins(t *testing.T) {
	lex := mustCompile(t,
		Source{Language: "en", Medium: []string{"Penis"}, Low: []string{"penis"}},
		Source{Language: "de", High: []string{"penis"}},
	)
	if lex.Len() != 1 {
		t.Errorf("Len = %d, want 1", lex.Len())
	}
	if got := lex.SeverityOf("PENIS"); got != severity.High {
		t.Errorf("SeverityOf = %q, want high", got)
	}
}

func TestCompile_FoldedSpellingsBothMatch(t *testing.T) {
	lex := mustCompile(t, Source{Language: "de", High: []string{"scheiße"}, Low: []string{"scheisse"}})

	if lex.Len() != 2 {
		t.Fatalf("Len = %d, want 2 spellings: %+v", lex.Len(), lex.Terms())
	}
	for _, text := range []string{"das ist scheiße", "das ist scheisse", "DAS IST SCHEISSE"} {
		got := lex.FindAll(text)
		if len(got) != 1 {
			t.Errorf("FindAll(%q) = %+v, want 1 match", text, got)
			continue
		}
		if got[0].Severity != severity.High {
			t.Errorf("FindAll(%q) severity = %q, want high", text, got[0].Severity)
		}
	}
	for _, term := range lex.Terms() {
		if term.Severity != severity.High {
			t.Errorf("term %q severity = %q, want shared high", term.Text, term.Severity)
		}
	}
}

func TestCompile_Invalid(t *testing.T) {
	tests := []struct {
		name string
		src  []Source
	}{
		{"no sources", nil},
		{"empty lists", []Source{{Language: "en"}}},
		{"empty term", []Source{{Language: "en", Low: []string{"ok", "  "}}}},
		{"control char", []Source{{Language: "en", High: []string{"bad\x00word"}}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Compile(tt.src...)
			if !errors.Is(err, domain.ErrInvalidLexicon) {
				t.Fatalf("err = %v, want ErrInvalidLexicon", err)
			}
		})
	}
}

func TestSeverityOf_DefaultsToLow(t *testing.T) {
	lex := mustCompile(t, Source{Language: "en", High: []string{"x"}})
	if got := lex.SeverityOf("unknown"); got != severity.Low {
		t.Errorf("SeverityOf(unknown) = %q, want low", got)
	}
}

func TestClassify(t *testing.T) {
	if got := Classify(nil); got != severity.None {
		t.Errorf("Classify(nil) = %q", got)
	}
	got := Classify([]Match{{Severity: severity.Low}, {Severity: severity.High}, {Severity: severity.Medium}})
	if got != severity.High {
		t.Errorf("Classify = %q, want high", got)
	}
}

func TestMatchString(t *testing.T) {
	lex := mustCompile(t, Source{Language: "en", Low: []string{"cat"}})
	if lex.MatchString("concatenate") {
		t.Error("substring must not match")
	}
	if !lex.MatchString("my cat") {
		t.Error("expected match")
	}
}

func TestDefault(t *testing.T) {
	lex, err := Default()
	if err != nil {
		t.Fatalf("Default: %v", err)
	}
	if lex.Len() < 100 {
		t.Errorf("Len = %d, want embedded terms", lex.Len())
	}
	langs := lex.Languages()
	found := false
	for _, l := range langs {
		if l == "english" {
			found = true
		}
	}
	if !found {
		t.Errorf("Languages = %v, want english", langs)
	}
	if got := lex.SeverityOf("bullshit"); got != severity.Medium {
		t.Errorf("SeverityOf(bullshit) = %q, want medium", got)
	}
	if got := lex.FindAll("what a blow job"); len(got) != 1 || got[0].Term != "blow job" {
		t.Errorf("FindAll = %+v, want blow job", got)
	}
}

func TestInspect(t *testing.T) {
	lex := mustCompile(t,
		Source{Language: "english", High: []string{"alpha"}, Medium: []string{"beta"}, Low: []string{"gamma", "alphabet"}},
		Source{Language: "german", Low: []string{"delta"}},
	)

	all := lex.Inspect(Filter{})
	if len(all) != 2 {
		t.Fatalf("got %d groups, want 2", len(all))
	}

	got := lex.Inspect(Filter{Query: "ALPHA"})
	if len(got) != 1 || got[0].Language != "english" {
		t.Fatalf("query groups = %+v", got)
	}
	if len(got[0].High) != 1 || len(got[0].Low) != 1 || len(got[0].Medium) != 0 {
		t.Errorf("query group = %+v", got[0])
	}

	got = lex.Inspect(Filter{Language: "GERMAN", Severity: severity.Low})
	if len(got) != 1 || got[0].Len() != 1 {
		t.Errorf("language filter = %+v", got)
	}

	if got := lex.Inspect(Filter{Language: "german", Severity: severity.High}); len(got) != 0 {
		t.Errorf("expected empty result, got %+v", got)
	}
}
