// Package lexicon compiles curated term lists into an immutable matcher
// and severity lookup shared by the scanner and the composer guard.
package lexicon

import (
	"fmt"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/cases"

	"github.com/kailas-cloud/toxfilter/internal/domain"
	"github.com/kailas-cloud/toxfilter/internal/domain/severity"
)

// MaxTermLen is the longest accepted term, in runes.
const MaxTermLen = 128

// Term is one compiled lexicon entry.
type Term struct {
	Text     string         `json:"text"`
	Severity severity.Level `json:"severity"`
}

// Lexicon is the compiled, immutable term set. Safe for concurrent use.
type Lexicon struct {
	severities map[string]severity.Level
	terms      []Term
	groups     []Group
	matcher    *Matcher
}

// Compile validates and merges the sources into one lexicon.
// Any malformed entry or an empty result fails with domain.ErrInvalidLexicon.
// Terms repeated across severities or sources collapse to the highest severity.
// Spellings that only meet under full case folding ("straße", "strasse") share
// that severity but stay separate terms, since the pattern folds case rune by rune.
func Compile(sources ...Source) (*Lexicon, error) {
	lex := &Lexicon{severities: make(map[string]severity.Level)}
	spellings := make(map[string]string)

	for _, src := range sources {
		g := Group{Language: src.Language}
		for _, lvl := range []severity.Level{severity.High, severity.Medium, severity.Low} {
			seen := make(map[string]bool)
			for _, raw := range src.list(lvl) {
				text, err := validateTerm(src.Language, raw)
				if err != nil {
					return nil, err
				}
				key := normalize(text)
				if prev, ok := lex.severities[key]; ok {
					lex.severities[key] = severity.Max(prev, lvl)
				} else {
					lex.severities[key] = lvl
				}
				if lower := strings.ToLower(text); spellings[lower] == "" {
					spellings[lower] = text
				}
				if !seen[key] {
					seen[key] = true
					g.add(lvl, text)
				}
			}
		}
		lex.groups = append(lex.groups, g)
	}

	if len(lex.severities) == 0 {
		return nil, fmt.Errorf("%w: no terms", domain.ErrInvalidLexicon)
	}

	patterns := make([]string, 0, len(spellings))
	for _, text := range spellings {
		lex.terms = append(lex.terms, Term{Text: text, Severity: lex.severities[normalize(text)]})
		patterns = append(patterns, text)
	}
	sort.Slice(lex.terms, func(i, j int) bool {
		li, lj := utf8.RuneCountInString(lex.terms[i].Text), utf8.RuneCountInString(lex.terms[j].Text)
		if li != lj {
			return li > lj
		}
		return lex.terms[i].Text < lex.terms[j].Text
	})

	m, err := newMatcher(patterns, lex.SeverityOf, lex.Has)
	if err != nil {
		return nil, fmt.Errorf("%w: compile pattern: %v", domain.ErrInvalidLexicon, err)
	}
	lex.matcher = m
	return lex, nil
}

// MustCompile compiles the sources or panics.
func MustCompile(sources ...Source) *Lexicon {
	lex, err := Compile(sources...)
	if err != nil {
		panic(err)
	}
	return lex
}

// Matcher returns the compiled pattern.
func (l *Lexicon) Matcher() *Matcher { return l.matcher }

// FindAll runs the matcher over text.
func (l *Lexicon) FindAll(text string) []Match { return l.matcher.FindAll(text) }

// MatchString reports whether text contains any term.
func (l *Lexicon) MatchString(text string) bool { return l.matcher.MatchString(text) }

// Has reports whether term is in the lexicon, ignoring case.
func (l *Lexicon) Has(term string) bool {
	_, ok := l.severities[normalize(term)]
	return ok
}

// Len returns the number of distinct terms.
func (l *Lexicon) Len() int { return len(l.terms) }

// Terms returns all terms, longest first.
func (l *Lexicon) Terms() []Term { return append([]Term(nil), l.terms...) }

func (s Source) list(lvl severity.Level) []string {
	switch lvl {
	case severity.High:
		return s.High
	case severity.Medium:
		return s.Medium
	default:
		return s.Low
	}
}

func validateTerm(language, raw string) (string, error) {
	text := strings.TrimSpace(raw)
	switch {
	case text == "":
		return "", domain.NewLexiconEntryError(language, raw, "empty term")
	case !utf8.ValidString(text):
		return "", domain.NewLexiconEntryError(language, raw, "invalid utf-8")
	case utf8.RuneCountInString(text) > MaxTermLen:
		return "", domain.NewLexiconEntryError(language, raw, "term too long")
	}
	for _, r := range text {
		if unicode.IsControl(r) {
			return "", domain.NewLexiconEntryError(language, raw, "control character")
		}
	}
	return text, nil
}

// normalize returns the case-folded lookup key.
// A new Caser per call: casers keep state and are not safe for concurrent use.
func normalize(s string) string {
	return cases.Fold().String(s)
}
