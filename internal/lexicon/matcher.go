package lexicon

import (
	"regexp"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/kailas-cloud/toxfilter/internal/domain/severity"
)

// trailingBoundary accepts a non-word rune or end of text after a term ending in a word rune.
// Go regexp has no lookahead, so the boundary rune is consumed and trimmed after matching.
const trailingBoundary = `(?:[^\p{L}\p{M}\p{N}_]|$)`

// Match is one lexicon hit inside a text. Offsets are byte offsets into that text.
type Match struct {
	Term     string         `json:"term"`
	Start    int            `json:"start"`
	Length   int            `json:"length"`
	Severity severity.Level `json:"severity"`
}

// End returns the byte offset just past the match.
func (m Match) End() int { return m.Start + m.Length }

// Matcher is a single compiled, case-insensitive, boundary-aware pattern over all terms.
type Matcher struct {
	re       *regexp.Regexp
	classify func(string) severity.Level
	known    func(string) bool
}

// newMatcher builds the pattern with terms ordered longest-first.
func newMatcher(terms []string, classify func(string) severity.Level, known func(string) bool) (*Matcher, error) {
	ordered := append([]string(nil), terms...)
	sort.Slice(ordered, func(i, j int) bool {
		li, lj := utf8.RuneCountInString(ordered[i]), utf8.RuneCountInString(ordered[j])
		if li != lj {
			return li > lj
		}
		return ordered[i] < ordered[j]
	})

	alts := make([]string, len(ordered))
	for i, t := range ordered {
		alt := regexp.QuoteMeta(t)
		last, _ := utf8.DecodeLastRuneInString(t)
		if isWordRune(last) {
			alt += trailingBoundary
		}
		alts[i] = alt
	}

	re, err := regexp.Compile(`(?i)(?:` + strings.Join(alts, "|") + `)`)
	if err != nil {
		return nil, err
	}
	return &Matcher{re: re, classify: classify, known: known}, nil
}

// FindAll returns every non-overlapping match in text, left to right.
// At any start position the longest term wins.
func (m *Matcher) FindAll(text string) []Match {
	var out []Match
	pos := 0
	for pos < len(text) {
		loc := m.re.FindStringIndex(text[pos:])
		if loc == nil {
			break
		}
		start, end := pos+loc[0], pos+loc[1]
		if !m.startsWord(text, start) || start == end {
			_, size := utf8.DecodeRuneInString(text[start:])
			pos = start + size
			continue
		}

		end = m.termEnd(text, start, end)
		term := text[start:end]
		out = append(out, Match{
			Term:     term,
			Start:    start,
			Length:   end - start,
			Severity: m.classify(term),
		})
		pos = end
	}
	return out
}

// MatchString reports whether text contains at least one match.
func (m *Matcher) MatchString(text string) bool {
	if !m.re.MatchString(text) {
		return false
	}
	return len(m.FindAll(text)) > 0
}

// startsWord reports whether a term may begin at byte offset i.
func (m *Matcher) startsWord(text string, i int) bool {
	if i == 0 {
		return true
	}
	first, _ := utf8.DecodeRuneInString(text[i:])
	if !isWordRune(first) {
		return true
	}
	prev, _ := utf8.DecodeLastRuneInString(text[:i])
	return !isWordRune(prev)
}

// termEnd strips the consumed boundary rune, if any.
func (m *Matcher) termEnd(text string, start, end int) int {
	if m.known(text[start:end]) {
		return end
	}
	last, size := utf8.DecodeLastRuneInString(text[start:end])
	if !isWordRune(last) && end-size > start {
		return end - size
	}
	return end
}

func isWordRune(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsMark(r) || unicode.IsNumber(r)
}
