package lexicon

import (
	"sort"
	"strings"

	"golang.org/x/text/cases"

	"github.com/kailas-cloud/toxfilter/internal/domain/severity"
)

// Group is the per-language view of the source lists, kept for inspection tooling.
type Group struct {
	Language string   `json:"language"`
	High     []string `json:"high,omitempty"`
	Medium   []string `json:"medium,omitempty"`
	Low      []string `json:"low,omitempty"`
}

// Len returns the number of terms in the group.
func (g Group) Len() int { return len(g.High) + len(g.Medium) + len(g.Low) }

func (g *Group) add(lvl severity.Level, term string) {
	switch lvl {
	case severity.High:
		g.High = append(g.High, term)
	case severity.Medium:
		g.Medium = append(g.Medium, term)
	default:
		g.Low = append(g.Low, term)
	}
}

// Filter narrows Inspect output. Zero values match everything.
type Filter struct {
	Language string
	Severity severity.Level
	Query    string
}

// Languages returns the source languages in compile order, merged by name.
func (l *Lexicon) Languages() []string {
	seen := make(map[string]bool)
	var out []string
	for _, g := range l.groups {
		if !seen[g.Language] {
			seen[g.Language] = true
			out = append(out, g.Language)
		}
	}
	return out
}

// Inspect returns the per-language groups matching f. Groups left empty are omitted.
func (l *Lexicon) Inspect(f Filter) []Group {
	query := cases.Fold().String(strings.TrimSpace(f.Query))
	keep := func(lvl severity.Level, terms []string) []string {
		if f.Severity != "" && f.Severity != lvl {
			return nil
		}
		var out []string
		for _, t := range terms {
			if query == "" || strings.Contains(cases.Fold().String(t), query) {
				out = append(out, t)
			}
		}
		sort.Strings(out)
		return out
	}

	var out []Group
	for _, g := range l.groups {
		if f.Language != "" && !strings.EqualFold(f.Language, g.Language) {
			continue
		}
		res := Group{
			Language: g.Language,
			High:     keep(severity.High, g.High),
			Medium:   keep(severity.Medium, g.Medium),
			Low:      keep(severity.Low, g.Low),
		}
		if res.Len() > 0 {
			out = append(out, res)
		}
	}
	return out
}
