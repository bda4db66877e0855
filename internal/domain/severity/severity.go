package severity

import (
	"fmt"
	"strings"
)

// Level is the severity class of a match or verdict.
type Level string

// Severity levels, lowest first.
const (
	None   Level = "none"
	Low    Level = "low"
	Medium Level = "medium"
	High   Level = "high"
)

// IsValid checks if the level is one of the supported values.
func (l Level) IsValid() bool {
	return l == None || l == Low || l == Medium || l == High
}

// Rank orders levels: none < low < medium < high. Unknown levels rank below none.
func (l Level) Rank() int {
	switch l {
	case None:
		return 0
	case Low:
		return 1
	case Medium:
		return 2
	case High:
		return 3
	default:
		return -1
	}
}

// Class returns the annotation class name, e.g. "severity-high".
func (l Level) Class() string { return "severity-" + string(l) }

// Max returns the higher of two levels.
func Max(a, b Level) Level {
	if b.Rank() > a.Rank() {
		return b
	}
	return a
}

// Parse converts a case-insensitive name into a Level.
func Parse(s string) (Level, error) {
	l := Level(strings.ToLower(strings.TrimSpace(s)))
	if !l.IsValid() {
		return "", fmt.Errorf("unknown severity %q", s)
	}
	return l, nil
}

// FromClass extracts the level from a "severity-<level>" class list.
func FromClass(class string) (Level, bool) {
	for _, c := range strings.Fields(class) {
		if name, ok := strings.CutPrefix(c, "severity-"); ok {
			if l := Level(name); l.IsValid() {
				return l, true
			}
		}
	}
	return "", false
}

// ReplaceClass swaps the severity class inside a class list, appending one if absent.
func ReplaceClass(class string, l Level) string {
	fields := strings.Fields(class)
	replaced := false
	for i, c := range fields {
		if strings.HasPrefix(c, "severity-") {
			fields[i] = l.Class()
			replaced = true
		}
	}
	if !replaced {
		fields = append(fields, l.Class())
	}
	return strings.Join(fields, " ")
}
