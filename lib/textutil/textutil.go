package textutil

import (
	"regexp"
	"strings"
)

var whitespaceRegex = regexp.MustCompile(`\s+`)

// footnote markers the publisher appends to labels, ex. "Active cases^"
const footnoteMarkers = "^*†‡#"

// NormalizeName lowercases a name and removes all whitespace from it.
func NormalizeName(name string) string {
	name = strings.ToLower(name)
	name = strings.TrimSpace(name)
	name = whitespaceRegex.ReplaceAllString(name, "")
	return name
}

// MatchName reports whether the normalized name contains any of the matchers,
// matchers are expected to be normalized already.
func MatchName(name string, matchers []string) bool {
	name = NormalizeName(name)
	for _, m := range matchers {
		if strings.Contains(name, m) {
			return true
		}
	}
	return false
}

// StripMarkers removes trailing footnote markers and surrounding whitespace.
func StripMarkers(label string) string {
	return strings.TrimSpace(strings.TrimRight(strings.TrimSpace(label), footnoteMarkers+" "))
}

// NormalizeLabel produces the form labels are compared in when an exact match
// fails: lowercase, footnote markers stripped, whitespace collapsed and
// typographic dashes folded into '-'.
func NormalizeLabel(label string) string {
	label = StripMarkers(label)
	label = strings.ToLower(label)
	label = strings.NewReplacer("–", "-", "—", "-", "\u00a0", " ").Replace(label)
	label = whitespaceRegex.ReplaceAllString(label, " ")
	return strings.TrimSpace(label)
}
