package textutil

import (
	"regexp"
	"strings"
)

var whitespaceRegex = regexp.MustCompile(`\s+`)

// NormalizeName lowercases a label and removes all whitespace so that
// "Red  line" and "RedLine" compare equal.
func NormalizeName(name string) string {
	name = strings.ToLower(name)
	name = strings.Trim(name, " \n\t")
	name = whitespaceRegex.ReplaceAllString(name, "")
	return name
}

// MatchName returns the first matcher contained in the normalized name.
// Matchers are compared as given, so they must be normalized already.
func MatchName(name string, matchers ...string) (string, bool) {
	name = NormalizeName(name)
	for _, m := range matchers {
		if m != "" && strings.Contains(name, m) {
			return m, true
		}
	}
	return "", false
}
