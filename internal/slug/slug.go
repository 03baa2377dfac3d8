// Package slug turns column names into filesystem-safe identifiers.
package slug

import (
	"regexp"
	"strings"
)

var (
	specialRe = regexp.MustCompile(`[^\w\s-]`)
	runRe     = regexp.MustCompile(`[\s_-]+`)
)

// Make lowercases name, strips special characters, collapses runs of
// whitespace, underscores and hyphens into a single hyphen and trims
// hyphens from both ends. Make is idempotent.
func Make(name string) string {
	s := strings.ToLower(name)
	s = specialRe.ReplaceAllString(s, "")
	s = runRe.ReplaceAllString(s, "-")
	return strings.Trim(s, "-")
}
