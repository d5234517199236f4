package identity

import (
	"regexp"
	"strings"
)

var parenGroups = regexp.MustCompile(`\([^)]*\)`)

// NormalizePhone canonicalizes a reported phone number: parenthesized
// groups, plus signs and spaces are stripped, an accidentally doubled
// country prefix ("5151...") is collapsed, and bare mobile numbers
// (leading "9") get the country code prepended. Normalizing an already
// normalized number is a no-op.
func NormalizePhone(raw string) string {
	s := strings.TrimSpace(raw)
	s = parenGroups.ReplaceAllString(s, "")
	s = strings.ReplaceAll(s, "+", "")
	s = strings.ReplaceAll(s, " ", "")

	switch {
	case strings.HasPrefix(s, "5151"):
		s = s[2:]
	case strings.HasPrefix(s, "9"):
		s = "51" + s
	}
	return s
}
