package gtfs

import (
	"regexp"
	"strings"

	"golang.org/x/text/width"
)

// routeNameSeparators split "departure〜destination" long names
var routeNameSeparators = []string{"〜", "～", "~"}

var trailingParenthetical = regexp.MustCompile(`\s*[(（][^()（）]*[)）]\s*$`)

// Normalize folds fullwidth digits and letters to halfwidth and trims space
func Normalize(s string) string {
	return strings.TrimSpace(width.Fold.String(s))
}

// SplitLongName splits a route long name at a wave-dash separator into its
// departure and destination. ok is false when no separator is present.
func SplitLongName(longName string) (departure, destination string, ok bool) {
	for _, sep := range routeNameSeparators {
		if before, after, found := strings.Cut(longName, sep); found {
			return strings.TrimSpace(before), StripParenthetical(after), true
		}
	}
	return "", "", false
}

// StripParenthetical removes trailing "(…)" / "（…）" annotations
func StripParenthetical(s string) string {
	s = strings.TrimSpace(s)
	for {
		stripped := trailingParenthetical.ReplaceAllString(s, "")
		if stripped == s || stripped == "" {
			return s
		}
		s = stripped
	}
}
