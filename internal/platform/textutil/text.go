package textutil

import (
	"strings"
	"unicode"

	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var (
	upper = cases.Upper(language.Und)
	fold  = cases.Fold()
	plain = bluemonday.StrictPolicy()
)

// NormalizeCode trims and upper-cases a voucher code. Inner whitespace is removed so
// "save 10" and "SAVE10" are the same code.
func NormalizeCode(code string) string {
	code = strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, code)
	return upper.String(code)
}

// Fold returns a case-folded form suitable for case-insensitive substring search.
func Fold(value string) string {
	return fold.String(strings.TrimSpace(value))
}

// ContainsFold reports whether needle occurs in haystack ignoring case.
func ContainsFold(haystack, needle string) bool {
	needle = Fold(needle)
	if needle == "" {
		return true
	}
	return strings.Contains(Fold(haystack), needle)
}

// PlainText strips all markup from user supplied text and trims it to limit runes.
func PlainText(value string, limit int) string {
	cleaned := strings.TrimSpace(plain.Sanitize(value))
	if limit > 0 {
		runes := []rune(cleaned)
		if len(runes) > limit {
			cleaned = strings.TrimSpace(string(runes[:limit]))
		}
	}
	return cleaned
}
