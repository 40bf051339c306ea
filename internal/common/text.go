package common

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var turkishUpper = cases.Upper(language.Turkish)

// UpperTR uppercases s with Turkish casing rules (i→İ, ı→I).
func UpperTR(s string) string {
	return turkishUpper.String(s)
}

// Fold uppercases s with Turkish rules, strips diacritics and collapses
// whitespace, so "Özel  ders" and "OZEL DERS" compare equal.
func Fold(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, UpperTR(s))
	if err != nil {
		folded = UpperTR(s)
	}
	return strings.Join(strings.Fields(folded), " ")
}

// Truncate shortens s to at most n runes, appending an ellipsis when cut.
func Truncate(s string, n int) string {
	if n <= 0 {
		return ""
	}
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	if n <= 3 {
		return string(r[:n])
	}
	return string(r[:n-3]) + "..."
}
