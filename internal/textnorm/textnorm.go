// Package textnorm builds comparison keys for fuzzy matching of address text.
package textnorm

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Normalize lower-cases text and strips combining accent marks, so that
// "Dépto" and "depto" produce the same key.
func Normalize(text string) string {
	// transform.Chain is stateful, build one per call.
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, text)
	if err != nil {
		out = text
	}
	return strings.ToLower(out)
}

// Prefix returns the normalized key of the first n runes of text,
// ignoring surrounding whitespace.
func Prefix(text string, n int) string {
	r := []rune(strings.TrimSpace(text))
	if n > 0 && len(r) > n {
		r = r[:n]
	}
	return strings.TrimSpace(Normalize(string(r)))
}
