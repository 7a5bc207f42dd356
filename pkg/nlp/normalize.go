package nlp

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// NormalizeUnicode applies NFKC normalization so stylistic Unicode variants
// (fullwidth, mathematical bold, circled letters) match plain-ASCII lexicons.
func NormalizeUnicode(text string) (normalized string, wasNormalized bool) {
	normalized = norm.NFKC.String(text)
	wasNormalized = normalized != text
	return
}

// NormalizeToken lowercases an NFKC-normalized token and strips surrounding
// punctuation. Used as the shared key function for lexicon lookups.
func NormalizeToken(tok string) string {
	tok, _ = NormalizeUnicode(tok)
	tok = strings.ToLower(tok)
	return strings.TrimFunc(tok, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '\''
	})
}

// NormalizeText lowercases, NFKC-normalizes, converts punctuation to spaces
// and collapses whitespace runs. This is the scanner's canonical form.
func NormalizeText(text string) string {
	text, _ = NormalizeUnicode(text)
	text = strings.ToLower(text)
	var b strings.Builder
	b.Grow(len(text))
	lastSpace := true
	for _, r := range text {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r) || r == '\'':
			b.WriteRune(r)
			lastSpace = false
		default:
			if !lastSpace {
				b.WriteByte(' ')
				lastSpace = true
			}
		}
	}
	return strings.TrimRight(b.String(), " ")
}
