// Package textproc normalizes raw document text and splits it into
// overlapping chunks suitable for per-window matching.
package textproc

import (
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"
)

var (
	crlfPattern     = regexp.MustCompile(`\r\n?`)
	whitespaceRun   = regexp.MustCompile(`[ \t\f\v]+`)
	tripleNewline   = regexp.MustCompile(`\n{3,}`)
	smartQuoteFold  = strings.NewReplacer(
		"‘", "'", "’", "'", "‛", "'",
		"“", "\"", "”", "\"", "‟", "\"",
		"–", "-", "—", "-",
		"…", "...",
		" ", " ",
		"­", "",
		"•", "*",
	)
)

// Normalize applies Unicode NFC normalization, folds smart punctuation to
// ASCII equivalents, collapses whitespace runs, normalizes line endings, and
// trims the result. It is a pure function: the same input always yields the
// same output, and it never returns an error — on any unexpected input it
// returns the input unchanged.
func Normalize(text string) string {
	if text == "" {
		return text
	}
	out := norm.NFC.String(text)
	out = smartQuoteFold.Replace(out)
	out = crlfPattern.ReplaceAllString(out, "\n")
	out = whitespaceRun.ReplaceAllString(out, " ")
	out = tripleNewline.ReplaceAllString(out, "\n\n")
	out = strings.TrimSpace(out)
	return out
}
