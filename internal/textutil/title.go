package textutil

import (
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var foldCaser = cases.Fold()

// NormalizeTitle lowercases title, strips diacritics and punctuation, and
// collapses whitespace. Dashes and slashes become word breaks so "Spider-Man"
// and "Spider Man" normalize identically; apostrophes are dropped so "Schindler's"
// becomes "schindlers".
func NormalizeTitle(title string) string {
	stripped, _, err := transform.String(transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC), title)
	if err != nil {
		stripped = title
	}
	stripped = foldCaser.String(stripped)
	stripped = strings.ReplaceAll(stripped, "&", " and ")

	var b strings.Builder
	b.Grow(len(stripped))
	space := false
	for _, r := range stripped {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			if space && b.Len() > 0 {
				b.WriteByte(' ')
			}
			space = false
			b.WriteRune(r)
		case unicode.IsSpace(r), unicode.Is(unicode.Pd, r), r == '/', r == '_', r == '.', r == ':':
			space = true
		default:
			// other punctuation and symbols vanish without splitting the word
		}
	}
	return b.String()
}

// Slug derives the hyphenated lookup slug from a title: "The Matrix" becomes
// "the-matrix".
func Slug(title string) string {
	return strings.ReplaceAll(NormalizeTitle(title), " ", "-")
}

// TitleYearKey is the cache key for records without an external id.
func TitleYearKey(title string, year int) string {
	return NormalizeTitle(title) + "|" + strconv.Itoa(year)
}
