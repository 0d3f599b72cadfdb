package cli

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// asciiFold decomposes to NFKD, drops combining marks and anything left
// outside ASCII. Matches what the web tool does to activity titles.
var asciiFold = transform.Chain(
	norm.NFKD,
	runes.Remove(runes.In(unicode.Mn)),
	runes.Remove(runes.Predicate(func(r rune) bool { return r > unicode.MaxASCII })),
)

// activityFilename builds a file name from an activity title: diacritics
// folded away, each word reduced to letters and underscores, words joined
// with underscores. An empty result means the caller should fall back to
// the label ID.
func activityFilename(title string) string {
	folded, _, err := transform.String(asciiFold, title)
	if err != nil {
		folded = title
	}

	var parts []string
	for _, word := range strings.Fields(folded) {
		var sb strings.Builder
		for _, r := range word {
			if r == '_' || (r <= unicode.MaxASCII && unicode.IsLetter(r)) {
				sb.WriteRune(r)
			}
		}
		if sb.Len() > 0 {
			parts = append(parts, sb.String())
		}
	}
	return strings.Join(parts, "_")
}
