package catalog

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// foldTransformer decomposes to NFKD and drops combining marks so accented
// display names slug to plain ASCII ("Café Éléments" -> "cafe-elements").
var foldTransformer = transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// Slugify derives the canonical lookup key from a display name: lower-cased,
// hyphenated on word boundaries (including camelCase humps), all other
// non-alphanumerics stripped.
//
// It is deterministic and idempotent; repeated calls with the same name
// always address the same entity.
func Slugify(name string) string {
	folded, _, err := transform.String(foldTransformer, name)
	if err != nil {
		folded = name
	}

	var b strings.Builder
	b.Grow(len(folded))

	prevAlnum := false
	prevLower := false
	pending := false // a boundary was seen; emit one hyphen before the next rune
	for _, r := range folded {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			isUpper := unicode.IsUpper(r)
			if prevAlnum && isUpper && prevLower {
				// camelCase hump: "ApiElements" -> "api-elements"
				pending = true
			}
			if pending && b.Len() > 0 {
				b.WriteByte('-')
			}
			pending = false
			b.WriteRune(unicode.ToLower(r))
			prevAlnum = true
			prevLower = !isUpper
		default:
			if prevAlnum {
				pending = true
			}
			prevAlnum = false
			prevLower = false
		}
	}
	return b.String()
}
