// Package naming derives filesystem-safe identifiers from display names.
package naming

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

const fallbackSlug = "untitled"

var (
	disallowed = regexp.MustCompile(`[^\p{L}\p{N}_\s\p{Z}-]`)
	separators = regexp.MustCompile(`[-\s\p{Z}]+`)
)

// Slugify lower-cases name, folds accented letters to their base form and
// joins words with single dashes. "Pokémon: Red Version" becomes
// "pokemon-red-version". Letters of any script are kept.
func Slugify(name string) string {
	folded, _, err := transform.String(
		transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC),
		name,
	)
	if err != nil {
		folded = name
	}

	slug := strings.ToLower(folded)
	slug = disallowed.ReplaceAllString(slug, "")
	slug = separators.ReplaceAllString(slug, "-")
	slug = strings.Trim(slug, "-_")
	if slug == "" {
		return fallbackSlug
	}
	return slug
}
