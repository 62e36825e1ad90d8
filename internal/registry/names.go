package registry

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

const maxSlugLen = 40

var (
	slugStrip    = regexp.MustCompile(`[^\p{L}\p{N}_\s-]`)
	slugCollapse = regexp.MustCompile(`[\s_-]+`)
)

// FoldName returns the case-folded form used for exact, case-insensitive name comparison.
func FoldName(name string) string {
	// Casers carry state and are not safe to share between goroutines.
	return cases.Fold().String(strings.TrimSpace(name))
}

// RemoveDiacritics removes diacritical marks from a string (e.g., "Jiří" -> "Jiri").
func RemoveDiacritics(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	result, _, _ := transform.String(t, s)
	return result
}

// NormalizeName folds case, strips diacritics and treats dashes as spaces.
// It is the form used for substring and fuzzy name lookups.
func NormalizeName(name string) string {
	name = RemoveDiacritics(FoldName(name))
	name = strings.ReplaceAll(name, "-", " ")
	return strings.Join(strings.Fields(name), " ")
}

// Slugify turns a display name into a collection id: lower case, punctuation
// dropped, separators collapsed to "_", at most 40 characters.
func Slugify(name string) string {
	s := strings.ToLower(strings.TrimSpace(name))
	s = slugStrip.ReplaceAllString(s, "")
	s = slugCollapse.ReplaceAllString(s, "_")
	if r := []rune(s); len(r) > maxSlugLen {
		s = string(r[:maxSlugLen])
	}
	s = strings.Trim(s, "_")
	if s == "" {
		return "folder"
	}
	return s
}
