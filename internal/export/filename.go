package export

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

const fallbackName = "sop"

// SanitizeTitle turns a document title into a filesystem-safe base name.
// Accents are folded, every run of non-alphanumeric characters becomes a
// single underscore, and an empty result falls back to "sop".
func SanitizeTitle(title string) string {
	t := transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, title)
	if err != nil {
		folded = title
	}

	var b strings.Builder
	pendingSep := false
	for _, r := range folded {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			if pendingSep && b.Len() > 0 {
				b.WriteByte('_')
			}
			pendingSep = false
			b.WriteRune(r)
			continue
		}
		pendingSep = true
	}
	if b.Len() == 0 {
		return fallbackName
	}
	return b.String()
}

// Filename returns the download name for title with the given extension.
func Filename(title, ext string) string {
	return SanitizeTitle(title) + "." + strings.TrimPrefix(ext, ".")
}
