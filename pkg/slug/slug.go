// Package slug turns display names into ASCII identifiers safe for URLs and
// storage keys.
package slug

import (
	"path/filepath"
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var nonAlnum = regexp.MustCompile(`[^a-z0-9]+`)

// Letters with no decomposition into base letter plus mark.
var letters = strings.NewReplacer(
	"ı", "i", "İ", "i",
	"ß", "ss", "æ", "ae", "Æ", "ae",
	"ø", "o", "Ø", "o", "đ", "d", "Đ", "d",
	"ł", "l", "Ł", "l",
)

// Generate creates a URL-friendly slug from the given name. Diacritics are
// stripped, so "Çocuk Ürünleri" becomes "cocuk-urunleri".
func Generate(name string) string {
	s := letters.Replace(strings.TrimSpace(name))

	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	if out, _, err := transform.String(t, s); err == nil {
		s = out
	}

	s = nonAlnum.ReplaceAllString(strings.ToLower(s), "-")
	return strings.Trim(s, "-")
}

// FileName slugs the base of a file name and keeps its extension lowercased.
// A name with nothing left to slug becomes "file".
func FileName(name string) string {
	name = filepath.Base(strings.ReplaceAll(name, `\`, "/"))
	ext := strings.ToLower(filepath.Ext(name))
	if ext != "" && Generate(ext) == "" {
		ext = ""
	}

	base := Generate(strings.TrimSuffix(name, filepath.Ext(name)))
	if base == "" {
		base = "file"
	}
	return base + ext
}
