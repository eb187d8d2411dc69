package extract

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/atelierlabs/nameplate-cli/internal/model"
)

// stripMarks decomposes to NFD, drops combining marks, and recomposes, so
// "Électrolux" becomes "Electrolux".
var stripMarks = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// parentheticalRe matches parenthetical annotations in model listings,
// e.g. the "(EU)" in "ABC-123 (EU)".
var parentheticalRe = regexp.MustCompile(`\([^)]*\)`)

// identifierSeparators strips the separators manufacturers print inside
// model and serial codes.
var identifierSeparators = strings.NewReplacer("-", "", " ", "", ".", "")

// CanonicalBrand strips diacritics and uppercases.
func CanonicalBrand(s string) string {
	out, _, err := transform.String(stripMarks, s)
	if err != nil {
		out = s
	}
	return strings.ToUpper(strings.TrimSpace(out))
}

// CanonicalProductFamily uppercases. Language normalization (families are
// stored in French) is the extraction prompt's job, not this stage's.
func CanonicalProductFamily(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

// CanonicalModelNumber removes parenthetical annotations, strips
// hyphen/space/period separators, and keeps only the part before the first
// slash — nameplates listing several models collapse to the first.
func CanonicalModelNumber(s string) string {
	s = parentheticalRe.ReplaceAllString(s, "")
	s = identifierSeparators.Replace(s)
	if i := strings.IndexByte(s, '/'); i >= 0 {
		s = s[:i]
	}
	return s
}

// CanonicalSerialNumber strips separators only. Serials are transcribed
// verbatim otherwise; no case change.
func CanonicalSerialNumber(s string) string {
	return identifierSeparators.Replace(s)
}

// Canonicalize normalizes every field of a result in place. It is
// idempotent: applying it twice yields the same result as applying it once.
func Canonicalize(r *model.ExtractionResult) {
	r.Brand = CanonicalBrand(r.Brand)
	r.ProductFamily = CanonicalProductFamily(r.ProductFamily)
	r.ModelNumber = CanonicalModelNumber(r.ModelNumber)
	r.SerialNumber = CanonicalSerialNumber(r.SerialNumber)
}
