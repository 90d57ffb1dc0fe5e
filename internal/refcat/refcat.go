// Package refcat normalizes Spanish cadastral references and maps them to
// the projected coordinate reference system of their province.
package refcat

import (
	"errors"
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/width"
)

var ErrEmptyReference = errors.New("empty cadastral reference")

const (
	// ETRS89 / UTM zone 30N, used for mainland Spain and the Balearic Islands.
	MainlandCRS = "EPSG:25830"
	// ETRS89 / UTM zone 28N, used for the Canary Islands.
	CanaryCRS = "EPSG:25828"
)

// province codes of Las Palmas and Santa Cruz de Tenerife
var canaryProvinces = map[string]struct{}{
	"35": {},
	"38": {},
}

// Reference is a normalized cadastral reference
type Reference string

func (r Reference) String() string { return string(r) }

// Normalize strips every whitespace rune, folds full-width characters and
// uppercases. Applying it twice yields the same value.
func Normalize(raw string) string {
	folded := width.Fold.String(raw)
	var b strings.Builder
	b.Grow(len(folded))
	for _, r := range folded {
		if unicode.IsSpace(r) {
			continue
		}
		b.WriteRune(unicode.ToUpper(r))
	}
	return b.String()
}

// Parse normalizes raw and rejects empty results.
func Parse(raw string) (Reference, error) {
	n := Normalize(raw)
	if n == "" {
		return "", ErrEmptyReference
	}
	return Reference(n), nil
}

// Province returns the two-character province prefix, or "" when the
// reference is too short.
func (r Reference) Province() string {
	if len(r) < 2 {
		return ""
	}
	return string(r[:2])
}

func (r Reference) IsCanary() bool {
	_, ok := canaryProvinces[r.Province()]
	return ok
}

// ProjectedCRS is the metric CRS used to request and measure the parcel.
func (r Reference) ProjectedCRS() string {
	if r.IsCanary() {
		return CanaryCRS
	}
	return MainlandCRS
}

// UTMZone returns the UTM zone number of ProjectedCRS.
func (r Reference) UTMZone() int {
	if r.IsCanary() {
		return 28
	}
	return 30
}

// EPSGCode extracts the numeric code of "EPSG:25830" style identifiers.
func EPSGCode(crs string) (int, bool) {
	_, code, ok := strings.Cut(crs, ":")
	if !ok {
		return 0, false
	}
	n, err := strconv.Atoi(code)
	if err != nil {
		return 0, false
	}
	return n, true
}

// MinListEntry is the shortest token accepted from a reference list.
const MinListEntry = 11

// SplitList extracts references from free text separated by commas,
// whitespace or newlines, in order, dropping tokens shorter than
// MinListEntry.
func SplitList(text string) []string {
	fields := strings.FieldsFunc(text, func(r rune) bool {
		return r == ',' || r == ';' || unicode.IsSpace(r)
	})
	var out []string
	for _, f := range fields {
		if len(f) >= MinListEntry {
			out = append(out, f)
		}
	}
	return out
}
