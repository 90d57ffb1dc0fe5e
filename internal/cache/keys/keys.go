// Package keys builds the Redis keys of cached remote layer payloads.
package keys

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/cespare/xxhash/v2"

	"github.com/mohammed-shakir/catastro-tool/internal/core/model"
)

const prefix = "layer"

// Key identifies the payload of one layer around one parcel: the H3 cell of
// the parcel centroid narrows it down and the bbox hash makes it exact.
func Key(layer string, res int, cell string, bbox model.BBox) string {
	layerNorm := sanitize(strings.TrimSpace(layer))
	sum := xxhash.Sum64String(bbox.String())
	return fmt.Sprintf("%s:%s:%d:%s:b=%016x", prefix, layerNorm, res, strings.ToLower(cell), sum)
}

// LayerPattern matches every key of layer, for invalidation scans.
func LayerPattern(layer string) string {
	return fmt.Sprintf("%s:%s:*", prefix, sanitize(strings.TrimSpace(layer)))
}

func sanitize(s string) string {
	if s == "" {
		return ""
	}
	var b strings.Builder
	b.Grow(len(s))
	var prev rune
	for _, r := range s {
		out := rune(0)
		switch {
		case r == ' ' || r == '\t' || r == '\n' || r == '\r' || r == '\v' || r == '\f':
			out = '_'
		case isAlphaNum(r) || r == '_' || r == '-':
			out = r
		default:
			// ':' and any non-ASCII rune become '-'
			out = '-'
		}
		if (out == '_' || out == '-') && out == prev {
			continue
		}
		b.WriteRune(out)
		prev = out
	}
	return b.String()
}

func isAlphaNum(r rune) bool {
	return (r >= 'a' && r <= 'z') ||
		(r >= 'A' && r <= 'Z') ||
		(r < unicode.MaxASCII && unicode.IsDigit(r))
}
