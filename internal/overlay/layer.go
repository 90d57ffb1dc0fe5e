package overlay

import (
	"strings"

	"github.com/paulmach/orb"
)

// Feature is one layer element with its attribute table row.
type Feature struct {
	Geometry   orb.Geometry
	Properties map[string]string
}

// Layer is a loaded vector layer. CRS is the identifier understood by the
// crs package (EPSG code or WKT).
type Layer struct {
	Spec     LayerSpec
	CRS      string
	Features []Feature
}

// nameFields are tried in order; the first one present wins.
var nameFields = []string{"nombre", "name", "NOMBRE", "NAME"}

// featureName returns the value of the first name column that exists on
// the feature, matched case-insensitively.
func featureName(props map[string]string) (string, bool) {
	if len(props) == 0 {
		return "", false
	}
	for _, want := range nameFields {
		if v, ok := props[want]; ok {
			return strings.TrimSpace(v), true
		}
		for k, v := range props {
			if strings.EqualFold(k, want) {
				return strings.TrimSpace(v), true
			}
		}
	}
	return "", false
}
