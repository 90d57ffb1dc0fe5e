package ogc

import (
	"net/url"
	"strconv"

	"github.com/mohammed-shakir/catastro-tool/internal/core/model"
)

// GetMapParams builds a WMS 1.1.1 GetMap request for a single PNG layer.
func GetMapParams(layer string, bbox model.BBox, width, height int, transparent bool) url.Values {
	params := url.Values{}
	params.Set("SERVICE", "WMS")
	params.Set("VERSION", "1.1.1")
	params.Set("REQUEST", "GetMap")
	params.Set("LAYERS", layer)
	params.Set("STYLES", "")
	params.Set("SRS", bbox.SRID)
	params.Set("BBOX", bbox.WMS())
	params.Set("WIDTH", strconv.Itoa(width))
	params.Set("HEIGHT", strconv.Itoa(height))
	params.Set("FORMAT", "image/png")
	if transparent {
		params.Set("TRANSPARENT", "TRUE")
	} else {
		params.Set("TRANSPARENT", "FALSE")
	}
	return params
}
