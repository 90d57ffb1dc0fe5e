// Package ogc builds WFS/WMS request parameters and holds the content
// heuristics used to accept or reject upstream payloads.
package ogc

import (
	"net/url"

	"github.com/mohammed-shakir/catastro-tool/internal/core/model"
)

// Stored queries of the cadastre INSPIRE services.
const (
	StoredQueryParcel   = "GetParcel"
	StoredQueryBuilding = "GetBuilding"
)

// StoredQueryParams requests one cadastral object by reference in srs.
func StoredQueryParams(storedQuery, ref, srs string) url.Values {
	params := url.Values{}
	params.Set("service", "wfs")
	params.Set("version", "2.0.0")
	params.Set("request", "GetFeature")
	params.Set("STOREDQUERY_ID", storedQuery)
	params.Set("refcat", ref)
	params.Set("srsname", srs)
	return params
}

// BBoxGetFeatureParams requests every feature of typeName inside bbox,
// expressed in bbox.SRID, as GML3.
func BBoxGetFeatureParams(typeName string, bbox model.BBox) url.Values {
	params := url.Values{}
	params.Set("service", "WFS")
	params.Set("version", "2.0.0")
	params.Set("request", "GetFeature")
	params.Set("typeName", typeName)
	params.Set("bbox", bbox.String())
	params.Set("srsName", bbox.SRID)
	params.Set("outputFormat", "GML3")
	return params
}
