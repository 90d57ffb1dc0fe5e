// Package raster downloads cadastre WMS images around a point at fixed zoom
// levels and optionally composites them into one preview.
package raster

import (
	"github.com/mohammed-shakir/catastro-tool/internal/core/model"
	"github.com/mohammed-shakir/catastro-tool/internal/crs"
)

// Level is a zoom step described by its approximate ground radius.
type Level struct {
	N       int
	Name    string
	RadiusM float64
}

var Levels = []Level{
	{N: 1, Name: "Nacional", RadiusM: 600000},
	{N: 2, Name: "Regional", RadiusM: 25000},
	{N: 3, Name: "Local", RadiusM: 1000},
	{N: 4, Name: "Parcela", RadiusM: 150},
}

// Metres per degree at Spanish mid-latitudes. Not geodesic.
const (
	metresPerDegLat = 111000.0
	metresPerDegLon = 85000.0
)

// BBoxFor returns the EPSG:4326 box of radius level.RadiusM around lon/lat.
func BBoxFor(lon, lat float64, level Level) model.BBox {
	dLon := level.RadiusM / metresPerDegLon
	dLat := level.RadiusM / metresPerDegLat
	return model.BBox{
		X1:   lon - dLon,
		Y1:   lat - dLat,
		X2:   lon + dLon,
		Y2:   lat + dLat,
		SRID: crs.WGS84,
	}
}

// Layer is one WMS layer; Label names the output file.
type Layer struct {
	WMSName     string
	Label       string
	Transparent bool
}

// DefaultLayers are listed bottom to top.
var DefaultLayers = []Layer{
	{WMSName: "PNOA", Label: "Ortofoto"},
	{WMSName: "Catastro", Label: "Catastro", Transparent: true},
	{WMSName: "Callejero", Label: "Callejero", Transparent: true},
	{WMSName: "Hidrografia", Label: "Hidrografia", Transparent: true},
}
