package gml

import (
	"encoding/xml"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/paulmach/orb"
)

type kmlRoot struct {
	XMLName  xml.Name    `xml:"kml"`
	Xmlns    string      `xml:"xmlns,attr"`
	Document kmlDocument `xml:"Document"`
}

type kmlDocument struct {
	Name       string         `xml:"name"`
	Placemarks []kmlPlacemark `xml:"Placemark"`
}

type kmlPlacemark struct {
	Name          string       `xml:"name"`
	ExtendedData  *kmlExtended `xml:"ExtendedData,omitempty"`
	MultiGeometry kmlMulti     `xml:"MultiGeometry"`
}

type kmlExtended struct {
	Data []kmlData `xml:"Data"`
}

type kmlData struct {
	Name  string `xml:"name,attr"`
	Value string `xml:"value"`
}

type kmlMulti struct {
	Polygons []kmlPolygon `xml:"Polygon"`
	Lines    []kmlCoords  `xml:"LineString"`
	Points   []kmlCoords  `xml:"Point"`
}

type kmlPolygon struct {
	Outer kmlBoundary   `xml:"outerBoundaryIs"`
	Inner []kmlBoundary `xml:"innerBoundaryIs"`
}

type kmlBoundary struct {
	Ring kmlCoords `xml:"LinearRing"`
}

type kmlCoords struct {
	Coordinates string `xml:"coordinates"`
}

// WriteKML encodes features, already in WGS84 lon/lat, as a KML document.
func WriteKML(w io.Writer, name string, features []Feature) error {
	root := kmlRoot{
		Xmlns:    "http://www.opengis.net/kml/2.2",
		Document: kmlDocument{Name: name},
	}
	for i, f := range features {
		pm := kmlPlacemark{Name: f.ID}
		if pm.Name == "" {
			pm.Name = fmt.Sprintf("%s_%d", name, i+1)
		}
		if len(f.Properties) > 0 {
			keys := make([]string, 0, len(f.Properties))
			for k := range f.Properties {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			ext := &kmlExtended{}
			for _, k := range keys {
				ext.Data = append(ext.Data, kmlData{Name: k, Value: f.Properties[k]})
			}
			pm.ExtendedData = ext
		}
		addGeometry(&pm.MultiGeometry, f.Geometry)
		root.Document.Placemarks = append(root.Document.Placemarks, pm)
	}

	if _, err := io.WriteString(w, xml.Header); err != nil {
		return err
	}
	enc := xml.NewEncoder(w)
	enc.Indent("", "  ")
	if err := enc.Encode(root); err != nil {
		return fmt.Errorf("kml: encode: %w", err)
	}
	return enc.Flush()
}

func addGeometry(m *kmlMulti, g orb.Geometry) {
	switch g := g.(type) {
	case orb.Polygon:
		m.Polygons = append(m.Polygons, kmlPoly(g))
	case orb.MultiPolygon:
		for _, p := range g {
			m.Polygons = append(m.Polygons, kmlPoly(p))
		}
	case orb.LineString:
		m.Lines = append(m.Lines, kmlCoords{coordString(g)})
	case orb.MultiLineString:
		for _, l := range g {
			m.Lines = append(m.Lines, kmlCoords{coordString(l)})
		}
	case orb.Point:
		m.Points = append(m.Points, kmlCoords{coordString([]orb.Point{g})})
	case orb.MultiPoint:
		for _, p := range g {
			m.Points = append(m.Points, kmlCoords{coordString([]orb.Point{p})})
		}
	}
}

func kmlPoly(p orb.Polygon) kmlPolygon {
	var out kmlPolygon
	for i, r := range p {
		b := kmlBoundary{Ring: kmlCoords{coordString(r)}}
		if i == 0 {
			out.Outer = b
			continue
		}
		out.Inner = append(out.Inner, b)
	}
	return out
}

func coordString(pts []orb.Point) string {
	var b strings.Builder
	for i, p := range pts {
		if i > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(strconv.FormatFloat(p[0], 'f', 8, 64))
		b.WriteByte(',')
		b.WriteString(strconv.FormatFloat(p[1], 'f', 8, 64))
	}
	return b.String()
}
