package gml

import (
	"bytes"
	"strings"
	"testing"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
)

func TestParse_CadastralParcel(t *testing.T) {
	doc, err := ParseBytes([]byte(parcelGML))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if doc.SRS != "EPSG:25830" {
		t.Fatalf("SRS=%q", doc.SRS)
	}
	if doc.ReferencePoint == nil || *doc.ReferencePoint != (orb.Point{440050, 4474050}) {
		t.Fatalf("reference point=%v", doc.ReferencePoint)
	}
	if len(doc.Features) != 1 {
		t.Fatalf("features=%d want 1", len(doc.Features))
	}
	f := doc.Features[0]
	if f.ID != "ES.SDGC.CP.9872023VH5797S" {
		t.Fatalf("id=%q", f.ID)
	}
	if f.Properties["nationalCadastralReference"] != "9872023VH5797S" || f.Properties["areaValue"] != "10000" {
		t.Fatalf("props=%v", f.Properties)
	}
	poly, ok := f.Geometry.(orb.Polygon)
	if !ok {
		t.Fatalf("geometry type %T", f.Geometry)
	}
	if a := planar.Area(poly); a < 9999 || a > 10001 {
		t.Fatalf("area=%v want 10000", a)
	}
	mean, ok := doc.PosListMean()
	if !ok {
		t.Fatalf("no poslist")
	}
	// the closing vertex is counted, like a plain average of the list
	if mean[0] != 440040 || mean[1] != 4474040 {
		t.Fatalf("mean=%v", mean)
	}
}

func TestParse_LatLonAxisOrderAndHoles(t *testing.T) {
	doc, err := ParseBytes([]byte(layerGML))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(doc.Features) != 2 {
		t.Fatalf("features=%d", len(doc.Features))
	}
	poly := doc.Features[0].Geometry.(orb.Polygon)
	if poly[0][0] != (orb.Point{-4, 40}) {
		t.Fatalf("axis not swapped: %v", poly[0][0])
	}
	if len(poly) != 2 {
		t.Fatalf("expected hole, rings=%d", len(poly))
	}
	if r := poly[0]; r[0] != r[len(r)-1] {
		t.Fatalf("ring not closed")
	}
	if doc.Features[0].Properties["nombre"] != "Sierra de Guadarrama" {
		t.Fatalf("props=%v", doc.Features[0].Properties)
	}
	if _, ok := doc.Features[1].Geometry.(orb.LineString); !ok {
		t.Fatalf("second feature type %T", doc.Features[1].Geometry)
	}
	if got := len(doc.Polygons()); got != 1 {
		t.Fatalf("Polygons()=%d", got)
	}
}

func TestParse_GML2Coordinates(t *testing.T) {
	doc, err := ParseBytes([]byte(gml2))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(doc.Features) != 1 {
		t.Fatalf("features=%d", len(doc.Features))
	}
	f := doc.Features[0]
	if f.ID != "montes.0" || f.Properties["NAME"] != "Monte 1" {
		t.Fatalf("feature=%+v", f)
	}
	if a := planar.Area(f.Geometry); a != 100 {
		t.Fatalf("area=%v", a)
	}
}

func TestParse_Malformed(t *testing.T) {
	if _, err := ParseBytes([]byte(`<a><gml:posList>1 x</gml:posList></a>`)); err == nil {
		t.Fatalf("expected error for bad ordinate")
	}
}

func TestWriteKML(t *testing.T) {
	feats := []Feature{{
		ID:         "p1",
		Properties: map[string]string{"b": "2", "a": "1"},
		Geometry:   orb.Polygon{{{-3.7, 40.4}, {-3.6, 40.4}, {-3.6, 40.5}, {-3.7, 40.4}}},
	}}
	var buf bytes.Buffer
	if err := WriteKML(&buf, "parcela", feats); err != nil {
		t.Fatalf("WriteKML: %v", err)
	}
	out := buf.String()
	for _, want := range []string{
		`<kml xmlns="http://www.opengis.net/kml/2.2">`,
		`<name>p1</name>`,
		`<coordinates>-3.70000000,40.40000000 -3.60000000,40.40000000`,
		`<Data name="a">`,
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("missing %q in:\n%s", want, out)
		}
	}
	if strings.Index(out, `name="a"`) > strings.Index(out, `name="b"`) {
		t.Fatalf("extended data not sorted")
	}
}
