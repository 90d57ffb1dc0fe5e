package overlay

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/jonas-p/go-shp"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"

	"github.com/mohammed-shakir/catastro-tool/internal/crs"
)

const floodGeoJSON = `{
  "type": "FeatureCollection",
  "crs": {"type": "name", "properties": {"name": "urn:ogc:def:crs:EPSG::25830"}},
  "features": [
    {"type": "Feature", "properties": {"nombre": "ARPSI Manzanares", "periodo": 100},
     "geometry": {"type": "Polygon", "coordinates": [[[440020,4473900],[440100,4473900],[440100,4474100],[440020,4474100],[440020,4473900]]]}}
  ]
}`

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func TestLocalSource_DiscoverAndLoadGeoJSON(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "zonas_inundables", "t100", "arpsi.geojson"), floodGeoJSON)
	writeFile(t, filepath.Join(root, "zonas_inundables", "readme.txt"), "ignored")

	src, err := NewLocalSource(root, 4, nil)
	if err != nil {
		t.Fatalf("NewLocalSource: %v", err)
	}
	specs, err := src.Discover()
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}
	if len(specs) != 1 {
		t.Fatalf("want 1 layer, got %+v", specs)
	}
	sp := specs[0]
	if sp.Name != "arpsi" || sp.Category != "riesgos" || sp.Color != "#FF6B35" || sp.Source != SourceLocal {
		t.Fatalf("unexpected spec %+v", sp)
	}

	l, err := src.Load(context.Background(), sp, QueryArea{})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if crs.Canonical(l.CRS) != "EPSG:25830" {
		t.Fatalf("crs got %q", l.CRS)
	}
	if len(l.Features) != 1 || l.Features[0].Properties["nombre"] != "ARPSI Manzanares" {
		t.Fatalf("features %+v", l.Features)
	}
	if l.Features[0].Properties["periodo"] != "100" {
		t.Fatalf("numeric property got %q", l.Features[0].Properties["periodo"])
	}
	if src.cache.Len() != 1 {
		t.Fatalf("expected layer to be cached")
	}

	sp.CRS = "EPSG:4326"
	l2, err := src.Load(context.Background(), sp, QueryArea{})
	if err != nil {
		t.Fatalf("Load cached: %v", err)
	}
	if l2.CRS != "EPSG:4326" {
		t.Fatalf("spec crs should override, got %q", l2.CRS)
	}
}

func TestLocalSource_HalfCoverageFromFile(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "zonas_inundables", "arpsi.geojson"), floodGeoJSON)
	src, err := NewLocalSource(root, 4, nil)
	if err != nil {
		t.Fatalf("NewLocalSource: %v", err)
	}
	specs, err := src.Discover()
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}

	a := NewAnalyzer(NewGEOSEngine(), nil, Options{Local: src}, nil)
	res, err := a.Analyze(context.Background(), testParcel(), specs)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	r := res[0]
	if !r.Detected || !near(r.PercentOfParcel, 50) || r.Names[0] != "ARPSI Manzanares" {
		t.Fatalf("unexpected result %+v", r)
	}
}

func TestLocalSource_DefaultCRS(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "montes.json"), `{"type":"FeatureCollection","features":[
	  {"type":"Feature","properties":{},"geometry":{"type":"Point","coordinates":[-3.7,40.4]}}]}`)
	src, err := NewLocalSource(root, 0, nil)
	if err != nil {
		t.Fatalf("NewLocalSource: %v", err)
	}
	l, err := src.Load(context.Background(), LayerSpec{Name: "montes", Source: SourceLocal, Path: filepath.Join(root, "montes.json")}, QueryArea{})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if l.CRS != crs.WGS84 {
		t.Fatalf("want default %s, got %q", crs.WGS84, l.CRS)
	}
}

func TestLocalSource_Shapefile(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "espacios_protegidos", "enp.shp")
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	w, err := shp.Create(path, shp.POLYGON)
	if err != nil {
		t.Fatalf("shp.Create: %v", err)
	}
	// clockwise outer ring with a counter-clockwise hole
	poly := shp.NewPolygon([][]shp.Point{
		{{X: 0, Y: 0}, {X: 0, Y: 10}, {X: 10, Y: 10}, {X: 10, Y: 0}, {X: 0, Y: 0}},
		{{X: 2, Y: 2}, {X: 4, Y: 2}, {X: 4, Y: 4}, {X: 2, Y: 4}, {X: 2, Y: 2}},
	})
	if err := w.SetFields([]shp.Field{shp.StringField("NOMBRE", 40)}); err != nil {
		t.Fatalf("SetFields: %v", err)
	}
	row := w.Write(poly)
	if err := w.WriteAttribute(int(row), 0, "Parque Regional"); err != nil {
		t.Fatalf("WriteAttribute: %v", err)
	}
	w.Close()
	writeFile(t, filepath.Join(root, "espacios_protegidos", "enp.prj"), `PROJCS["ETRS89 / UTM zone 30N"]`)

	src, err := NewLocalSource(root, 2, nil)
	if err != nil {
		t.Fatalf("NewLocalSource: %v", err)
	}
	specs, err := src.Discover()
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}
	if len(specs) != 1 || specs[0].Description != "Espacios Naturales Protegidos" {
		t.Fatalf("specs %+v", specs)
	}
	l, err := src.Load(context.Background(), specs[0], QueryArea{})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if l.CRS != `PROJCS["ETRS89 / UTM zone 30N"]` {
		t.Fatalf("prj not read, got %q", l.CRS)
	}
	if len(l.Features) != 1 {
		t.Fatalf("want 1 feature, got %d", len(l.Features))
	}
	p, ok := l.Features[0].Geometry.(orb.Polygon)
	if !ok || len(p) != 2 {
		t.Fatalf("want polygon with one hole, got %#v", l.Features[0].Geometry)
	}
	if l.Features[0].Properties["NOMBRE"] != "Parque Regional" {
		t.Fatalf("attrs %+v", l.Features[0].Properties)
	}
}

func shpRings(rings ...[]shp.Point) ([]int32, []shp.Point) {
	var parts []int32
	var pts []shp.Point
	for _, r := range rings {
		parts = append(parts, int32(len(pts)))
		pts = append(pts, r...)
	}
	return parts, pts
}

func TestShpPolygon_RingAssignment(t *testing.T) {
	cw := []shp.Point{{X: 0, Y: 0}, {X: 0, Y: 10}, {X: 10, Y: 10}, {X: 10, Y: 0}, {X: 0, Y: 0}}
	hole := []shp.Point{{X: 2, Y: 2}, {X: 4, Y: 2}, {X: 4, Y: 4}, {X: 2, Y: 4}, {X: 2, Y: 2}}
	ccwFar := []shp.Point{{X: 20, Y: 0}, {X: 30, Y: 0}, {X: 30, Y: 10}, {X: 20, Y: 10}, {X: 20, Y: 0}}
	ccwFar2 := []shp.Point{{X: 40, Y: 0}, {X: 50, Y: 0}, {X: 50, Y: 10}, {X: 40, Y: 10}, {X: 40, Y: 0}}

	// counter-clockwise outer rings written by a non-conforming tool
	g := shpPolygon(shpRings(ccwFar, ccwFar2))
	mp, ok := g.(orb.MultiPolygon)
	if !ok || len(mp) != 2 || len(mp[0]) != 1 || len(mp[1]) != 1 {
		t.Fatalf("want two single-ring polygons, got %#v", g)
	}

	g = shpPolygon(shpRings(cw, hole, ccwFar))
	mp, ok = g.(orb.MultiPolygon)
	if !ok || len(mp) != 2 {
		t.Fatalf("want two polygons, got %#v", g)
	}
	if len(mp[0]) != 2 || len(mp[1]) != 1 {
		t.Fatalf("hole misassigned: rings per polygon %d,%d", len(mp[0]), len(mp[1]))
	}
	if !planar.RingContains(mp[1][0], orb.Point{25, 5}) {
		t.Fatalf("second polygon is not the far ring: %v", mp[1][0])
	}
}

func TestLocalSource_Info(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "dph", "cauces.geojson"), `{"type":"FeatureCollection","features":[]}`)
	writeFile(t, filepath.Join(root, "dph", "riberas.geojson"), `{"type":"FeatureCollection","features":[]}`)
	writeFile(t, filepath.Join(root, "vias.gml"), `<x/>`)

	src, err := NewLocalSource(root, 2, nil)
	if err != nil {
		t.Fatalf("NewLocalSource: %v", err)
	}
	info, err := src.Info()
	if err != nil {
		t.Fatalf("Info: %v", err)
	}
	if info.Total != 2 {
		t.Fatalf("want 2 groups, got %+v", info)
	}
	dph := info.Layers["dph"]
	if dph.Name != "Dominio Público Hidráulico" || dph.Category != "hidráulico" || len(dph.Files) != 2 {
		t.Fatalf("dph info %+v", dph)
	}
	if info.Layers["vias"].Category != "desconocido" {
		t.Fatalf("vias info %+v", info.Layers["vias"])
	}
}

func TestLocalSource_MissingRoot(t *testing.T) {
	src, err := NewLocalSource(filepath.Join(t.TempDir(), "nope"), 2, nil)
	if err != nil {
		t.Fatalf("NewLocalSource: %v", err)
	}
	specs, err := src.Discover()
	if err != nil || len(specs) != 0 {
		t.Fatalf("want no layers and no error, got %v %v", specs, err)
	}
}
