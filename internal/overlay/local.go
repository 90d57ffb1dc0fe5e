package overlay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/jonas-p/go-shp"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/planar"

	"github.com/mohammed-shakir/catastro-tool/internal/crs"
	"github.com/mohammed-shakir/catastro-tool/internal/gml"
	"github.com/mohammed-shakir/catastro-tool/internal/logger"
)

var ErrUnsupportedFormat = errors.New("unsupported layer format")

var layerExts = map[string]bool{
	".shp":     true,
	".geojson": true,
	".json":    true,
	".gml":     true,
}

type cachedLayer struct {
	modTime time.Time
	size    int64
	layer   *Layer
}

// LocalSource reads layers stored under a directory tree. Parsed files are
// kept in an LRU and reloaded when their size or mtime changes.
type LocalSource struct {
	root  string
	cache *lru.Cache[string, cachedLayer]
	log   *slog.Logger
	mu    sync.Mutex
}

func NewLocalSource(root string, cacheSize int, log *slog.Logger) (*LocalSource, error) {
	if log == nil {
		log = logger.Discard()
	}
	if cacheSize <= 0 {
		cacheSize = 16
	}
	c, err := lru.New[string, cachedLayer](cacheSize)
	if err != nil {
		return nil, err
	}
	return &LocalSource{root: root, cache: c, log: log}, nil
}

func (s *LocalSource) Root() string { return s.root }

// Discover walks the root and returns one LayerSpec per supported file.
// The layer name is the file stem; display metadata comes from the known
// folder the file lives in, if any.
func (s *LocalSource) Discover() ([]LayerSpec, error) {
	if _, err := os.Stat(s.root); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}

	var specs []LayerSpec
	err := filepath.WalkDir(s.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !layerExts[strings.ToLower(filepath.Ext(path))] {
			return nil
		}
		specs = append(specs, s.specFor(path))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("discover layers in %s: %w", s.root, err)
	}
	sort.Slice(specs, func(i, j int) bool { return specs[i].Path < specs[j].Path })
	return specs, nil
}

func (s *LocalSource) specFor(path string) LayerSpec {
	stem := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	spec := LayerSpec{
		Name:        stem,
		Description: stem,
		Source:      SourceLocal,
		Path:        path,
	}
	rel, err := filepath.Rel(s.root, path)
	if err != nil {
		return spec
	}
	top := strings.Split(filepath.ToSlash(rel), "/")[0]
	if info, ok := knownFolders[top]; ok {
		spec.Description = info.Description
		spec.Category = info.Category
		spec.Color = info.Color
		spec.Style = info.Style
	}
	return spec
}

// FolderInfo describes one top-level layer folder for listings.
type FolderInfo struct {
	Name        string   `json:"nombre"`
	Category    string   `json:"tipo"`
	Color       string   `json:"color,omitempty"`
	Style       string   `json:"estilo,omitempty"`
	Files       []string `json:"archivos_disponibles"`
	Description string   `json:"descripcion,omitempty"`
}

type CatalogInfo struct {
	Total  int                   `json:"total_capas"`
	Layers map[string]FolderInfo `json:"capas"`
}

// Info groups the discovered files by their top-level folder. Files lying
// directly under the root are grouped under their own stem.
func (s *LocalSource) Info() (CatalogInfo, error) {
	specs, err := s.Discover()
	if err != nil {
		return CatalogInfo{}, err
	}
	out := CatalogInfo{Layers: make(map[string]FolderInfo)}
	for _, sp := range specs {
		rel, err := filepath.Rel(s.root, sp.Path)
		if err != nil {
			continue
		}
		parts := strings.Split(filepath.ToSlash(rel), "/")
		key := sp.Name
		if len(parts) > 1 {
			key = parts[0]
		}
		fi, ok := out.Layers[key]
		if !ok {
			fi = FolderInfo{Name: key, Category: "desconocido"}
			if info, known := knownFolders[key]; known {
				fi.Name = info.Description
				fi.Category = info.Category
				fi.Color = info.Color
				fi.Style = info.Style
			}
		}
		fi.Files = append(fi.Files, filepath.Base(sp.Path))
		out.Layers[key] = fi
	}
	out.Total = len(out.Layers)
	return out, nil
}

// Load parses the layer at spec.Path; the whole file is read regardless of
// area. A CRS set on the spec overrides the one read from the data and
// layers without any CRS are taken as WGS84.
func (s *LocalSource) Load(ctx context.Context, spec LayerSpec, _ QueryArea) (*Layer, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	st, err := os.Stat(spec.Path)
	if err != nil {
		return nil, fmt.Errorf("stat layer %s: %w", spec.Path, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.cache.Get(spec.Path); ok && c.modTime.Equal(st.ModTime()) && c.size == st.Size() {
		return withSpec(c.layer, spec), nil
	}

	var l *Layer
	switch strings.ToLower(filepath.Ext(spec.Path)) {
	case ".shp":
		l, err = readShapefile(spec.Path)
	case ".geojson", ".json":
		l, err = readGeoJSON(spec.Path)
	case ".gml":
		l, err = readGML(spec.Path)
	default:
		err = fmt.Errorf("%w: %s", ErrUnsupportedFormat, spec.Path)
	}
	if err != nil {
		return nil, err
	}
	if l.CRS == "" {
		l.CRS = crs.WGS84
	}
	s.cache.Add(spec.Path, cachedLayer{modTime: st.ModTime(), size: st.Size(), layer: l})
	s.log.DebugContext(ctx, "local layer loaded", "path", spec.Path, "features", len(l.Features), "crs", crs.Canonical(l.CRS))
	return withSpec(l, spec), nil
}

func withSpec(l *Layer, spec LayerSpec) *Layer {
	out := &Layer{Spec: spec, CRS: l.CRS, Features: l.Features}
	if spec.CRS != "" {
		out.CRS = spec.CRS
	}
	return out
}

func readShapefile(path string) (*Layer, error) {
	r, err := shp.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open shapefile %s: %w", path, err)
	}
	defer r.Close()

	fields := r.Fields()
	l := &Layer{CRS: readPRJ(path)}
	for r.Next() {
		idx, shape := r.Shape()
		g := shapeGeometry(shape)
		if g == nil {
			continue
		}
		props := make(map[string]string, len(fields))
		for i, f := range fields {
			props[f.String()] = strings.TrimSpace(r.ReadAttribute(idx, i))
		}
		l.Features = append(l.Features, Feature{Geometry: g, Properties: props})
	}
	if err := r.Err(); err != nil {
		return nil, fmt.Errorf("read shapefile %s: %w", path, err)
	}
	return l, nil
}

// readPRJ returns the WKT stored next to a shapefile, or "".
func readPRJ(shpPath string) string {
	b, err := os.ReadFile(strings.TrimSuffix(shpPath, filepath.Ext(shpPath)) + ".prj")
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(b))
}

func shapeGeometry(shape shp.Shape) orb.Geometry {
	switch s := shape.(type) {
	case *shp.Polygon:
		return shpPolygon(s.Parts, s.Points)
	case *shp.PolygonZ:
		return shpPolygon(s.Parts, s.Points)
	case *shp.PolyLine:
		return shpLines(s.Parts, s.Points)
	case *shp.PolyLineZ:
		return shpLines(s.Parts, s.Points)
	case *shp.Point:
		return orb.Point{s.X, s.Y}
	}
	return nil
}

func splitParts(parts []int32, pts []shp.Point) [][]orb.Point {
	out := make([][]orb.Point, 0, len(parts))
	for i := range parts {
		start := parts[i]
		end := int32(len(pts))
		if i+1 < len(parts) {
			end = parts[i+1]
		}
		if start < 0 || start > end || end > int32(len(pts)) {
			continue
		}
		ring := make([]orb.Point, 0, end-start)
		for _, p := range pts[start:end] {
			ring = append(ring, orb.Point{p.X, p.Y})
		}
		out = append(out, ring)
	}
	return out
}

// shpPolygon groups rings into polygons. Shapefile outer rings are
// clockwise and holes counter-clockwise, but writers disagree on winding, so
// a counter-clockwise ring only becomes a hole when an outer ring contains
// it; otherwise it starts a polygon of its own.
func shpPolygon(parts []int32, pts []shp.Point) orb.Geometry {
	var mp orb.MultiPolygon
	for _, r := range splitParts(parts, pts) {
		ring := orb.Ring(r)
		if len(ring) < 4 {
			continue
		}
		if ring.Orientation() == orb.CCW {
			if i := containingPolygon(mp, ring); i >= 0 {
				mp[i] = append(mp[i], ring)
				continue
			}
		}
		mp = append(mp, orb.Polygon{ring})
	}
	switch len(mp) {
	case 0:
		return nil
	case 1:
		return mp[0]
	}
	return mp
}

// containingPolygon returns the index of the last polygon whose outer ring
// contains ring, or -1.
func containingPolygon(mp orb.MultiPolygon, ring orb.Ring) int {
	rb := ring.Bound()
	for i := len(mp) - 1; i >= 0; i-- {
		outer := mp[i][0]
		if !outer.Bound().Contains(rb.Min) || !outer.Bound().Contains(rb.Max) {
			continue
		}
		inside := true
		for _, p := range ring[:len(ring)-1] {
			if !planar.RingContains(outer, p) {
				inside = false
				break
			}
		}
		if inside {
			return i
		}
	}
	return -1
}

func shpLines(parts []int32, pts []shp.Point) orb.Geometry {
	var mls orb.MultiLineString
	for _, r := range splitParts(parts, pts) {
		if len(r) >= 2 {
			mls = append(mls, orb.LineString(r))
		}
	}
	switch len(mls) {
	case 0:
		return nil
	case 1:
		return mls[0]
	}
	return mls
}

// legacyCRS is the pre-RFC 7946 "crs" member still written by many tools.
type legacyCRS struct {
	CRS struct {
		Properties struct {
			Name string `json:"name"`
		} `json:"properties"`
	} `json:"crs"`
}

func readGeoJSON(path string) (*Layer, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	fc, err := geojson.UnmarshalFeatureCollection(b)
	if err != nil {
		return nil, fmt.Errorf("decode geojson %s: %w", path, err)
	}
	var lc legacyCRS
	_ = json.Unmarshal(b, &lc)

	l := &Layer{CRS: lc.CRS.Properties.Name}
	for _, f := range fc.Features {
		if f.Geometry == nil {
			continue
		}
		props := make(map[string]string, len(f.Properties))
		for k, v := range f.Properties {
			if v == nil {
				continue
			}
			props[k] = fmt.Sprint(v)
		}
		l.Features = append(l.Features, Feature{Geometry: f.Geometry, Properties: props})
	}
	return l, nil
}

func readGML(path string) (*Layer, error) {
	doc, err := gml.ParseFile(path)
	if err != nil {
		return nil, fmt.Errorf("decode gml %s: %w", path, err)
	}
	return fromGML(doc), nil
}

func fromGML(doc *gml.Document) *Layer {
	l := &Layer{CRS: doc.SRS}
	for _, f := range doc.Features {
		if f.Geometry == nil {
			continue
		}
		l.Features = append(l.Features, Feature{Geometry: f.Geometry, Properties: f.Properties})
	}
	return l
}
