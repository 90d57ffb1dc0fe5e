// Package ortho renders reference maps of a parcel's surroundings from the
// local vector layers at several scales.
package ortho

import (
	"context"
	"errors"
	"fmt"
	"image/color"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/paulmach/orb"

	"github.com/mohammed-shakir/catastro-tool/internal/core/model"
	"github.com/mohammed-shakir/catastro-tool/internal/crs"
	"github.com/mohammed-shakir/catastro-tool/internal/export"
	"github.com/mohammed-shakir/catastro-tool/internal/logger"
	"github.com/mohammed-shakir/catastro-tool/internal/mapimg"
	"github.com/mohammed-shakir/catastro-tool/internal/overlay"
	"github.com/mohammed-shakir/catastro-tool/internal/parcelgeom"
	"github.com/mohammed-shakir/catastro-tool/internal/refcat"
)

const (
	// MaxBuffer caps the half-side of a view in metres.
	MaxBuffer     = 10000
	DefaultBuffer = 5000
	DefaultWidth  = 640
	Subdir        = "ortophotos"

	// rough metres per degree at Spanish latitudes
	metresPerDegLon = 85000.0
	metresPerDegLat = 111000.0
)

var ErrNoCoordinates = errors.New("no coordinates for reference")

type Scale struct {
	Title       string
	Description string
	Buffer      int
}

var Scales = []Scale{
	{Title: "Vista Regional", Description: "Provincia y alrededores", Buffer: 50000},
	{Title: "Vista Local", Description: "Municipio y zona cercana", Buffer: 5000},
	{Title: "Vista Detallada", Description: "Parcela y alrededores", Buffer: 1000},
}

// Ortophoto is one rendered view. Buffer is the effective one, after
// capping at MaxBuffer.
type Ortophoto struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	URL         string `json:"url"`
	Buffer      int    `json:"buffer"`
	Layers      int    `json:"layers"`
	Path        string `json:"-"`
}

// LayerSource is the local layer store; *overlay.LocalSource implements it.
type LayerSource interface {
	Discover() ([]overlay.LayerSpec, error)
	Load(ctx context.Context, spec overlay.LayerSpec, area overlay.QueryArea) (*overlay.Layer, error)
}

type Projector interface {
	Geometry(src, dst string, g orb.Geometry) (orb.Geometry, error)
}

type CoordinateResolver interface {
	Resolve(ctx context.Context, ref refcat.Reference, geometryPath string) (model.Coordinates, error)
}

type Generator struct {
	layers LayerSource
	proj   Projector
	coords CoordinateResolver
	layout export.Layout
	width  int
	log    *slog.Logger
}

// New returns a generator. A nil layers source renders placeholder views;
// a nil projector only draws layers already in WGS84.
func New(layers LayerSource, proj Projector, coords CoordinateResolver, layout export.Layout, width int, log *slog.Logger) *Generator {
	if log == nil {
		log = logger.Discard()
	}
	if width <= 0 {
		width = DefaultWidth
	}
	return &Generator{layers: layers, proj: proj, coords: coords, layout: layout, width: width, log: log}
}

// Generate resolves the reference's coordinates, reusing a stored parcel
// geometry when a previous run left one, and renders every scale.
func (g *Generator) Generate(ctx context.Context, raw string) ([]Ortophoto, error) {
	ref, err := refcat.Parse(raw)
	if err != nil {
		return nil, err
	}
	if g.coords == nil {
		return nil, ErrNoCoordinates
	}
	dir, err := g.layout.Prepare(ref.String())
	if err != nil {
		return nil, err
	}
	ctx = logger.WithReference(ctx, ref.String())

	geomPath := filepath.Join(dir, "gml", fmt.Sprintf("%s_%s.gml", ref, parcelgeom.Parcel))
	if _, err := os.Stat(geomPath); err != nil {
		geomPath = ""
	}
	c, err := g.coords.Resolve(ctx, ref, geomPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNoCoordinates, err)
	}
	return g.MultiScale(ctx, ref.String(), c)
}

// MultiScale renders one view per entry of Scales. Views that fail are
// logged and left out.
func (g *Generator) MultiScale(ctx context.Context, ref string, c model.Coordinates) ([]Ortophoto, error) {
	center, err := g.wgs84(c)
	if err != nil {
		return nil, err
	}
	layers := g.load(ctx)
	out := make([]Ortophoto, 0, len(Scales))
	for _, s := range Scales {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		o, err := g.render(ref, center, s.Buffer, layers)
		if err != nil {
			g.log.WarnContext(ctx, "ortophoto not rendered", "buffer", s.Buffer, "err", err)
			continue
		}
		o.Title, o.Description = s.Title, s.Description
		out = append(out, o)
	}
	g.log.InfoContext(ctx, "ortophotos generated", "count", len(out), "layers", len(layers))
	return out, nil
}

// Render draws a single view of buffer metres around c.
func (g *Generator) Render(ctx context.Context, ref string, c model.Coordinates, buffer int) (Ortophoto, error) {
	center, err := g.wgs84(c)
	if err != nil {
		return Ortophoto{}, err
	}
	return g.render(ref, center, buffer, g.load(ctx))
}

func (g *Generator) wgs84(c model.Coordinates) (orb.Point, error) {
	p := orb.Point{c.Lon, c.Lat}
	if c.SRS == "" || crs.Same(c.SRS, crs.WGS84) {
		return p, nil
	}
	if g.proj == nil {
		return orb.Point{}, fmt.Errorf("coordinates in %s need a projector", c.SRS)
	}
	out, err := g.proj.Geometry(c.SRS, crs.WGS84, p)
	if err != nil {
		return orb.Point{}, err
	}
	pt, ok := out.(orb.Point)
	if !ok {
		return orb.Point{}, fmt.Errorf("projector returned %T for a point", out)
	}
	return pt, nil
}

type drawLayer struct {
	spec  overlay.LayerSpec
	geoms []orb.Geometry
}

// load reads every local layer once, in WGS84.
func (g *Generator) load(ctx context.Context) []drawLayer {
	if g.layers == nil {
		return nil
	}
	specs, err := g.layers.Discover()
	if err != nil {
		g.log.WarnContext(ctx, "local layers unavailable", "err", err)
		return nil
	}
	var out []drawLayer
	for _, sp := range specs {
		l, err := g.layers.Load(ctx, sp, overlay.QueryArea{})
		if err != nil {
			g.log.WarnContext(ctx, "local layer skipped", "layer", sp.Name, "err", err)
			continue
		}
		dl := drawLayer{spec: sp}
		for _, f := range l.Features {
			geom := f.Geometry
			if !crs.Same(l.CRS, crs.WGS84) {
				if g.proj == nil {
					break
				}
				if geom, err = g.proj.Geometry(l.CRS, crs.WGS84, geom); err != nil {
					g.log.WarnContext(ctx, "local layer not reprojected", "layer", sp.Name, "err", err)
					break
				}
			}
			if geom != nil {
				dl.geoms = append(dl.geoms, geom)
			}
		}
		if len(dl.geoms) > 0 {
			out = append(out, dl)
		}
	}
	return out
}

var (
	background = color.RGBA{0xF0, 0xF8, 0xFF, 0xFF}
	edgeColor  = color.RGBA{0, 0, 0, 0xFF}
	markColor  = color.RGBA{0xFF, 0, 0, 0xFF}
	noteColor  = color.RGBA{0x80, 0x80, 0x80, 0xFF}
)

// ViewBounds is the WGS84 box of buffer metres around center, after
// capping the buffer.
func ViewBounds(center orb.Point, buffer int) (orb.Bound, int) {
	buffer = min(buffer, MaxBuffer)
	dx := float64(buffer) / metresPerDegLon
	dy := float64(buffer) / metresPerDegLat
	return orb.Bound{
		Min: orb.Point{center[0] - dx, center[1] - dy},
		Max: orb.Point{center[0] + dx, center[1] + dy},
	}, buffer
}

func (g *Generator) render(ref string, center orb.Point, buffer int, layers []drawLayer) (Ortophoto, error) {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	view, buffer := ViewBounds(center, buffer)
	c, err := mapimg.New(view, g.width, background)
	if err != nil {
		return Ortophoto{}, err
	}

	drawn := 0
	for _, l := range layers {
		var hits []orb.Geometry
		for _, geom := range l.geoms {
			if geom.Bound().Intersects(view) {
				hits = append(hits, geom)
			}
		}
		if len(hits) == 0 {
			continue
		}
		drawLayerGeoms(c, l.spec, hits)
		drawn++
	}
	if drawn == 0 {
		c.Centered(noteColor,
			"Area de estudio",
			"Referencia: "+ref,
			fmt.Sprintf("Buffer: %dm", buffer),
			"(Sin capas locales en esta zona)")
	}
	c.Star(center, 14, markColor)
	c.Caption("Ortofoto Local - "+ref, fmt.Sprintf("Buffer: %dm", buffer))

	b, err := c.PNG()
	if err != nil {
		return Ortophoto{}, err
	}
	dir := filepath.Join(g.layout.Dir(ref), Subdir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return Ortophoto{}, err
	}
	name := fmt.Sprintf("ortofoto_local_%dm.png", buffer)
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, b, 0o644); err != nil {
		return Ortophoto{}, fmt.Errorf("write %s: %w", name, err)
	}
	return Ortophoto{URL: g.layout.URL(ref, Subdir, name), Buffer: buffer, Layers: drawn, Path: p}, nil
}

// drawLayerGeoms applies the folder style: translucent polygons with a thin
// black edge, or solid lines.
func drawLayerGeoms(c *mapimg.Canvas, spec overlay.LayerSpec, geoms []orb.Geometry) {
	col, err := mapimg.ParseHex(spec.Color, 0xFF)
	if err != nil {
		col, _ = mapimg.ParseHex("#808080", 0xFF)
	}
	if spec.Style == overlay.StyleLine {
		for _, g := range geoms {
			c.Stroke(g, col, 2)
		}
		return
	}
	fill := col
	fill.A = 77
	for _, g := range geoms {
		c.Fill(g, fill)
		c.Stroke(g, edgeColor, 0.5)
		if isLinear(g) {
			c.Stroke(g, col, 2)
		}
	}
}

func isLinear(g orb.Geometry) bool {
	switch g.(type) {
	case orb.LineString, orb.MultiLineString:
		return true
	}
	return false
}
