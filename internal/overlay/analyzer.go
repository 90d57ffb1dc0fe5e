// Package overlay measures how much of a parcel is covered by each
// environmental or infrastructure vector layer.
package overlay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"

	"github.com/mohammed-shakir/catastro-tool/internal/core/executor"
	"github.com/mohammed-shakir/catastro-tool/internal/core/model"
	"github.com/mohammed-shakir/catastro-tool/internal/core/observability"
	"github.com/mohammed-shakir/catastro-tool/internal/crs"
	"github.com/mohammed-shakir/catastro-tool/internal/logger"
	"github.com/mohammed-shakir/catastro-tool/internal/mapper"
	"github.com/mohammed-shakir/catastro-tool/internal/refcat"
)

var (
	ErrInvalidParcel = errors.New("invalid parcel geometry")
	ErrNoSource      = errors.New("no source for layer")
)

// Parcel is the geometry under analysis. CRS defaults to the projected CRS
// of the reference. When MapDir is set and maps are enabled, a PNG is
// written there for every affecting layer and linked as MapURL/<file>.
type Parcel struct {
	Ref      refcat.Reference
	Geometry orb.Geometry
	CRS      string
	MapDir   string
	MapURL   string
}

type Options struct {
	Local      Source
	Remote     Source
	Mapper     mapper.Interface
	H3Res      int
	LayerDelay time.Duration
	// MapWidth is the width in pixels of per-layer maps; 0 disables them.
	MapWidth int
}

type Analyzer struct {
	engine GeometryEngine
	tr     *crs.Transformer
	opts   Options
	log    *slog.Logger
	sleep  func(context.Context, time.Duration) error
}

func NewAnalyzer(engine GeometryEngine, tr *crs.Transformer, opts Options, log *slog.Logger) *Analyzer {
	if log == nil {
		log = logger.Discard()
	}
	return &Analyzer{engine: engine, tr: tr, opts: opts, log: log, sleep: executor.Sleep}
}

// metricParcel returns the parcel geometry in the projected CRS of its
// reference together with that CRS.
func (a *Analyzer) metricParcel(p Parcel) (orb.Geometry, string, error) {
	if p.Geometry == nil {
		return nil, "", ErrInvalidParcel
	}
	metric := p.Ref.ProjectedCRS()
	src := p.CRS
	if src == "" {
		src = metric
	}
	if crs.Same(src, metric) {
		return p.Geometry, metric, nil
	}
	if a.tr == nil {
		return nil, "", fmt.Errorf("%w: parcel in %s needs a transformer", ErrInvalidParcel, src)
	}
	g, err := a.tr.Geometry(src, metric, p.Geometry)
	if err != nil {
		return nil, "", err
	}
	return g, metric, nil
}

// Analyze returns one result per spec, in spec order. Layer failures are
// recorded on the layer's result; the error is only set when the parcel
// itself cannot be measured.
func (a *Analyzer) Analyze(ctx context.Context, parcel Parcel, specs []LayerSpec) ([]model.AffectationResult, error) {
	geom, metric, err := a.metricParcel(parcel)
	if err != nil {
		return nil, err
	}
	parcelArea, err := a.engine.Area(geom)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidParcel, err)
	}
	if parcelArea <= 0 {
		return nil, fmt.Errorf("%w: zero area", ErrInvalidParcel)
	}

	var (
		area      QueryArea
		areaReady bool
		remotes   int
	)
	results := make([]model.AffectationResult, 0, len(specs))
	for _, spec := range specs {
		if err := ctx.Err(); err != nil {
			return results, err
		}
		if spec.Source == SourceRemote {
			if remotes > 0 && a.opts.LayerDelay > 0 {
				if err := a.sleep(ctx, a.opts.LayerDelay); err != nil {
					return results, err
				}
			}
			remotes++
			if !areaReady {
				area = a.queryArea(ctx, geom, metric)
				areaReady = true
			}
		}

		res := a.analyzeLayer(ctx, spec, parcel, geom, metric, parcelArea, area)
		switch {
		case res.Error != "":
			observability.ObserveOverlayLayer(spec.Name, "error")
		case res.Detected:
			observability.ObserveOverlayLayer(spec.Name, "detected")
		default:
			observability.ObserveOverlayLayer(spec.Name, "clear")
		}
		results = append(results, res)
	}
	return results, nil
}

func (a *Analyzer) analyzeLayer(ctx context.Context, spec LayerSpec, p Parcel, parcel orb.Geometry, metric string, parcelArea float64, area QueryArea) model.AffectationResult {
	res := model.AffectationResult{
		Layer:       spec.Name,
		Description: spec.Description,
		Category:    spec.Category,
		Impact:      spec.Impact,
		Source:      string(spec.Source),
	}
	fail := func(err error) model.AffectationResult {
		a.log.WarnContext(ctx, "layer analysis failed", "layer", spec.Name, "err", err)
		res.Error = err.Error()
		return res
	}

	src := a.opts.Remote
	if spec.Source == SourceLocal {
		src = a.opts.Local
	}
	if src == nil {
		return fail(fmt.Errorf("%w %s (%s)", ErrNoSource, spec.Name, spec.Source))
	}

	layer, err := src.Load(ctx, spec, area)
	if err != nil {
		return fail(err)
	}

	bound := parcel.Bound()
	view := bound.Pad(MapMargin)
	geoms := make([]orb.Geometry, 0, len(layer.Features))
	props := make([]map[string]string, 0, len(layer.Features))
	var nearby []orb.Geometry
	for _, f := range layer.Features {
		g := f.Geometry
		if !crs.Same(layer.CRS, metric) {
			if a.tr == nil {
				return fail(fmt.Errorf("layer %s in %s needs a transformer", spec.Name, layer.CRS))
			}
			g, err = a.tr.Geometry(layer.CRS, metric, g)
			if err != nil {
				return fail(err)
			}
		}
		if g == nil || !g.Bound().Intersects(view) {
			continue
		}
		nearby = append(nearby, g)
		if !g.Bound().Intersects(bound) {
			continue
		}
		geoms = append(geoms, g)
		props = append(props, f.Properties)
	}
	if len(geoms) == 0 {
		return res
	}

	inter, err := a.engine.Intersect(parcel, geoms)
	if err != nil {
		return fail(err)
	}
	if inter.AreaM2 <= 0 {
		return res
	}

	res.Detected = true
	res.AffectedAreaM2 = round2(inter.AreaM2)
	res.PercentOfParcel = round2(inter.AreaM2 / parcelArea * 100)
	res.ElementCount = len(inter.Hits)
	for _, i := range inter.Hits {
		if name, ok := featureName(props[i]); ok && name != "" {
			res.Names = append(res.Names, name)
		}
	}
	if a.opts.MapWidth > 0 && p.MapDir != "" {
		if url, err := a.writeLayerMap(p, spec, parcel, nearby); err != nil {
			a.log.WarnContext(ctx, "layer map not written", "layer", spec.Name, "err", err)
		} else {
			res.MapURL = url
		}
	}
	if res.PercentOfParcel > 100 {
		// multi-part parcels with overlapping parts can exceed the parcel area
		a.log.WarnContext(ctx, "affected share above 100%", "layer", spec.Name, "percent", res.PercentOfParcel)
	}
	a.log.InfoContext(ctx, "layer affects parcel", "layer", spec.Name, "area_m2", res.AffectedAreaM2, "percent", res.PercentOfParcel)
	return res
}

// queryArea is the WGS84 bbox and H3 cell used to scope remote requests.
func (a *Analyzer) queryArea(ctx context.Context, geom orb.Geometry, metric string) QueryArea {
	b := geom.Bound()
	out := QueryArea{BBox: model.BBox{X1: b.Min[0], Y1: b.Min[1], X2: b.Max[0], Y2: b.Max[1], SRID: metric}}
	if a.tr == nil {
		return out
	}
	// a projected rectangle is not axis-aligned in WGS84: envelope all corners
	var wgs orb.Bound
	for i, p := range []orb.Point{b.Min, {b.Max[0], b.Min[1]}, b.Max, {b.Min[0], b.Max[1]}} {
		ll, err := a.tr.Point(metric, crs.WGS84, p)
		if err != nil {
			a.log.WarnContext(ctx, "query bbox left in projected crs", "err", err)
			return out
		}
		if i == 0 {
			wgs = ll.Bound()
			continue
		}
		wgs = wgs.Extend(ll)
	}
	out.BBox = model.BBox{X1: wgs.Min[0], Y1: wgs.Min[1], X2: wgs.Max[0], Y2: wgs.Max[1], SRID: crs.WGS84}

	if a.opts.Mapper != nil {
		c, _ := planar.CentroidArea(geom)
		if ll, err := a.tr.Point(metric, crs.WGS84, c); err == nil {
			if cell, err := a.opts.Mapper.CellForPoint(ll[0], ll[1], a.opts.H3Res); err == nil {
				out.Cell = cell
			}
		}
	}
	return out
}

// Summary describes the parcel itself for reports.
type Summary struct {
	Reference string  `json:"referencia"`
	AreaM2    float64 `json:"area_parcela_m2"`
	Lat       float64 `json:"latitud"`
	Lon       float64 `json:"longitud"`
	UTMX      float64 `json:"utm_x"`
	UTMY      float64 `json:"utm_y"`
	UTMZone   int     `json:"huso_utm"`
	H3Cell    string  `json:"h3_cell,omitempty"`
}

// Summarize measures the parcel and locates its centroid in UTM and WGS84.
func (a *Analyzer) Summarize(ctx context.Context, parcel Parcel) (Summary, error) {
	geom, metric, err := a.metricParcel(parcel)
	if err != nil {
		return Summary{}, err
	}
	ar, err := a.engine.Area(geom)
	if err != nil {
		return Summary{}, err
	}
	c, _ := planar.CentroidArea(geom)
	s := Summary{
		Reference: parcel.Ref.String(),
		AreaM2:    round2(ar),
		UTMX:      round2(c[0]),
		UTMY:      round2(c[1]),
		UTMZone:   parcel.Ref.UTMZone(),
	}
	if a.tr == nil {
		return s, nil
	}
	ll, err := a.tr.Point(metric, crs.WGS84, c)
	if err != nil {
		a.log.WarnContext(ctx, "centroid not reprojected", "err", err)
		return s, nil
	}
	s.Lon, s.Lat = ll[0], ll[1]
	if a.opts.Mapper != nil {
		if cell, err := a.opts.Mapper.CellForPoint(ll[0], ll[1], a.opts.H3Res); err == nil {
			s.H3Cell = cell
		}
	}
	return s, nil
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
