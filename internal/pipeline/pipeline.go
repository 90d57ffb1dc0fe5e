// Package pipeline runs the fixed download sequence for one cadastral
// reference and aggregates per-step outcomes.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"runtime/debug"
	"time"

	"github.com/google/uuid"
	"github.com/paulmach/orb"

	"github.com/mohammed-shakir/catastro-tool/internal/core/executor"
	"github.com/mohammed-shakir/catastro-tool/internal/core/model"
	"github.com/mohammed-shakir/catastro-tool/internal/core/observability"
	"github.com/mohammed-shakir/catastro-tool/internal/crs"
	"github.com/mohammed-shakir/catastro-tool/internal/documents"
	"github.com/mohammed-shakir/catastro-tool/internal/export"
	"github.com/mohammed-shakir/catastro-tool/internal/logger"
	"github.com/mohammed-shakir/catastro-tool/internal/overlay"
	"github.com/mohammed-shakir/catastro-tool/internal/parcelgeom"
	"github.com/mohammed-shakir/catastro-tool/internal/raster"
	"github.com/mohammed-shakir/catastro-tool/internal/refcat"
)

type DocumentFetcher interface {
	FetchDescriptive(ctx context.Context, ref, dir string) (documents.Descriptive, error)
	FetchFiche(ctx context.Context, ref, dir string) (string, error)
	FetchSigpac(ctx context.Context, req documents.SigpacRequest, dir string) (string, error)
}

type GeometryFetcher interface {
	FetchParcel(ctx context.Context, ref refcat.Reference, dir string) (parcelgeom.GeometryFile, error)
	FetchBuilding(ctx context.Context, ref refcat.Reference, dir string) (parcelgeom.GeometryFile, error)
}

type CoordinateResolver interface {
	Resolve(ctx context.Context, ref refcat.Reference, geometryPath string) (model.Coordinates, error)
}

type TileFetcher interface {
	FetchTiles(ctx context.Context, ref string, c model.Coordinates, levels []raster.Level, dir string) ([]model.RasterArtifact, error)
}

type OverlayAnalyzer interface {
	Analyze(ctx context.Context, parcel overlay.Parcel, specs []overlay.LayerSpec) ([]model.AffectationResult, error)
	Summarize(ctx context.Context, parcel overlay.Parcel) (overlay.Summary, error)
}

// Projector moves a point between CRSs; *crs.Transformer implements it.
type Projector interface {
	Point(src, dst string, p orb.Point) (orb.Point, error)
}

// Deps are the collaborators of a run. A nil Overlay skips the overlay
// step; a nil Raster skips the tiles step.
type Deps struct {
	Layout    export.Layout
	Documents DocumentFetcher
	Geometry  GeometryFetcher
	Coords    CoordinateResolver
	Raster    TileFetcher
	Overlay   OverlayAnalyzer
	Catalog   func() ([]overlay.LayerSpec, error)
	Projector Projector
}

type Options struct {
	Levels     []raster.Level
	BatchDelay time.Duration
}

type Orchestrator struct {
	deps  Deps
	opts  Options
	log   *slog.Logger
	locks *refLocks
	sleep func(context.Context, time.Duration) error
	now   func() time.Time
}

func New(deps Deps, opts Options, log *slog.Logger) *Orchestrator {
	if log == nil {
		log = logger.Discard()
	}
	if opts.Levels == nil {
		opts.Levels = raster.Levels
	}
	return &Orchestrator{deps: deps, opts: opts, log: log, locks: newRefLocks(), sleep: executor.Sleep, now: time.Now}
}

// skipError marks a step that did not run because a prerequisite is missing.
type skipError struct{ reason string }

func (s *skipError) Error() string { return "skipped: " + s.reason }

func skip(reason string) error { return &skipError{reason: reason} }

// run is the per-reference state shared by the steps.
type run struct {
	ref    refcat.Reference
	dir    string
	parcel *parcelgeom.GeometryFile
	res    *model.RunResult
}

// Process runs every step for raw. It never panics and never returns an
// error: failures are reported through the result. Runs of the same
// reference are serialized since they share an output directory.
func (o *Orchestrator) Process(ctx context.Context, raw string) (res model.RunResult) {
	res = model.RunResult{RunID: uuid.NewString(), Input: raw, StartedAt: o.now()}
	ctx = logger.WithRunID(ctx, res.RunID)
	defer func() {
		if p := recover(); p != nil {
			o.log.ErrorContext(ctx, "run panicked", "panic", p, "stack", string(debug.Stack()))
			res.Status = model.StatusFailed
			res.Error = fmt.Sprintf("panic: %v", p)
		}
		res.FinishedAt = o.now()
	}()

	ref, err := refcat.Parse(raw)
	if err != nil {
		res.Status = model.StatusFailed
		res.Error = err.Error()
		o.log.WarnContext(ctx, "invalid reference", "input", raw, "err", err)
		return res
	}
	res.Reference = ref.String()
	ctx = logger.WithReference(ctx, res.Reference)

	release, err := o.locks.acquire(ctx, res.Reference)
	if err != nil {
		res.Status = model.StatusFailed
		res.Error = err.Error()
		o.log.WarnContext(ctx, "gave up waiting for a concurrent run", "err", err)
		return res
	}
	defer release()

	dir, err := o.deps.Layout.Prepare(res.Reference)
	if err != nil {
		res.Status = model.StatusFailed
		res.Error = err.Error()
		o.log.ErrorContext(ctx, "output directory unavailable", "err", err)
		return res
	}
	res.OutputDir = dir
	o.log.InfoContext(ctx, "processing reference", "dir", dir)

	r := &run{ref: ref, dir: dir, res: &res}
	steps := []struct {
		name model.StepName
		fn   func(context.Context, *run) error
	}{
		{model.StepDescriptive, o.descriptive},
		{model.StepParcelGeometry, o.parcelGeometry},
		{model.StepCoordinates, o.coordinates},
		{model.StepRasterTiles, o.rasterTiles},
		{model.StepBuildingGeometry, o.buildingGeometry},
		{model.StepFiche, o.fiche},
		{model.StepOverlay, o.overlay},
		{model.StepSigpac, o.sigpac},
		{model.StepBundle, o.bundle},
	}
	for _, s := range steps {
		res.Steps = append(res.Steps, o.step(ctx, r, s.name, s.fn))
	}

	res.Status = status(res)
	if res.Status == model.StatusFailed && res.Error == "" {
		res.Error = "neither parcel geometry nor coordinates could be obtained"
	}
	ok, total := res.Tally()
	o.log.InfoContext(ctx, "reference processed", "status", res.Status, "ok_steps", ok, "steps", total)
	return res
}

// step runs fn, converting errors, skips and panics into an outcome.
func (o *Orchestrator) step(ctx context.Context, r *run, name model.StepName, fn func(context.Context, *run) error) (out model.StepOutcome) {
	ctx = logger.WithStep(ctx, string(name))
	start := o.now()
	out.Name = name
	defer func() {
		if p := recover(); p != nil {
			o.log.ErrorContext(ctx, "step panicked", "panic", p, "stack", string(debug.Stack()))
			out.OK = false
			out.Error = fmt.Sprintf("panic: %v", p)
		}
		out.Duration = o.now().Sub(start)
		switch {
		case out.OK:
			observability.ObserveStep(string(name), "ok")
		case out.Skipped:
			observability.ObserveStep(string(name), "skipped")
		default:
			observability.ObserveStep(string(name), "failed")
		}
	}()

	err := fn(ctx, r)
	var se *skipError
	switch {
	case err == nil:
		out.OK = true
	case errors.As(err, &se):
		out.Skipped = true
		out.Error = se.Error()
		o.log.InfoContext(ctx, "step skipped", "reason", se.reason)
	default:
		out.Error = err.Error()
		o.log.WarnContext(ctx, "step failed", "err", err)
	}
	return out
}

func status(res model.RunResult) model.RunStatus {
	if res.Error != "" {
		return model.StatusFailed
	}
	parcel, _ := res.Step(model.StepParcelGeometry)
	if res.Coordinates == nil && !parcel.OK {
		return model.StatusFailed
	}
	ok, total := res.Tally()
	if ok == total {
		return model.StatusSuccess
	}
	return model.StatusPartial
}

func (o *Orchestrator) descriptive(ctx context.Context, r *run) error {
	_, err := o.deps.Documents.FetchDescriptive(ctx, r.ref.String(), r.dir)
	return err
}

func (o *Orchestrator) parcelGeometry(ctx context.Context, r *run) error {
	gf, err := o.deps.Geometry.FetchParcel(ctx, r.ref, r.dir)
	if err != nil {
		return err
	}
	r.parcel = &gf
	return nil
}

func (o *Orchestrator) coordinates(ctx context.Context, r *run) error {
	path := ""
	if r.parcel != nil {
		path = r.parcel.Path
	}
	c, err := o.deps.Coords.Resolve(ctx, r.ref, path)
	if err != nil {
		return err
	}
	r.res.Coordinates = &c
	return nil
}

func (o *Orchestrator) rasterTiles(ctx context.Context, r *run) error {
	if r.res.Coordinates == nil {
		return skip("no coordinates")
	}
	if o.deps.Raster == nil {
		return skip("raster fetcher not configured")
	}
	arts, err := o.deps.Raster.FetchTiles(ctx, r.ref.String(), *r.res.Coordinates, o.opts.Levels, r.dir)
	r.res.Rasters = arts
	return err
}

func (o *Orchestrator) buildingGeometry(ctx context.Context, r *run) error {
	_, err := o.deps.Geometry.FetchBuilding(ctx, r.ref, r.dir)
	return err
}

func (o *Orchestrator) fiche(ctx context.Context, r *run) error {
	_, err := o.deps.Documents.FetchFiche(ctx, r.ref.String(), r.dir)
	return err
}

func (o *Orchestrator) overlay(ctx context.Context, r *run) error {
	if o.deps.Overlay == nil {
		return skip("overlay engine not configured")
	}
	if r.parcel == nil || r.parcel.Doc == nil {
		return skip("no parcel geometry")
	}
	polys := r.parcel.Doc.Polygons()
	if len(polys) == 0 {
		return skip("parcel geometry has no polygons")
	}
	var specs []overlay.LayerSpec
	if o.deps.Catalog != nil {
		var err error
		if specs, err = o.deps.Catalog(); err != nil {
			return fmt.Errorf("layer catalog: %w", err)
		}
	}

	var geom orb.Geometry = polys
	if len(polys) == 1 {
		geom = polys[0]
	}
	parcel := overlay.Parcel{
		Ref:      r.ref,
		Geometry: geom,
		CRS:      r.parcel.SRS,
		MapDir:   filepath.Join(r.dir, "images"),
		MapURL:   o.deps.Layout.URL(r.ref.String(), "images"),
	}
	results, err := o.deps.Overlay.Analyze(ctx, parcel, specs)
	if err != nil {
		return err
	}
	r.res.Affectations = results

	sum, err := o.deps.Overlay.Summarize(ctx, parcel)
	if err != nil {
		return err
	}
	_, _, err = export.WriteAffectations(r.dir, export.NewAffectationReport(sum, results))
	return err
}

func (o *Orchestrator) sigpac(ctx context.Context, r *run) error {
	c := r.res.Coordinates
	if c == nil {
		return skip("no coordinates")
	}
	if o.deps.Projector == nil {
		return skip("no projector for sigpac centre")
	}
	srs := r.ref.ProjectedCRS()
	p, err := o.deps.Projector.Point(crs.WGS84, srs, orb.Point{c.Lon, c.Lat})
	if err != nil {
		return err
	}
	_, err = o.deps.Documents.FetchSigpac(ctx, documents.SigpacRequest{
		Ref: r.ref.String(),
		X:   int(p[0]),
		Y:   int(p[1]),
		SRS: srs,
	}, r.dir)
	return err
}

func (o *Orchestrator) bundle(ctx context.Context, r *run) error {
	snapshot := *r.res
	snapshot.Status = status(snapshot)
	snapshot.FinishedAt = o.now()
	if _, err := export.WriteRunSummary(r.dir, snapshot); err != nil {
		return err
	}
	zp, err := o.deps.Layout.Zip(r.ref.String())
	if err != nil {
		return err
	}
	r.res.ZipPath = zp
	o.log.InfoContext(ctx, "bundle written", "zip", zp)
	return nil
}

// Batch processes every input in order with BatchDelay between items. The
// result has one entry per distinct input string.
func (o *Orchestrator) Batch(ctx context.Context, inputs []string) map[string]model.RunResult {
	out := make(map[string]model.RunResult, len(inputs))
	for i, in := range inputs {
		if i > 0 && o.opts.BatchDelay > 0 {
			if err := o.sleep(ctx, o.opts.BatchDelay); err != nil {
				o.log.WarnContext(ctx, "batch interrupted", "done", i, "total", len(inputs), "err", err)
				for _, rest := range inputs[i:] {
					if _, seen := out[rest]; !seen {
						out[rest] = model.RunResult{Input: rest, Status: model.StatusFailed, Error: err.Error()}
					}
				}
				return out
			}
		}
		out[in] = o.Process(ctx, in)
	}
	return out
}
