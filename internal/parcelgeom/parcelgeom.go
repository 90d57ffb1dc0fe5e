// Package parcelgeom downloads parcel and building geometry from the
// cadastre INSPIRE feature services.
package parcelgeom

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/mohammed-shakir/catastro-tool/internal/core/executor"
	"github.com/mohammed-shakir/catastro-tool/internal/core/ogc"
	"github.com/mohammed-shakir/catastro-tool/internal/crs"
	"github.com/mohammed-shakir/catastro-tool/internal/gml"
	"github.com/mohammed-shakir/catastro-tool/internal/logger"
	"github.com/mohammed-shakir/catastro-tool/internal/refcat"
)

var ErrNotFound = errors.New("geometry not found")

const DefaultTimeout = 30 * time.Second

type Kind string

const (
	Parcel   Kind = "parcela"
	Building Kind = "edificio"
)

// GeometryFile is a stored GML answer. Doc is nil when the payload passed
// the content checks but could not be parsed.
type GeometryFile struct {
	Kind    Kind
	Path    string
	KMLPath string
	SRS     string
	Doc     *gml.Document
}

type Fetcher struct {
	exec        executor.Client
	tr          *crs.Transformer
	parcelURL   string
	buildingURL string
	timeout     time.Duration
	log         *slog.Logger
}

func NewFetcher(exec executor.Client, tr *crs.Transformer, parcelURL, buildingURL string, log *slog.Logger) *Fetcher {
	if log == nil {
		log = logger.Discard()
	}
	return &Fetcher{
		exec:        exec,
		tr:          tr,
		parcelURL:   parcelURL,
		buildingURL: buildingURL,
		timeout:     DefaultTimeout,
		log:         log,
	}
}

func (f *Fetcher) FetchParcel(ctx context.Context, ref refcat.Reference, dir string) (GeometryFile, error) {
	return f.fetch(ctx, ref, dir, Parcel, f.parcelURL, ogc.StoredQueryParcel)
}

func (f *Fetcher) FetchBuilding(ctx context.Context, ref refcat.Reference, dir string) (GeometryFile, error) {
	return f.fetch(ctx, ref, dir, Building, f.buildingURL, ogc.StoredQueryBuilding)
}

func (f *Fetcher) fetch(ctx context.Context, ref refcat.Reference, dir string, kind Kind, endpoint, storedQuery string) (GeometryFile, error) {
	srs := ref.ProjectedCRS()
	upstream := "inspire_" + string(kind)

	resp, err := f.exec.Get(ctx, upstream, endpoint, ogc.StoredQueryParams(storedQuery, ref.String(), srs), f.timeout)
	if err != nil {
		return GeometryFile{}, fmt.Errorf("%w: %s: %w", ErrNotFound, kind, err)
	}
	if err := ogc.CheckFeatureResponse(resp.Body); err != nil {
		return GeometryFile{}, fmt.Errorf("%w: %s: %w", ErrNotFound, kind, err)
	}

	gmlDir := filepath.Join(dir, "gml")
	if err := os.MkdirAll(gmlDir, 0o755); err != nil {
		return GeometryFile{}, fmt.Errorf("create gml dir: %w", err)
	}
	out := GeometryFile{
		Kind: kind,
		Path: filepath.Join(gmlDir, fmt.Sprintf("%s_%s.gml", ref, kind)),
		SRS:  srs,
	}
	if err := os.WriteFile(out.Path, resp.Body, 0o644); err != nil {
		return GeometryFile{}, fmt.Errorf("write %s: %w", out.Path, err)
	}

	doc, err := gml.ParseBytes(resp.Body)
	if err != nil {
		f.log.WarnContext(ctx, "stored geometry could not be parsed", "kind", kind, "err", err)
		return out, nil
	}
	out.Doc = doc
	if doc.SRS != "" {
		out.SRS = doc.SRS
	}

	kmlPath, err := f.writeKML(ref, dir, kind, out.SRS, doc)
	if err != nil {
		f.log.WarnContext(ctx, "kml conversion failed", "kind", kind, "err", err)
	} else {
		out.KMLPath = kmlPath
	}
	return out, nil
}

func (f *Fetcher) writeKML(ref refcat.Reference, dir string, kind Kind, srs string, doc *gml.Document) (string, error) {
	if len(doc.Features) == 0 {
		return "", gml.ErrNoGeometry
	}
	feats := make([]gml.Feature, 0, len(doc.Features))
	for _, ft := range doc.Features {
		g, err := f.tr.Geometry(srs, crs.WGS84, ft.Geometry)
		if err != nil {
			return "", err
		}
		feats = append(feats, gml.Feature{ID: ft.ID, Properties: ft.Properties, Geometry: g})
	}

	kmlDir := filepath.Join(dir, "kml")
	if err := os.MkdirAll(kmlDir, 0o755); err != nil {
		return "", err
	}
	p := filepath.Join(kmlDir, fmt.Sprintf("%s_%s.kml", ref, kind))
	fh, err := os.Create(p)
	if err != nil {
		return "", err
	}
	if err := gml.WriteKML(fh, fmt.Sprintf("%s %s", ref, kind), feats); err != nil {
		_ = fh.Close()
		return "", err
	}
	return p, fh.Close()
}
