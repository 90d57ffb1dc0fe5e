package overlay

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/mohammed-shakir/catastro-tool/internal/cache/layercache"
	"github.com/mohammed-shakir/catastro-tool/internal/core/executor"
	"github.com/mohammed-shakir/catastro-tool/internal/core/model"
	"github.com/mohammed-shakir/catastro-tool/internal/core/ogc"
	"github.com/mohammed-shakir/catastro-tool/internal/gml"
	"github.com/mohammed-shakir/catastro-tool/internal/logger"
)

const RemoteTimeout = 60 * time.Second

// QueryArea scopes a layer request to the parcel. BBox is in EPSG:4326 and
// Cell is the H3 cell of the parcel centroid ("" disables caching).
type QueryArea struct {
	BBox model.BBox
	Cell string
}

// Source loads one layer for a parcel.
type Source interface {
	Load(ctx context.Context, spec LayerSpec, area QueryArea) (*Layer, error)
}

// RemoteSource queries a WFS for the features inside the parcel bbox only.
type RemoteSource struct {
	exec    executor.Client
	cache   *layercache.Store
	timeout time.Duration
	log     *slog.Logger
}

func NewRemoteSource(exec executor.Client, cache *layercache.Store, log *slog.Logger) *RemoteSource {
	if log == nil {
		log = logger.Discard()
	}
	return &RemoteSource{exec: exec, cache: cache, timeout: RemoteTimeout, log: log}
}

func (s *RemoteSource) Load(ctx context.Context, spec LayerSpec, area QueryArea) (*Layer, error) {
	body, cached := s.cache.Get(ctx, spec.Name, area.Cell, area.BBox)
	if !cached {
		resp, err := s.exec.Get(ctx, "wfs_"+spec.Name, spec.URL, ogc.BBoxGetFeatureParams(spec.TypeName, area.BBox), s.timeout)
		if err != nil {
			return nil, fmt.Errorf("query layer %s: %w", spec.Name, err)
		}
		if err := ogc.CheckLayerResponse(resp.Body); err != nil {
			return nil, fmt.Errorf("layer %s: %w", spec.Name, err)
		}
		body = resp.Body
	}

	doc, err := gml.ParseBytes(body)
	if err != nil {
		return nil, fmt.Errorf("decode layer %s: %w", spec.Name, err)
	}
	if !cached {
		s.cache.Put(ctx, spec.Name, area.Cell, area.BBox, body)
	}

	l := fromGML(doc)
	l.Spec = spec
	if l.CRS == "" {
		l.CRS = area.BBox.SRID
	}
	if spec.CRS != "" {
		l.CRS = spec.CRS
	}
	s.log.DebugContext(ctx, "remote layer loaded", "layer", spec.Name, "features", len(l.Features), "cached", cached)
	return l, nil
}
