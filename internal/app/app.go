// Package app assembles the pipeline and its collaborators from config.
package app

import (
	"context"
	"log/slog"

	"github.com/mohammed-shakir/catastro-tool/internal/cache/layercache"
	"github.com/mohammed-shakir/catastro-tool/internal/cache/redisstore"
	"github.com/mohammed-shakir/catastro-tool/internal/coords"
	"github.com/mohammed-shakir/catastro-tool/internal/core/config"
	"github.com/mohammed-shakir/catastro-tool/internal/core/executor"
	"github.com/mohammed-shakir/catastro-tool/internal/core/health"
	"github.com/mohammed-shakir/catastro-tool/internal/core/httpclient"
	"github.com/mohammed-shakir/catastro-tool/internal/crs"
	"github.com/mohammed-shakir/catastro-tool/internal/documents"
	"github.com/mohammed-shakir/catastro-tool/internal/export"
	h3mapper "github.com/mohammed-shakir/catastro-tool/internal/mapper/h3"
	"github.com/mohammed-shakir/catastro-tool/internal/ortho"
	"github.com/mohammed-shakir/catastro-tool/internal/overlay"
	"github.com/mohammed-shakir/catastro-tool/internal/parcelgeom"
	"github.com/mohammed-shakir/catastro-tool/internal/pipeline"
	"github.com/mohammed-shakir/catastro-tool/internal/raster"
)

type App struct {
	Pipeline   *pipeline.Orchestrator
	Ortophotos *ortho.Generator
	Layout     export.Layout
	// Local and LayerCache are nil when the matching feature is off.
	Local      *overlay.LocalSource
	LayerCache *layercache.Store

	redis *redisstore.Client
	tr    *crs.Transformer
	log   *slog.Logger
}

// Build wires every component. Redis is optional: when it cannot be reached
// the service runs without a layer cache.
func Build(ctx context.Context, cfg config.Config, log *slog.Logger) (*App, error) {
	a := &App{Layout: export.NewLayout(cfg.OutputDir), log: log}

	exec := executor.New(log, httpclient.NewOutbound(), executor.Options{
		Retries:        cfg.Upstream.Retries,
		RetryBackoff:   cfg.Upstream.RetryBackoff,
		RequestsPerSec: cfg.Upstream.RequestsPerSec,
	})
	a.tr = crs.NewTransformer()

	var compositor raster.Compositor
	if cfg.CompositeEnabled {
		compositor = raster.NewImageCompositor()
	}

	resolver := coords.NewResolver(exec, a.tr, cfg.Upstream.CatastroBase, log)
	deps := pipeline.Deps{
		Layout: a.Layout,
		Documents: documents.NewDownloader(exec, documents.Endpoints{
			CatastroBase: cfg.Upstream.CatastroBase,
			FichePDF:     cfg.Upstream.FichePDF,
			SigpacPrint:  cfg.Upstream.SigpacPrint,
			SigpacWMS:    cfg.Upstream.SigpacWMS,
		}, log),
		Geometry:  parcelgeom.NewFetcher(exec, a.tr, cfg.Upstream.InspireParcel, cfg.Upstream.InspireBuild, log),
		Coords:    resolver,
		Raster:    raster.NewFetcher(exec, cfg.Upstream.WMS, cfg.WMSSize, compositor, log),
		Projector: a.tr,
	}

	if cfg.OverlayEnabled {
		if cfg.RedisAddr != "" {
			rc, err := redisstore.New(ctx, cfg.RedisAddr)
			if err != nil {
				log.WarnContext(ctx, "redis unavailable, layer cache disabled", "addr", cfg.RedisAddr, "err", err)
			} else {
				a.redis = rc
				a.LayerCache = layercache.New(rc, cfg.H3Res, cfg.LayerCacheTTL, cfg.CacheOpTimeout, log)
			}
		}

		local, err := overlay.NewLocalSource(cfg.LayersDir, cfg.LocalLayerCacheSize, log)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.Local = local

		analyzer := overlay.NewAnalyzer(overlay.NewGEOSEngine(), a.tr, overlay.Options{
			Local:      local,
			Remote:     overlay.NewRemoteSource(exec, a.LayerCache, log),
			Mapper:     h3mapper.New(),
			H3Res:      cfg.H3Res,
			LayerDelay: cfg.LayerDelay,
			MapWidth:   cfg.OverlayMapWidth,
		}, log)
		deps.Overlay = analyzer
		catalogFile := cfg.LayerCatalogFile
		deps.Catalog = func() ([]overlay.LayerSpec, error) {
			return overlay.BuildCatalog(catalogFile, local)
		}
	}

	var layers ortho.LayerSource
	if a.Local != nil {
		layers = a.Local
	}
	a.Ortophotos = ortho.New(layers, a.tr, resolver, a.Layout, cfg.OrthoWidth, log)

	a.Pipeline = pipeline.New(deps, pipeline.Options{BatchDelay: cfg.BatchDelay}, log)
	return a, nil
}

// InvalidateLayer drops cached payloads of layer; without a cache it is a
// no-op.
func (a *App) InvalidateLayer(ctx context.Context, layer string) (int, error) {
	return a.LayerCache.InvalidateLayer(ctx, layer)
}

func (a *App) ReadinessChecks() []health.Check {
	if a.redis == nil {
		return nil
	}
	return []health.Check{{Name: "redis", Fn: a.redis.Ping}}
}

func (a *App) Close() {
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.log.Warn("redis close failed", "err", err)
		}
	}
	if a.tr != nil {
		a.tr.Close()
	}
}
