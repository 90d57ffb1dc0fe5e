package raster

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/mohammed-shakir/catastro-tool/internal/core/executor"
	"github.com/mohammed-shakir/catastro-tool/internal/core/model"
	"github.com/mohammed-shakir/catastro-tool/internal/core/ogc"
	"github.com/mohammed-shakir/catastro-tool/internal/logger"
)

var ErrNoImages = errors.New("no raster images fetched")

const (
	DefaultTimeout = 60 * time.Second
	DefaultSize    = 1600
)

type Fetcher struct {
	exec       executor.Client
	wmsURL     string
	size       int
	layers     []Layer
	compositor Compositor
	timeout    time.Duration
	log        *slog.Logger
}

// NewFetcher builds a fetcher. A nil compositor disables composite output.
func NewFetcher(exec executor.Client, wmsURL string, size int, compositor Compositor, log *slog.Logger) *Fetcher {
	if log == nil {
		log = logger.Discard()
	}
	if size <= 0 {
		size = DefaultSize
	}
	return &Fetcher{
		exec:       exec,
		wmsURL:     wmsURL,
		size:       size,
		layers:     DefaultLayers,
		compositor: compositor,
		timeout:    DefaultTimeout,
		log:        log,
	}
}

// FetchTiles requests every layer at every level into dir/images. Layers
// whose answer fails the image heuristic are skipped. All artifacts of one
// level share the same bbox and size.
func (f *Fetcher) FetchTiles(ctx context.Context, ref string, c model.Coordinates, levels []Level, dir string) ([]model.RasterArtifact, error) {
	imgDir := filepath.Join(dir, "images")
	if err := os.MkdirAll(imgDir, 0o755); err != nil {
		return nil, fmt.Errorf("create images dir: %w", err)
	}

	var out []model.RasterArtifact
	for _, lv := range levels {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		bbox := BBoxFor(c.Lon, c.Lat, lv)
		var stack [][]byte
		for _, l := range f.layers {
			body, err := f.getMap(ctx, l, bbox)
			if err != nil {
				f.log.WarnContext(ctx, "wms layer skipped", "layer", l.WMSName, "zoom", lv.N, "err", err)
				continue
			}
			a := f.artifact(ref, l.Label, lv, bbox, imgDir)
			if err := os.WriteFile(a.Path, body, 0o644); err != nil {
				return out, fmt.Errorf("write %s: %w", a.Path, err)
			}
			out = append(out, a)
			stack = append(stack, body)
		}
		f.log.InfoContext(ctx, "zoom level fetched", "zoom", lv.N, "name", lv.Name, "layers", len(stack))

		if f.compositor == nil || len(stack) == 0 {
			continue
		}
		label := fmt.Sprintf("%s - zoom %d %s", ref, lv.N, lv.Name)
		img, err := f.compositor.Compose(stack, label)
		if err != nil {
			f.log.WarnContext(ctx, "composite failed", "zoom", lv.N, "err", err)
			continue
		}
		a := f.artifact(ref, "Composicion", lv, bbox, imgDir)
		a.Composite = true
		if err := os.WriteFile(a.Path, img, 0o644); err != nil {
			return out, fmt.Errorf("write %s: %w", a.Path, err)
		}
		out = append(out, a)
	}
	if len(out) == 0 {
		return nil, ErrNoImages
	}
	return out, nil
}

func (f *Fetcher) getMap(ctx context.Context, l Layer, bbox model.BBox) ([]byte, error) {
	q := ogc.GetMapParams(l.WMSName, bbox, f.size, f.size, l.Transparent)
	resp, err := f.exec.Get(ctx, "wms", f.wmsURL, q, f.timeout)
	if err != nil {
		return nil, err
	}
	if err := ogc.CheckImageResponse(resp.Body); err != nil {
		return nil, err
	}
	return resp.Body, nil
}

func (f *Fetcher) artifact(ref, label string, lv Level, bbox model.BBox, imgDir string) model.RasterArtifact {
	return model.RasterArtifact{
		Reference: ref,
		Layer:     label,
		Zoom:      lv.N,
		ZoomName:  lv.Name,
		BBox:      bbox,
		Width:     f.size,
		Height:    f.size,
		Path:      filepath.Join(imgDir, fmt.Sprintf("%s_%s_zoom%d_%s.png", ref, label, lv.N, lv.Name)),
	}
}
