// Package layercache stores raw environmental WFS payloads keyed by layer,
// parcel H3 cell and query bbox.
package layercache

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/mohammed-shakir/catastro-tool/internal/cache"
	"github.com/mohammed-shakir/catastro-tool/internal/cache/keys"
	"github.com/mohammed-shakir/catastro-tool/internal/core/model"
	"github.com/mohammed-shakir/catastro-tool/internal/core/observability"
	"github.com/mohammed-shakir/catastro-tool/internal/logger"
)

var ErrUnsupported = errors.New("backend cannot delete by pattern")

// Store is best-effort: backend errors are logged and read as misses. A nil
// *Store never hits.
type Store struct {
	backend   cache.Interface
	res       int
	ttl       time.Duration
	opTimeout time.Duration
	log       *slog.Logger
}

func New(backend cache.Interface, res int, ttl, opTimeout time.Duration, log *slog.Logger) *Store {
	if log == nil {
		log = logger.Discard()
	}
	if opTimeout <= 0 {
		opTimeout = 250 * time.Millisecond
	}
	return &Store{backend: backend, res: res, ttl: ttl, opTimeout: opTimeout, log: log}
}

func (s *Store) Res() int {
	if s == nil {
		return 0
	}
	return s.res
}

func (s *Store) Get(ctx context.Context, layer, cell string, bbox model.BBox) ([]byte, bool) {
	if s == nil || s.backend == nil || cell == "" {
		return nil, false
	}
	k := keys.Key(layer, s.res, cell, bbox)
	cctx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()

	b, ok, err := s.backend.Get(cctx, k)
	if err != nil {
		s.log.WarnContext(ctx, "layer cache get failed", "layer", layer, "key", k, "err", err)
		ok = false
	}
	observability.ObserveLayerCache(ok)
	return b, ok
}

func (s *Store) Put(ctx context.Context, layer, cell string, bbox model.BBox, payload []byte) {
	if s == nil || s.backend == nil || cell == "" || len(payload) == 0 {
		return
	}
	k := keys.Key(layer, s.res, cell, bbox)
	cctx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()

	if err := s.backend.Set(cctx, k, payload, s.ttl); err != nil {
		s.log.WarnContext(ctx, "layer cache put failed", "layer", layer, "key", k, "err", err)
	}
}

// Invalidate drops the cached payload of one layer/cell/bbox.
func (s *Store) Invalidate(ctx context.Context, layer, cell string, bbox model.BBox) error {
	if s == nil || s.backend == nil {
		return nil
	}
	return s.backend.Del(ctx, keys.Key(layer, s.res, cell, bbox))
}

// InvalidateLayer drops every cached payload of layer. Backends without
// pattern deletion report ErrUnsupported.
func (s *Store) InvalidateLayer(ctx context.Context, layer string) (int, error) {
	if s == nil || s.backend == nil {
		return 0, nil
	}
	pd, ok := s.backend.(cache.PatternDeleter)
	if !ok {
		return 0, ErrUnsupported
	}
	n, err := pd.DelPattern(ctx, keys.LayerPattern(layer))
	if err != nil {
		return n, err
	}
	s.log.InfoContext(ctx, "layer cache invalidated", "layer", layer, "keys", n)
	return n, nil
}
