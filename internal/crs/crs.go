// Package crs reprojects orb geometries between coordinate reference
// systems using PROJ.
package crs

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/project"
	"github.com/twpayne/go-proj/v10"
)

const WGS84 = "EPSG:4326"

var ErrTransform = errors.New("crs transform")

// Transformer caches one PROJ pipeline per (src, dst) pair. Axis order is
// normalized so x is always easting/longitude.
type Transformer struct {
	mu    sync.Mutex
	cache map[[2]string]*proj.PJ
}

func NewTransformer() *Transformer {
	return &Transformer{cache: make(map[[2]string]*proj.PJ)}
}

// Same reports whether two CRS identifiers name the same system.
func Same(a, b string) bool {
	return Canonical(a) == Canonical(b)
}

// Canonical reduces the usual spellings of an EPSG code
// (EPSG:25830, urn:ogc:def:crs:EPSG::25830, http://www.opengis.net/def/crs/EPSG/0/25830)
// to "EPSG:25830". WKT and other strings are returned trimmed.
func Canonical(s string) string {
	s = strings.TrimSpace(s)
	up := strings.ToUpper(s)
	if !strings.Contains(up, "EPSG") || strings.Contains(s, "[") {
		return s
	}
	i := strings.LastIndexAny(s, ":/#")
	if i < 0 || i == len(s)-1 {
		return s
	}
	return "EPSG:" + s[i+1:]
}

func (t *Transformer) pj(src, dst string) (*proj.PJ, error) {
	key := [2]string{Canonical(src), Canonical(dst)}
	if pj, ok := t.cache[key]; ok {
		return pj, nil
	}
	raw, err := proj.NewCRSToCRS(key[0], key[1], nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %s -> %s: %w", ErrTransform, key[0], key[1], err)
	}
	pj, err := raw.NormalizeForVisualization()
	raw.Destroy()
	if err != nil {
		return nil, fmt.Errorf("%w: normalize %s -> %s: %w", ErrTransform, key[0], key[1], err)
	}
	t.cache[key] = pj
	return pj, nil
}

// Point transforms a single x/y pair.
func (t *Transformer) Point(src, dst string, p orb.Point) (orb.Point, error) {
	if Same(src, dst) {
		return p, nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	pj, err := t.pj(src, dst)
	if err != nil {
		return orb.Point{}, err
	}
	c, err := pj.Forward(proj.NewCoord(p[0], p[1], 0, 0))
	if err != nil {
		return orb.Point{}, fmt.Errorf("%w: %w", ErrTransform, err)
	}
	return orb.Point{c.X(), c.Y()}, nil
}

// Geometry returns a reprojected copy of g. The input is left untouched.
func (t *Transformer) Geometry(src, dst string, g orb.Geometry) (orb.Geometry, error) {
	if g == nil || Same(src, dst) {
		return g, nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	pj, err := t.pj(src, dst)
	if err != nil {
		return nil, err
	}

	var firstErr error
	fn := func(p orb.Point) orb.Point {
		c, err := pj.Forward(proj.NewCoord(p[0], p[1], 0, 0))
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			return p
		}
		return orb.Point{c.X(), c.Y()}
	}
	out := project.Geometry(orb.Clone(g), fn)
	if firstErr != nil {
		return nil, fmt.Errorf("%w: %w", ErrTransform, firstErr)
	}
	return out, nil
}

// Close releases the cached PROJ objects.
func (t *Transformer) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for k, pj := range t.cache {
		pj.Destroy()
		delete(t.cache, k)
	}
}
