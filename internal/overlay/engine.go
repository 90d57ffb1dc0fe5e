package overlay

import (
	"errors"
	"fmt"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/wkb"
	"github.com/twpayne/go-geos"
)

var ErrGeometry = errors.New("geometry engine")

// IntersectResult is the overlap of a parcel with a set of features. Hits
// holds the indexes of features whose intersection has positive area.
type IntersectResult struct {
	AreaM2 float64
	Hits   []int
}

// GeometryEngine computes areas and intersections in the planar units of
// the geometries it is given.
type GeometryEngine interface {
	Area(g orb.Geometry) (float64, error)
	Intersect(parcel orb.Geometry, features []orb.Geometry) (IntersectResult, error)
}

// GEOSEngine implements GeometryEngine with libgeos. Invalid inputs are
// repaired with MakeValid before use.
type GEOSEngine struct{}

func NewGEOSEngine() *GEOSEngine { return &GEOSEngine{} }

func (e *GEOSEngine) Area(g orb.Geometry) (area float64, err error) {
	defer recoverGEOS(&err)
	gg, err := toGEOS(g)
	if err != nil {
		return 0, err
	}
	defer gg.Destroy()
	return gg.Area(), nil
}

// Intersect unions the per-feature intersections so overlapping features
// are only counted once in AreaM2.
func (e *GEOSEngine) Intersect(parcel orb.Geometry, features []orb.Geometry) (res IntersectResult, err error) {
	defer recoverGEOS(&err)
	p, err := toGEOS(parcel)
	if err != nil {
		return IntersectResult{}, err
	}
	defer p.Destroy()

	var acc *geos.Geom
	defer func() {
		if acc != nil {
			acc.Destroy()
		}
	}()

	for i, f := range features {
		if f == nil {
			continue
		}
		fg, err := toGEOS(f)
		if err != nil {
			return IntersectResult{}, fmt.Errorf("feature %d: %w", i, err)
		}
		if !p.Intersects(fg) {
			fg.Destroy()
			continue
		}
		inter := p.Intersection(fg)
		fg.Destroy()
		if inter == nil {
			continue
		}
		if inter.IsEmpty() || inter.Area() <= 0 {
			inter.Destroy()
			continue
		}
		res.Hits = append(res.Hits, i)
		if acc == nil {
			acc = inter
			continue
		}
		u := acc.Union(inter)
		acc.Destroy()
		inter.Destroy()
		acc = u
	}
	if acc != nil {
		res.AreaM2 = acc.Area()
	}
	return res, nil
}

func toGEOS(g orb.Geometry) (*geos.Geom, error) {
	b, err := wkb.Marshal(g)
	if err != nil {
		return nil, fmt.Errorf("%w: encode: %w", ErrGeometry, err)
	}
	gg, err := geos.NewGeomFromWKB(b)
	if err != nil {
		return nil, fmt.Errorf("%w: decode: %w", ErrGeometry, err)
	}
	if !gg.IsValid() {
		fixed := gg.MakeValid()
		gg.Destroy()
		gg = fixed
	}
	return gg, nil
}

// libgeos reports some topology failures by panicking through the binding.
func recoverGEOS(err *error) {
	if r := recover(); r != nil {
		*err = fmt.Errorf("%w: %v", ErrGeometry, r)
	}
}
