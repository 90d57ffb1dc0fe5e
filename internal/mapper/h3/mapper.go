package h3mapper

import (
	"errors"
	"fmt"
	"sort"

	"github.com/paulmach/orb"
	h3 "github.com/uber/h3-go/v4"
)

type Mapper struct{}

func New() *Mapper { return &Mapper{} }

// CellForPoint returns the cell containing a WGS84 lon/lat.
func (m *Mapper) CellForPoint(lon, lat float64, res int) (string, error) {
	if err := validateRes(res); err != nil {
		return "", err
	}
	c, err := h3.LatLngToCell(h3.LatLng{Lat: lat, Lng: lon}, res)
	if err != nil {
		return "", fmt.Errorf("h3 cell: %w", err)
	}
	return c.String(), nil
}

// CellsForPolygon polyfills a WGS84 Polygon or MultiPolygon. Cells are
// unique and sorted.
func (m *Mapper) CellsForPolygon(g orb.Geometry, res int) ([]string, error) {
	if err := validateRes(res); err != nil {
		return nil, err
	}

	var polys []orb.Polygon
	switch g := g.(type) {
	case orb.Polygon:
		polys = []orb.Polygon{g}
	case orb.MultiPolygon:
		polys = g
	default:
		return nil, fmt.Errorf("unsupported geometry type: %T", g)
	}
	if len(polys) == 0 {
		return nil, errors.New("empty multipolygon")
	}

	seen := make(map[string]struct{})
	var out []string
	for pi, p := range polys {
		if len(p) == 0 {
			return nil, fmt.Errorf("polygon %d is empty", pi)
		}
		outer := toLoop(p[0])
		var holes []h3.GeoLoop
		for i := 1; i < len(p); i++ {
			h := toLoop(p[i])
			if len(h) < 3 {
				return nil, fmt.Errorf("polygon %d hole %d has < 3 distinct vertices", pi, i-1)
			}
			holes = append(holes, h)
		}
		cells, err := polyfillOne(outer, holes, res)
		if err != nil {
			return nil, err
		}
		for _, c := range cells {
			if _, ok := seen[c]; !ok {
				seen[c] = struct{}{}
				out = append(out, c)
			}
		}
	}
	sort.Strings(out)
	return out, nil
}

func validateRes(res int) error {
	if res < 0 || res > 15 {
		return fmt.Errorf("invalid H3 resolution %d (must be 0..15)", res)
	}
	return nil
}

// toLoop converts a lon/lat ring to a GeoLoop, dropping the closing vertex.
func toLoop(r orb.Ring) h3.GeoLoop {
	loop := make(h3.GeoLoop, 0, len(r))
	for _, p := range r {
		loop = append(loop, h3.LatLng{Lat: p[1], Lng: p[0]})
	}
	if len(loop) >= 2 {
		last := loop[len(loop)-1]
		first := loop[0]
		if last.Lat == first.Lat && last.Lng == first.Lng {
			loop = loop[:len(loop)-1]
		}
	}
	return loop
}

func polyfillOne(outer h3.GeoLoop, holes []h3.GeoLoop, res int) ([]string, error) {
	if len(outer) < 3 {
		return nil, errors.New("outer ring has < 3 distinct vertices")
	}
	poly := h3.GeoPolygon{
		GeoLoop: outer,
		Holes:   holes,
	}

	indexes, err := h3.PolygonToCells(poly, res)
	if err != nil {
		return nil, fmt.Errorf("h3 polyfill: %w", err)
	}

	out := make([]string, 0, len(indexes))
	seen := make(map[string]struct{}, len(indexes))
	for _, idx := range indexes {
		s := idx.String()
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	sort.Strings(out)
	return out, nil
}
