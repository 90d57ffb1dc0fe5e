package h3mapper

import (
	"sort"
	"testing"

	"github.com/paulmach/orb"
	h3 "github.com/uber/h3-go/v4"
)

func TestCellForPoint(t *testing.T) {
	m := New()
	a, err := m.CellForPoint(-3.7038, 40.4168, 9)
	if err != nil {
		t.Fatalf("CellForPoint: %v", err)
	}
	b, _ := m.CellForPoint(-3.7038, 40.4168, 9)
	if a != b || a == "" {
		t.Fatalf("cell must be deterministic: %q vs %q", a, b)
	}
	var c h3.Cell
	if err := c.UnmarshalText([]byte(a)); err != nil || c.Resolution() != 9 {
		t.Fatalf("bad cell %q: %v", a, err)
	}
	if _, err := m.CellForPoint(0, 0, 16); err == nil {
		t.Fatalf("expected invalid resolution error")
	}
}

func TestCellsForPolygon_SortedUniqueAndMulti(t *testing.T) {
	m := New()
	sq := orb.Polygon{{{-3.72, 40.40}, {-3.68, 40.40}, {-3.68, 40.43}, {-3.72, 40.43}, {-3.72, 40.40}}}

	cells, err := m.CellsForPolygon(sq, 8)
	if err != nil {
		t.Fatalf("CellsForPolygon: %v", err)
	}
	if len(cells) == 0 || !sort.StringsAreSorted(cells) {
		t.Fatalf("cells must be non-empty and sorted: %v", cells)
	}

	multi, err := m.CellsForPolygon(orb.MultiPolygon{sq, sq}, 8)
	if err != nil {
		t.Fatalf("multi: %v", err)
	}
	if len(multi) != len(cells) {
		t.Fatalf("duplicate polygons must dedupe: %d vs %d", len(multi), len(cells))
	}

	if _, err := m.CellsForPolygon(orb.Point{1, 2}, 8); err == nil {
		t.Fatalf("expected unsupported type error")
	}
}
