// Package mapper converts between geometric coordinates and H3 cells.
package mapper

import (
	"github.com/paulmach/orb"
)

type Interface interface {
	CellForPoint(lon, lat float64, res int) (string, error)
	CellsForPolygon(g orb.Geometry, res int) ([]string, error)
}
