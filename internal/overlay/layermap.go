package overlay

import (
	"fmt"
	"image/color"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/paulmach/orb"

	"github.com/mohammed-shakir/catastro-tool/internal/mapimg"
)

// MapMargin is the metric padding around the parcel in layer maps.
const MapMargin = 200.0

const defaultLayerColor = "#0000FF"

var parcelOutline = color.RGBA{0xFF, 0, 0, 0xFF}

// writeLayerMap draws the layer features near the parcel with the parcel
// outline on top and returns the URL of the written PNG.
func (a *Analyzer) writeLayerMap(p Parcel, spec LayerSpec, parcel orb.Geometry, features []orb.Geometry) (string, error) {
	c, err := mapimg.New(parcel.Bound().Pad(MapMargin), a.opts.MapWidth, color.White)
	if err != nil {
		return "", err
	}
	hex := spec.Color
	if hex == "" {
		hex = defaultLayerColor
	}
	fill, err := mapimg.ParseHex(hex, 77)
	if err != nil {
		fill, _ = mapimg.ParseHex(defaultLayerColor, 77)
	}
	edge := fill
	edge.A = 0xFF
	for _, g := range features {
		c.Fill(g, fill)
		c.Stroke(g, edge, 1)
	}
	c.Stroke(parcel, parcelOutline, 3)

	title := spec.Description
	if title == "" {
		title = spec.Name
	}
	ref := p.Ref.String()
	c.Caption(strings.ToUpper(title), "Ref: "+ref)

	b, err := c.PNG()
	if err != nil {
		return "", err
	}
	name := fmt.Sprintf("%s_%s.png", ref, safeName(spec.Name))
	if err := os.MkdirAll(p.MapDir, 0o755); err != nil {
		return "", err
	}
	if err := os.WriteFile(filepath.Join(p.MapDir, name), b, 0o644); err != nil {
		return "", err
	}
	if p.MapURL == "" {
		return name, nil
	}
	return path.Join(p.MapURL, name), nil
}

func safeName(s string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', ' ':
			return '_'
		}
		return r
	}, s)
}
