// Package mapimg renders vector geometries onto a PNG with a fixed
// world-to-pixel mapping.
package mapimg

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"math"
	"strconv"
	"strings"

	"github.com/paulmach/orb"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
	"golang.org/x/image/vector"
)

var (
	ErrEmptyView = errors.New("view has no extent")
	ErrBadColor  = errors.New("invalid hex color")
)

const maxSide = 4096

// Canvas maps View onto an image whose width is fixed and whose height
// follows the view's aspect ratio.
type Canvas struct {
	img  *image.RGBA
	view orb.Bound
}

func New(view orb.Bound, width int, bg color.Color) (*Canvas, error) {
	dx, dy := view.Max[0]-view.Min[0], view.Max[1]-view.Min[1]
	if !(dx > 0) || !(dy > 0) || width <= 0 {
		return nil, fmt.Errorf("%w: %v", ErrEmptyView, view)
	}
	height := int(math.Round(float64(width) * dy / dx))
	height = min(max(height, 1), maxSide)
	width = min(width, maxSide)
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(img, img.Bounds(), image.NewUniform(bg), image.Point{}, draw.Src)
	return &Canvas{img: img, view: view}, nil
}

func (c *Canvas) Image() *image.RGBA { return c.img }

// Pixel converts a world point to image coordinates.
func (c *Canvas) Pixel(p orb.Point) (float32, float32) {
	w, h := float64(c.img.Bounds().Dx()), float64(c.img.Bounds().Dy())
	x := (p[0] - c.view.Min[0]) / (c.view.Max[0] - c.view.Min[0]) * w
	y := (c.view.Max[1] - p[1]) / (c.view.Max[1] - c.view.Min[1]) * h
	return float32(x), float32(y)
}

func (c *Canvas) rasterizer() *vector.Rasterizer {
	b := c.img.Bounds()
	return vector.NewRasterizer(b.Dx(), b.Dy())
}

func (c *Canvas) paint(z *vector.Rasterizer, col color.Color) {
	z.Draw(c.img, c.img.Bounds(), image.NewUniform(col), image.Point{})
}

// Fill paints the area of polygonal geometries. Lines and points are
// ignored; holes must wind opposite to their outer ring.
func (c *Canvas) Fill(g orb.Geometry, col color.Color) {
	z := c.rasterizer()
	if c.addArea(z, g) {
		c.paint(z, col)
	}
}

func (c *Canvas) addArea(z *vector.Rasterizer, g orb.Geometry) bool {
	switch g := g.(type) {
	case orb.Polygon:
		ok := false
		for _, r := range g {
			ok = c.addRing(z, r) || ok
		}
		return ok
	case orb.MultiPolygon:
		ok := false
		for _, p := range g {
			ok = c.addArea(z, p) || ok
		}
		return ok
	case orb.Ring:
		return c.addRing(z, g)
	case orb.Bound:
		return c.addRing(z, g.ToRing())
	case orb.Collection:
		ok := false
		for _, x := range g {
			ok = c.addArea(z, x) || ok
		}
		return ok
	}
	return false
}

func (c *Canvas) addRing(z *vector.Rasterizer, r orb.Ring) bool {
	if len(r) < 3 {
		return false
	}
	x, y := c.Pixel(r[0])
	z.MoveTo(x, y)
	for _, p := range r[1:] {
		x, y = c.Pixel(p)
		z.LineTo(x, y)
	}
	z.ClosePath()
	return true
}

// Stroke draws the outline of any geometry with a line width in pixels.
func (c *Canvas) Stroke(g orb.Geometry, col color.Color, width float32) {
	z := c.rasterizer()
	if c.addStroke(z, g, width/2) {
		c.paint(z, col)
	}
}

func (c *Canvas) addStroke(z *vector.Rasterizer, g orb.Geometry, hw float32) bool {
	switch g := g.(type) {
	case orb.Point:
		x, y := c.Pixel(g)
		square(z, x, y, max(hw, 1.5))
		return true
	case orb.MultiPoint:
		for _, p := range g {
			c.addStroke(z, p, hw)
		}
		return len(g) > 0
	case orb.LineString:
		return c.addPath(z, g, hw)
	case orb.MultiLineString:
		ok := false
		for _, l := range g {
			ok = c.addPath(z, l, hw) || ok
		}
		return ok
	case orb.Ring:
		return c.addPath(z, orb.LineString(g), hw)
	case orb.Polygon:
		ok := false
		for _, r := range g {
			ok = c.addPath(z, orb.LineString(r), hw) || ok
		}
		return ok
	case orb.MultiPolygon:
		ok := false
		for _, p := range g {
			ok = c.addStroke(z, p, hw) || ok
		}
		return ok
	case orb.Bound:
		return c.addPath(z, orb.LineString(g.ToRing()), hw)
	case orb.Collection:
		ok := false
		for _, x := range g {
			ok = c.addStroke(z, x, hw) || ok
		}
		return ok
	}
	return false
}

// addPath adds one quad per segment plus a square at every vertex so joins
// have no gaps. All shapes wind the same way and so never cancel out.
func (c *Canvas) addPath(z *vector.Rasterizer, l orb.LineString, hw float32) bool {
	if len(l) < 2 {
		return false
	}
	px, py := c.Pixel(l[0])
	square(z, px, py, hw)
	for _, p := range l[1:] {
		x, y := c.Pixel(p)
		dx, dy := x-px, y-py
		n := float32(math.Hypot(float64(dx), float64(dy)))
		if n > 0 {
			nx, ny := -dy/n*hw, dx/n*hw
			quad(z, px+nx, py+ny, x+nx, y+ny, x-nx, y-ny, px-nx, py-ny)
			square(z, x, y, hw)
		}
		px, py = x, y
	}
	return true
}

// quad adds a quadrilateral with positive winding whatever the order of
// its corners.
func quad(z *vector.Rasterizer, x0, y0, x1, y1, x2, y2, x3, y3 float32) {
	area := (x1-x0)*(y2-y0) - (x2-x0)*(y1-y0)
	if area < 0 {
		x1, y1, x3, y3 = x3, y3, x1, y1
	}
	z.MoveTo(x0, y0)
	z.LineTo(x1, y1)
	z.LineTo(x2, y2)
	z.LineTo(x3, y3)
	z.ClosePath()
}

func square(z *vector.Rasterizer, x, y, hw float32) {
	quad(z, x-hw, y-hw, x+hw, y-hw, x+hw, y+hw, x-hw, y+hw)
}

// Star draws a five-pointed star centred on p, radius in pixels.
func (c *Canvas) Star(p orb.Point, radius float32, col color.Color) {
	cx, cy := c.Pixel(p)
	z := c.rasterizer()
	for i := 0; i < 10; i++ {
		r := radius
		if i%2 == 1 {
			r = radius * 0.4
		}
		a := -math.Pi/2 + float64(i)*math.Pi/5
		x := cx + r*float32(math.Cos(a))
		y := cy + r*float32(math.Sin(a))
		if i == 0 {
			z.MoveTo(x, y)
			continue
		}
		z.LineTo(x, y)
	}
	z.ClosePath()
	c.paint(z, col)
}

var face = basicfont.Face7x13

// Caption burns lines of text on a dark strip in the top-left corner.
func (c *Canvas) Caption(lines ...string) {
	if len(lines) == 0 {
		return
	}
	const pad = 6
	lh := face.Metrics().Height.Ceil()
	w := 0
	for _, l := range lines {
		w = max(w, font.MeasureString(face, l).Ceil())
	}
	strip := image.Rect(0, 0, w+2*pad, lh*len(lines)+2*pad).Intersect(c.img.Bounds())
	draw.Draw(c.img, strip, image.NewUniform(color.RGBA{0, 0, 0, 0xB0}), image.Point{}, draw.Over)
	for i, l := range lines {
		c.text(l, pad, pad+face.Metrics().Ascent.Ceil()+i*lh, color.White)
	}
}

// Centered writes lines in the middle of the image on a white box.
func (c *Canvas) Centered(col color.Color, lines ...string) {
	if len(lines) == 0 {
		return
	}
	const pad = 8
	lh := face.Metrics().Height.Ceil()
	w := 0
	for _, l := range lines {
		w = max(w, font.MeasureString(face, l).Ceil())
	}
	b := c.img.Bounds()
	h := lh * len(lines)
	top := (b.Dy() - h) / 2
	box := image.Rect((b.Dx()-w)/2-pad, top-pad, (b.Dx()+w)/2+pad, top+h+pad).Intersect(b)
	draw.Draw(c.img, box, image.NewUniform(color.RGBA{0xFF, 0xFF, 0xFF, 0xCC}), image.Point{}, draw.Over)
	for i, l := range lines {
		lw := font.MeasureString(face, l).Ceil()
		c.text(l, (b.Dx()-lw)/2, top+face.Metrics().Ascent.Ceil()+i*lh, col)
	}
}

func (c *Canvas) text(s string, x, y int, col color.Color) {
	d := &font.Drawer{
		Dst:  c.img,
		Src:  image.NewUniform(col),
		Face: face,
		Dot:  fixed.P(x, y),
	}
	d.DrawString(s)
}

func (c *Canvas) PNG() ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, c.img); err != nil {
		return nil, fmt.Errorf("encode map: %w", err)
	}
	return buf.Bytes(), nil
}

// ParseHex reads "#RRGGBB" or "RRGGBB" and applies alpha.
func ParseHex(s string, alpha uint8) (color.NRGBA, error) {
	h := strings.TrimPrefix(strings.TrimSpace(s), "#")
	if len(h) != 6 {
		return color.NRGBA{}, fmt.Errorf("%w: %q", ErrBadColor, s)
	}
	v, err := strconv.ParseUint(h, 16, 32)
	if err != nil {
		return color.NRGBA{}, fmt.Errorf("%w: %q", ErrBadColor, s)
	}
	return color.NRGBA{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v), A: alpha}, nil
}
