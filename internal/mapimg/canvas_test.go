package mapimg

import (
	"bytes"
	"errors"
	"image/color"
	"image/png"
	"testing"

	"github.com/paulmach/orb"
)

var (
	white = color.RGBA{0xFF, 0xFF, 0xFF, 0xFF}
	red   = color.RGBA{0xFF, 0, 0, 0xFF}
	blue  = color.RGBA{0, 0, 0xFF, 0xFF}
)

func newCanvas(t *testing.T) *Canvas {
	t.Helper()
	c, err := New(orb.Bound{Min: orb.Point{0, 0}, Max: orb.Point{100, 50}}, 200, white)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c
}

func at(c *Canvas, p orb.Point) color.RGBA {
	x, y := c.Pixel(p)
	return c.Image().RGBAAt(int(x), int(y))
}

func TestNew_AspectAndEmptyView(t *testing.T) {
	c := newCanvas(t)
	if b := c.Image().Bounds(); b.Dx() != 200 || b.Dy() != 100 {
		t.Fatalf("size %v", b)
	}
	if _, err := New(orb.Bound{Min: orb.Point{1, 1}, Max: orb.Point{1, 5}}, 100, white); !errors.Is(err, ErrEmptyView) {
		t.Fatalf("want ErrEmptyView, got %v", err)
	}
	x, y := c.Pixel(orb.Point{0, 50})
	if x != 0 || y != 0 {
		t.Fatalf("top-left maps to %v,%v", x, y)
	}
}

func TestFill_PolygonWithHole(t *testing.T) {
	c := newCanvas(t)
	outer := orb.Ring{{10, 10}, {40, 10}, {40, 40}, {10, 40}, {10, 10}}
	hole := orb.Ring{{20, 20}, {20, 30}, {30, 30}, {30, 20}, {20, 20}}
	c.Fill(orb.Polygon{outer, hole}, blue)

	if got := at(c, orb.Point{15, 15}); got != blue {
		t.Fatalf("inside polygon got %v", got)
	}
	if got := at(c, orb.Point{25, 25}); got != white {
		t.Fatalf("hole must stay empty, got %v", got)
	}
	if got := at(c, orb.Point{70, 25}); got != white {
		t.Fatalf("outside got %v", got)
	}

	// lines have no area
	c.Fill(orb.LineString{{60, 10}, {90, 40}}, red)
	if got := at(c, orb.Point{75, 25}); got != white {
		t.Fatalf("line filled: %v", got)
	}
}

func TestStrokeAndStar(t *testing.T) {
	c := newCanvas(t)
	c.Stroke(orb.LineString{{50, 5}, {50, 45}}, red, 4)
	if got := at(c, orb.Point{50, 25}); got != red {
		t.Fatalf("on line got %v", got)
	}
	if got := at(c, orb.Point{60, 25}); got != white {
		t.Fatalf("off line got %v", got)
	}

	c.Star(orb.Point{80, 25}, 10, blue)
	if got := at(c, orb.Point{80, 25}); got != blue {
		t.Fatalf("star centre got %v", got)
	}
}

func TestCaptionAndPNG(t *testing.T) {
	c := newCanvas(t)
	c.Caption("ZONAS INUNDABLES", "Ref: 9872023VH5797S0001WI")
	c.Centered(color.Black, "sin capas")
	if got := c.Image().RGBAAt(1, 1); got == white {
		t.Fatalf("caption strip not drawn")
	}
	b, err := c.PNG()
	if err != nil {
		t.Fatalf("PNG: %v", err)
	}
	img, err := png.Decode(bytes.NewReader(b))
	if err != nil || img.Bounds().Dx() != 200 {
		t.Fatalf("decode: %v %v", err, img)
	}
}

func TestParseHex(t *testing.T) {
	c, err := ParseHex("#FF6B35", 77)
	if err != nil || c != (color.NRGBA{0xFF, 0x6B, 0x35, 77}) {
		t.Fatalf("got %v %v", c, err)
	}
	for _, s := range []string{"", "#FFF", "#GG0000"} {
		if _, err := ParseHex(s, 0xFF); !errors.Is(err, ErrBadColor) {
			t.Fatalf("%q: want ErrBadColor, got %v", s, err)
		}
	}
}
