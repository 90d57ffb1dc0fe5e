package raster

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	_ "image/jpeg"
	"image/png"

	xdraw "golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

var ErrNoLayers = errors.New("nothing to composite")

// Compositor merges same-extent images, bottom first, into one PNG.
type Compositor interface {
	Compose(layers [][]byte, label string) ([]byte, error)
}

// ImageCompositor alpha-blends the layers over the first one and burns a
// caption strip into the top-left corner.
type ImageCompositor struct{}

func NewImageCompositor() *ImageCompositor { return &ImageCompositor{} }

func (ImageCompositor) Compose(layers [][]byte, label string) ([]byte, error) {
	if len(layers) == 0 {
		return nil, ErrNoLayers
	}
	var dst *image.RGBA
	for i, b := range layers {
		src, _, err := image.Decode(bytes.NewReader(b))
		if err != nil {
			return nil, fmt.Errorf("decode layer %d: %w", i, err)
		}
		if dst == nil {
			dst = image.NewRGBA(src.Bounds().Sub(src.Bounds().Min))
			draw.Draw(dst, dst.Bounds(), src, src.Bounds().Min, draw.Src)
			continue
		}
		if src.Bounds().Dx() == dst.Bounds().Dx() && src.Bounds().Dy() == dst.Bounds().Dy() {
			draw.Draw(dst, dst.Bounds(), src, src.Bounds().Min, draw.Over)
			continue
		}
		xdraw.ApproxBiLinear.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Over, nil)
	}
	if label != "" {
		drawLabel(dst, label)
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, dst); err != nil {
		return nil, fmt.Errorf("encode composite: %w", err)
	}
	return buf.Bytes(), nil
}

func drawLabel(img *image.RGBA, text string) {
	face := basicfont.Face7x13
	const pad = 6
	w := font.MeasureString(face, text).Ceil() + 2*pad
	h := face.Metrics().Height.Ceil() + 2*pad
	strip := image.Rect(0, 0, w, h).Intersect(img.Bounds())
	draw.Draw(img, strip, &image.Uniform{C: color.RGBA{0, 0, 0, 0xB0}}, image.Point{}, draw.Over)

	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(color.White),
		Face: face,
		Dot:  fixed.P(pad, pad+face.Metrics().Ascent.Ceil()),
	}
	d.DrawString(text)
}
