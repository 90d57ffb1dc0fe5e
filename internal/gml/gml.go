// Package gml reads the subset of GML 3.2 / GML 2 served by the cadastre
// INSPIRE services and the environmental WFS layers: features with simple
// attributes, surface/curve/point geometry and the cadastral reference point.
package gml

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/paulmach/orb"
	"golang.org/x/text/encoding/charmap"

	"github.com/mohammed-shakir/catastro-tool/internal/crs"
)

var ErrNoGeometry = errors.New("gml: no geometry")

type Feature struct {
	ID         string
	Properties map[string]string
	Geometry   orb.Geometry
}

// Document is a parsed feature collection. Coordinates are always x=easting
// or longitude, y=northing or latitude.
type Document struct {
	SRS            string
	ReferencePoint *orb.Point
	// FirstPosList holds the vertices of the first posList in document order.
	FirstPosList []orb.Point
	Features     []Feature
}

// Polygons gathers every polygon of every feature.
func (d *Document) Polygons() orb.MultiPolygon {
	var mp orb.MultiPolygon
	for _, f := range d.Features {
		switch g := f.Geometry.(type) {
		case orb.Polygon:
			mp = append(mp, g)
		case orb.MultiPolygon:
			mp = append(mp, g...)
		}
	}
	return mp
}

// PosListMean is the arithmetic mean of FirstPosList.
func (d *Document) PosListMean() (orb.Point, bool) {
	if len(d.FirstPosList) == 0 {
		return orb.Point{}, false
	}
	var sx, sy float64
	for _, p := range d.FirstPosList {
		sx += p[0]
		sy += p[1]
	}
	n := float64(len(d.FirstPosList))
	return orb.Point{sx / n, sy / n}, true
}

func ParseFile(path string) (*Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()
	return Parse(f)
}

func ParseBytes(b []byte) (*Document, error) {
	return Parse(bytes.NewReader(b))
}

var memberElems = map[string]bool{
	"member":         true,
	"featureMember":  true,
	"featureMembers": true,
}

var geometryElems = map[string]bool{
	"Polygon":         true,
	"Surface":         true,
	"MultiSurface":    true,
	"MultiPolygon":    true,
	"LineString":      true,
	"Curve":           true,
	"MultiCurve":      true,
	"MultiLineString": true,
	"Point":           true,
	"MultiPoint":      true,
	"Envelope":        true,
	"boundedBy":       true,
}

type frame struct {
	local    string
	srs      string
	dim      int
	hasChild bool
	text     strings.Builder
}

type featureBuilder struct {
	depth  int
	id     string
	props  map[string]string
	polys  []orb.Polygon
	lines  []orb.LineString
	points []orb.Point
}

func (b *featureBuilder) geometry() orb.Geometry {
	switch {
	case len(b.polys) == 1:
		return b.polys[0]
	case len(b.polys) > 1:
		return orb.MultiPolygon(b.polys)
	case len(b.lines) == 1:
		return b.lines[0]
	case len(b.lines) > 1:
		return orb.MultiLineString(b.lines)
	case len(b.points) == 1:
		return b.points[0]
	case len(b.points) > 1:
		return orb.MultiPoint(b.points)
	}
	return nil
}

type parser struct {
	stack []*frame
	doc   *Document
	cur   *featureBuilder
}

// Parse streams r and collects the features of the collection.
func Parse(r io.Reader) (*Document, error) {
	p := &parser{doc: &Document{}}
	dec := xml.NewDecoder(r)
	dec.CharsetReader = CharsetReader
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("gml: decode: %w", err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			p.start(t)
		case xml.CharData:
			if n := len(p.stack); n > 0 {
				p.stack[n-1].text.Write(t)
			}
		case xml.EndElement:
			if err := p.end(); err != nil {
				return nil, err
			}
		}
	}
	return p.doc, nil
}

// CharsetReader decodes the single-byte encodings some Spanish services
// still declare; anything else is passed through as UTF-8.
func CharsetReader(label string, in io.Reader) (io.Reader, error) {
	switch strings.ToLower(strings.TrimSpace(label)) {
	case "iso-8859-1", "iso8859-1", "latin1", "latin-1":
		return charmap.ISO8859_1.NewDecoder().Reader(in), nil
	case "iso-8859-15", "latin9":
		return charmap.ISO8859_15.NewDecoder().Reader(in), nil
	case "windows-1252", "cp1252":
		return charmap.Windows1252.NewDecoder().Reader(in), nil
	}
	return in, nil
}

func (p *parser) start(t xml.StartElement) {
	fr := &frame{local: t.Name.Local, dim: 2}
	if n := len(p.stack); n > 0 {
		parent := p.stack[n-1]
		parent.hasChild = true
		fr.srs = parent.srs
		fr.dim = parent.dim
		if p.cur == nil && memberElems[parent.local] {
			p.cur = &featureBuilder{depth: n, props: map[string]string{}}
		}
	}
	for _, a := range t.Attr {
		switch a.Name.Local {
		case "srsName":
			fr.srs = a.Value
			if p.doc.SRS == "" {
				p.doc.SRS = crs.Canonical(a.Value)
			}
		case "srsDimension":
			if d, err := strconv.Atoi(a.Value); err == nil && d >= 2 {
				fr.dim = d
			}
		case "id", "fid":
			if p.cur != nil && p.cur.depth == len(p.stack) && p.cur.id == "" {
				p.cur.id = a.Value
			}
		}
	}
	p.stack = append(p.stack, fr)
}

func (p *parser) end() error {
	n := len(p.stack)
	if n == 0 {
		return nil
	}
	fr := p.stack[n-1]
	p.stack = p.stack[:n-1]

	switch fr.local {
	case "posList", "pos", "coordinates":
		pts, err := parseCoords(fr.local, fr.text.String(), fr.dim, swapAxes(fr.srs))
		if err != nil {
			return err
		}
		p.addCoords(fr.local, pts)
	default:
		if p.cur != nil && !fr.hasChild && !p.inGeometry() && len(p.stack) > p.cur.depth {
			if v := strings.TrimSpace(fr.text.String()); v != "" {
				if _, dup := p.cur.props[fr.local]; !dup {
					p.cur.props[fr.local] = v
				}
			}
		}
	}

	if p.cur != nil && p.cur.depth == len(p.stack) {
		p.doc.Features = append(p.doc.Features, Feature{
			ID:         p.cur.id,
			Properties: p.cur.props,
			Geometry:   p.cur.geometry(),
		})
		p.cur = nil
	}
	return nil
}

func (p *parser) has(local string) bool {
	for _, f := range p.stack {
		if f.local == local {
			return true
		}
	}
	return false
}

func (p *parser) inGeometry() bool {
	for _, f := range p.stack {
		if geometryElems[f.local] {
			return true
		}
	}
	return false
}

func (p *parser) addCoords(kind string, pts []orb.Point) {
	if len(pts) == 0 {
		return
	}
	if kind == "posList" && p.doc.FirstPosList == nil {
		p.doc.FirstPosList = pts
	}
	if p.has("referencePoint") {
		if p.doc.ReferencePoint == nil {
			pt := pts[0]
			p.doc.ReferencePoint = &pt
		}
		return
	}
	if p.has("boundedBy") || p.has("Envelope") || p.cur == nil {
		return
	}
	b := p.cur
	switch {
	case p.has("exterior") || p.has("outerBoundaryIs"):
		b.polys = append(b.polys, orb.Polygon{closeRing(pts)})
	case p.has("interior") || p.has("innerBoundaryIs"):
		if len(b.polys) > 0 {
			last := len(b.polys) - 1
			b.polys[last] = append(b.polys[last], closeRing(pts))
		}
	case p.has("LineString") || p.has("Curve") || p.has("LineStringSegment"):
		b.lines = append(b.lines, orb.LineString(pts))
	case p.has("Point"):
		b.points = append(b.points, pts[0])
	}
}

func closeRing(pts []orb.Point) orb.Ring {
	r := orb.Ring(pts)
	if len(r) > 0 && r[0] != r[len(r)-1] {
		r = append(r, r[0])
	}
	return r
}

// swapAxes reports whether srs declares latitude-first axis order. The
// URN and URL spellings of geographic EPSG codes do; "EPSG:4326" keeps
// the traditional lon/lat order.
func swapAxes(srs string) bool {
	s := strings.ToLower(strings.TrimSpace(srs))
	if !strings.HasPrefix(s, "urn:") && !strings.HasPrefix(s, "http") {
		return false
	}
	switch crs.Canonical(srs) {
	case "EPSG:4326", "EPSG:4258", "EPSG:4230", "EPSG:4081", "EPSG:4083":
		return true
	}
	return false
}

func parseCoords(kind, text string, dim int, swap bool) ([]orb.Point, error) {
	var nums []float64
	if kind == "coordinates" {
		// GML 2: "x,y x,y"
		for _, tuple := range strings.Fields(text) {
			parts := strings.Split(tuple, ",")
			if len(parts) < 2 {
				return nil, fmt.Errorf("gml: bad coordinate tuple %q", tuple)
			}
			x, err1 := strconv.ParseFloat(parts[0], 64)
			y, err2 := strconv.ParseFloat(parts[1], 64)
			if err1 != nil || err2 != nil {
				return nil, fmt.Errorf("gml: bad coordinate tuple %q", tuple)
			}
			nums = append(nums, x, y)
		}
		dim = 2
	} else {
		for _, f := range strings.Fields(text) {
			v, err := strconv.ParseFloat(f, 64)
			if err != nil {
				return nil, fmt.Errorf("gml: bad ordinate %q: %w", f, err)
			}
			nums = append(nums, v)
		}
		if kind == "pos" && len(nums) >= 2 {
			dim = len(nums)
		}
	}
	if dim < 2 {
		dim = 2
	}
	pts := make([]orb.Point, 0, len(nums)/dim)
	for i := 0; i+1 < len(nums); i += dim {
		x, y := nums[i], nums[i+1]
		if swap {
			x, y = y, x
		}
		pts = append(pts, orb.Point{x, y})
	}
	return pts, nil
}
