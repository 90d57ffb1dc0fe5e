// Package coords resolves the WGS84 location of a cadastral reference from
// the downloaded parcel geometry or, failing that, the cadastre coordinate
// services.
package coords

import (
	"bytes"
	"context"
	"encoding/json"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/paulmach/orb"

	"github.com/mohammed-shakir/catastro-tool/internal/core/executor"
	"github.com/mohammed-shakir/catastro-tool/internal/core/model"
	"github.com/mohammed-shakir/catastro-tool/internal/crs"
	"github.com/mohammed-shakir/catastro-tool/internal/gml"
	"github.com/mohammed-shakir/catastro-tool/internal/logger"
	"github.com/mohammed-shakir/catastro-tool/internal/refcat"
)

var ErrNotFound = errors.New("coordinates not found")

const (
	DefaultTimeout = 20 * time.Second

	catastroNS = "http://www.catastro.meh.es/"
)

type Resolver struct {
	exec    executor.Client
	tr      *crs.Transformer
	base    string
	timeout time.Duration
	log     *slog.Logger
}

func NewResolver(exec executor.Client, tr *crs.Transformer, catastroBase string, log *slog.Logger) *Resolver {
	if log == nil {
		log = logger.Discard()
	}
	return &Resolver{
		exec:    exec,
		tr:      tr,
		base:    strings.TrimRight(catastroBase, "/"),
		timeout: DefaultTimeout,
		log:     log,
	}
}

// Resolve tries, in order, the geometry file at geometryPath (may be empty),
// the JSON service and the XML service. The first success wins and later
// sources are never queried.
func (r *Resolver) Resolve(ctx context.Context, ref refcat.Reference, geometryPath string) (model.Coordinates, error) {
	var errs []error

	if geometryPath != "" {
		c, err := r.FromGeometry(ref, geometryPath)
		if err == nil {
			return c, nil
		}
		r.log.WarnContext(ctx, "coordinates from geometry failed", "path", geometryPath, "err", err)
		errs = append(errs, err)
	}

	c, err := r.FromJSON(ctx, ref)
	if err == nil {
		return c, nil
	}
	r.log.WarnContext(ctx, "coordinates from json service failed", "err", err)
	errs = append(errs, err)

	c, err = r.FromXML(ctx, ref)
	if err == nil {
		return c, nil
	}
	r.log.WarnContext(ctx, "coordinates from xml service failed", "err", err)
	errs = append(errs, err)

	return model.Coordinates{}, fmt.Errorf("%w: %w", ErrNotFound, errors.Join(errs...))
}

// FromGeometry reads the reference point of a parcel GML, or the mean of
// its first posList, and reprojects it to WGS84.
func (r *Resolver) FromGeometry(ref refcat.Reference, path string) (model.Coordinates, error) {
	doc, err := gml.ParseFile(path)
	if err != nil {
		return model.Coordinates{}, err
	}

	var (
		pt   orb.Point
		prov model.Provenance
	)
	switch {
	case doc.ReferencePoint != nil:
		pt, prov = *doc.ReferencePoint, model.ProvenanceReferencePoint
	default:
		mean, ok := doc.PosListMean()
		if !ok {
			return model.Coordinates{}, gml.ErrNoGeometry
		}
		pt, prov = mean, model.ProvenanceCentroid
	}

	src := doc.SRS
	if src == "" {
		src = ref.ProjectedCRS()
	}
	wgs, err := r.tr.Point(src, crs.WGS84, pt)
	if err != nil {
		return model.Coordinates{}, err
	}
	return validate(wgs[0], wgs[1], prov)
}

type flexFloat float64

// UnmarshalJSON accepts numbers and numeric strings.
func (f *flexFloat) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(bytes.TrimSpace(b)), `"`)
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return fmt.Errorf("not a number: %s", b)
	}
	*f = flexFloat(v)
	return nil
}

type geoJSONResponse struct {
	Geo *struct {
		XCen *flexFloat `json:"xcen"`
		YCen *flexFloat `json:"ycen"`
	} `json:"geo"`
}

func (r *Resolver) FromJSON(ctx context.Context, ref refcat.Reference) (model.Coordinates, error) {
	u := r.base + "/OVCServWeb/OVCWcfCallejero/COVCCallejero.svc/json/Geo_RCToWGS84/" + url.PathEscape(ref.String())
	resp, err := r.exec.Get(ctx, "coords_json", u, nil, r.timeout)
	if err != nil {
		return model.Coordinates{}, err
	}
	var body geoJSONResponse
	if err := json.Unmarshal(resp.Body, &body); err != nil {
		return model.Coordinates{}, fmt.Errorf("coords_json: decode: %w", err)
	}
	if body.Geo == nil || body.Geo.XCen == nil || body.Geo.YCen == nil {
		return model.Coordinates{}, errors.New("coords_json: geo.xcen/ycen missing")
	}
	return validate(float64(*body.Geo.XCen), float64(*body.Geo.YCen), model.ProvenanceJSONService)
}

type xmlCoord struct {
	XCen string `xml:"geo>xcen"`
	YCen string `xml:"geo>ycen"`
}

func (r *Resolver) FromXML(ctx context.Context, ref refcat.Reference) (model.Coordinates, error) {
	u := r.base + "/ovcservweb/ovcswlocalizacionrc/ovccoordenadas.asmx/Consulta_RCCOOR"
	q := url.Values{"SRS": {crs.WGS84}, "RC": {ref.String()}}
	resp, err := r.exec.Get(ctx, "coords_xml", u, q, r.timeout)
	if err != nil {
		return model.Coordinates{}, err
	}

	c, err := findCoord(resp.Body)
	if err != nil {
		return model.Coordinates{}, fmt.Errorf("coords_xml: %w", err)
	}
	lon, err1 := strconv.ParseFloat(strings.TrimSpace(c.XCen), 64)
	lat, err2 := strconv.ParseFloat(strings.TrimSpace(c.YCen), 64)
	if err1 != nil || err2 != nil {
		return model.Coordinates{}, fmt.Errorf("coords_xml: bad xcen/ycen %q/%q", c.XCen, c.YCen)
	}
	return validate(lon, lat, model.ProvenanceXMLService)
}

// findCoord decodes the first catastro-namespaced <coord> element anywhere
// in the document.
func findCoord(b []byte) (xmlCoord, error) {
	dec := xml.NewDecoder(bytes.NewReader(b))
	dec.CharsetReader = gml.CharsetReader
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			return xmlCoord{}, errors.New("coord element missing")
		}
		if err != nil {
			return xmlCoord{}, fmt.Errorf("decode: %w", err)
		}
		se, ok := tok.(xml.StartElement)
		if !ok || se.Name.Local != "coord" || se.Name.Space != catastroNS {
			continue
		}
		var c xmlCoord
		if err := dec.DecodeElement(&c, &se); err != nil {
			return xmlCoord{}, fmt.Errorf("decode coord: %w", err)
		}
		if c.XCen == "" || c.YCen == "" {
			return xmlCoord{}, errors.New("geo/xcen or geo/ycen missing")
		}
		return c, nil
	}
}

func validate(lon, lat float64, prov model.Provenance) (model.Coordinates, error) {
	if math.IsNaN(lon) || math.IsNaN(lat) || math.Abs(lon) > 180 || math.Abs(lat) > 90 {
		return model.Coordinates{}, fmt.Errorf("coordinates out of range: %v,%v", lon, lat)
	}
	return model.Coordinates{Lon: lon, Lat: lat, SRS: crs.WGS84, Provenance: prov}, nil
}
