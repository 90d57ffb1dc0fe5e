package ogc

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/mohammed-shakir/catastro-tool/internal/core/model"
)

func TestStoredQueryParams(t *testing.T) {
	v := StoredQueryParams(StoredQueryParcel, "9872023VH5797S0001WI", "EPSG:25830")
	assertHas := func(k, want string) {
		if got := v.Get(k); got != want {
			t.Fatalf("param %q got %q want %q", k, got, want)
		}
	}
	assertHas("service", "wfs")
	assertHas("version", "2.0.0")
	assertHas("request", "GetFeature")
	assertHas("STOREDQUERY_ID", "GetParcel")
	assertHas("refcat", "9872023VH5797S0001WI")
	assertHas("srsname", "EPSG:25830")
}

func TestBBoxGetFeatureParams(t *testing.T) {
	bb := model.BBox{X1: -3.7, Y1: 40.4, X2: -3.6, Y2: 40.5, SRID: "EPSG:4326"}
	v := BBoxGetFeatureParams("espacios_protegidos", bb)
	if got := v.Get("bbox"); got != "-3.700000,40.400000,-3.600000,40.500000,EPSG:4326" {
		t.Fatalf("bbox=%q", got)
	}
	if v.Get("typeName") != "espacios_protegidos" || v.Get("outputFormat") != "GML3" || v.Get("srsName") != "EPSG:4326" {
		t.Fatalf("unexpected params %v", v.Encode())
	}
}

func TestGetMapParams(t *testing.T) {
	bb := model.BBox{X1: 1, Y1: 2, X2: 3, Y2: 4, SRID: "EPSG:4326"}
	v := GetMapParams("Catastro", bb, 1600, 1600, true)
	if v.Get("TRANSPARENT") != "TRUE" || v.Get("WIDTH") != "1600" || v.Get("SRS") != "EPSG:4326" {
		t.Fatalf("unexpected params %v", v.Encode())
	}
	if v.Get("BBOX") != "1.00000000,2.00000000,3.00000000,4.00000000" {
		t.Fatalf("BBOX=%q", v.Get("BBOX"))
	}
	if GetMapParams("PNOA", bb, 10, 10, false).Get("TRANSPARENT") != "FALSE" {
		t.Fatalf("opaque layer must not be transparent")
	}
}

func TestCheckFeatureResponse(t *testing.T) {
	big := bytes.Repeat([]byte("x"), 600)
	if err := CheckFeatureResponse(big); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := CheckFeatureResponse([]byte("<x/>")); !errors.Is(err, ErrPayloadTooSmall) {
		t.Fatalf("expected ErrPayloadTooSmall, got %v", err)
	}
	withExc := append([]byte("<ows:ExceptionReport>"), big...)
	if err := CheckFeatureResponse(withExc); !errors.Is(err, ErrExceptionReport) {
		t.Fatalf("expected ErrExceptionReport, got %v", err)
	}
	if err := CheckLayerResponse(bytes.Repeat([]byte("y"), 500)); !errors.Is(err, ErrPayloadTooSmall) {
		t.Fatalf("layer payload of exactly 500 bytes must be rejected, got %v", err)
	}
}

func TestPDFHeuristics(t *testing.T) {
	if !IsPDF([]byte("%PDF-1.7\n...")) || IsPDF([]byte("<html>")) {
		t.Fatalf("IsPDF mismatch")
	}
	if !IsPDFContentType("application/pdf; charset=binary") || IsPDFContentType("text/html") {
		t.Fatalf("IsPDFContentType mismatch")
	}
	if err := CheckImageResponse([]byte(strings.Repeat("p", 1000))); err == nil {
		t.Fatalf("1000-byte image must be rejected")
	}
}
