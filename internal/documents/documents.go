// Package documents downloads the descriptive query, the printable fiche
// and the SIGPAC print of a parcel.
package documents

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mohammed-shakir/catastro-tool/internal/core/executor"
	"github.com/mohammed-shakir/catastro-tool/internal/core/ogc"
	"github.com/mohammed-shakir/catastro-tool/internal/logger"
)

var (
	ErrUpstreamError = errors.New("upstream returned an error document")
	ErrUnusable      = errors.New("unusable document")
)

const (
	DescriptiveTimeout = 20 * time.Second
	FicheTimeout       = 30 * time.Second
	SigpacTimeout      = 90 * time.Second
)

type Endpoints struct {
	CatastroBase string
	FichePDF     string
	SigpacPrint  string
	SigpacWMS    string
}

type Downloader struct {
	exec executor.Client
	ep   Endpoints
	log  *slog.Logger
}

func NewDownloader(exec executor.Client, ep Endpoints, log *slog.Logger) *Downloader {
	if log == nil {
		log = logger.Discard()
	}
	ep.CatastroBase = strings.TrimRight(ep.CatastroBase, "/")
	return &Downloader{exec: exec, ep: ep, log: log}
}

func (d *Downloader) descriptiveURL() string {
	return d.ep.CatastroBase + "/OVCServWeb/OVCWcfCallejero/COVCCallejero.svc/json/Consulta_DNPRC"
}

func (d *Downloader) dnprcXMLURL() string {
	return d.ep.CatastroBase + "/ovcservweb/OVCSWLocalizacionRC/OVCCallejero.asmx/Consulta_DNPRC"
}

// Descriptive is the saved descriptive query.
type Descriptive struct {
	JSONPath string
	HTMLPath string
	Address  string
	Data     map[string]any
}

// FetchDescriptive stores the JSON answer in dir/json and a rendered page
// in dir/html. An answer carrying a "lerr" block is an upstream error.
func (d *Downloader) FetchDescriptive(ctx context.Context, ref, dir string) (Descriptive, error) {
	q := url.Values{}
	q.Set("RefCat", ref)
	resp, err := d.exec.Get(ctx, "descriptive", d.descriptiveURL(), q, DescriptiveTimeout)
	if err != nil {
		return Descriptive{}, err
	}

	var data map[string]any
	if err := json.Unmarshal(resp.Body, &data); err != nil {
		return Descriptive{}, fmt.Errorf("%w: descriptive json: %w", ErrUnusable, err)
	}
	if _, ok := findKey(data, "lerr"); ok {
		return Descriptive{}, fmt.Errorf("%w: descriptive query for %s", ErrUpstreamError, ref)
	}

	out := Descriptive{
		JSONPath: filepath.Join(dir, "json", ref+"_consulta_descriptiva.json"),
		HTMLPath: filepath.Join(dir, "html", ref+"_consulta_descriptiva.html"),
		Data:     data,
	}
	if v, ok := findKey(data, "ldt"); ok {
		out.Address = fmt.Sprint(v)
	}

	if err := writeJSON(out.JSONPath, data); err != nil {
		return Descriptive{}, err
	}
	var page bytes.Buffer
	if err := descriptiveTmpl.Execute(&page, descriptivePage{Ref: ref, Address: out.Address}); err != nil {
		return Descriptive{}, fmt.Errorf("render descriptive html: %w", err)
	}
	if err := writeFile(out.HTMLPath, page.Bytes()); err != nil {
		return Descriptive{}, err
	}
	return out, nil
}

// FetchFiche saves the printable fiche as PDF, or the DNPRC XML when the PDF
// service answers with anything else. The returned path is the saved file.
func (d *Downloader) FetchFiche(ctx context.Context, ref, dir string) (string, error) {
	q := url.Values{}
	q.Set("refcat", ref)
	resp, err := d.exec.Get(ctx, "fiche_pdf", d.ep.FichePDF, q, FicheTimeout)
	if err == nil && ogc.IsPDF(resp.Body) {
		p := filepath.Join(dir, "pdf", ref+"_ficha_catastral.pdf")
		return p, writeFile(p, resp.Body)
	}
	if err == nil {
		err = ogc.ErrNotPDF
	}
	d.log.WarnContext(ctx, "fiche pdf unavailable, trying xml", "err", err)

	xq := url.Values{}
	xq.Set("Provincia", "")
	xq.Set("Municipio", "")
	xq.Set("RC", ref)
	xresp, xerr := d.exec.Get(ctx, "fiche_xml", d.dnprcXMLURL(), xq, FicheTimeout)
	if xerr != nil {
		return "", errors.Join(err, xerr)
	}
	if len(bytes.TrimSpace(xresp.Body)) == 0 || !bytes.HasPrefix(bytes.TrimSpace(xresp.Body), []byte("<")) {
		return "", errors.Join(err, fmt.Errorf("%w: fiche xml", ErrUnusable))
	}
	if bytes.Contains(xresp.Body, []byte("<lerr>")) {
		return "", errors.Join(err, fmt.Errorf("%w: fiche xml for %s", ErrUpstreamError, ref))
	}
	p := filepath.Join(dir, "pdf", ref+"_ficha_catastral.xml")
	return p, writeFile(p, xresp.Body)
}

// SigpacRequest places the print on the parcel, in projected metres.
type SigpacRequest struct {
	Ref    string
	X, Y   int
	SRS    string
	Scale  int
	Layout string
}

type sigpacLayer struct {
	Type    string   `json:"type"`
	BaseURL string   `json:"baseURL"`
	Layers  []string `json:"layers"`
}

type sigpacSpec struct {
	Layout       string            `json:"layout"`
	OutputFormat string            `json:"outputFormat"`
	Attributes   map[string]string `json:"attributes"`
	Layers       []sigpacLayer     `json:"layers"`
	Center       [2]int            `json:"center"`
	Scale        int               `json:"scale"`
	SRS          string            `json:"srs"`
}

// FetchSigpac posts a print spec and keeps the answer only when the
// response is declared as application/pdf.
func (d *Downloader) FetchSigpac(ctx context.Context, req SigpacRequest, dir string) (string, error) {
	if req.Scale <= 0 {
		req.Scale = 5000
	}
	if req.Layout == "" {
		req.Layout = "A4 horizontal"
	}
	body := map[string]sigpacSpec{"spec": {
		Layout:       req.Layout,
		OutputFormat: "pdf",
		Attributes:   map[string]string{"title": "SIGPAC - RC: " + req.Ref},
		Layers:       []sigpacLayer{{Type: "WMS", BaseURL: d.ep.SigpacWMS, Layers: []string{"SIGPAC"}}},
		Center:       [2]int{req.X, req.Y},
		Scale:        req.Scale,
		SRS:          req.SRS,
	}}

	resp, err := d.exec.PostJSON(ctx, "sigpac", d.ep.SigpacPrint, body, SigpacTimeout)
	if err != nil {
		return "", err
	}
	if !ogc.IsPDFContentType(resp.ContentType) {
		return "", fmt.Errorf("%w: content type %q", ogc.ErrNotPDF, resp.ContentType)
	}
	p := filepath.Join(dir, "pdf", req.Ref+"_informe_sigpac.pdf")
	return p, writeFile(p, resp.Body)
}

// findKey searches nested maps and slices depth first.
func findKey(v any, key string) (any, bool) {
	switch t := v.(type) {
	case map[string]any:
		if found, ok := t[key]; ok {
			return found, true
		}
		for _, child := range t {
			if found, ok := findKey(child, key); ok {
				return found, true
			}
		}
	case []any:
		for _, child := range t {
			if found, ok := findKey(child, key); ok {
				return found, true
			}
		}
	}
	return nil, false
}

func writeJSON(path string, v any) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode %s: %w", filepath.Base(path), err)
	}
	return writeFile(path, buf.Bytes())
}

func writeFile(path string, b []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	if err := os.WriteFile(path, b, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
