package export

import (
	"bytes"
	"fmt"
	"html/template"
	"math"
	"path/filepath"

	"github.com/mohammed-shakir/catastro-tool/internal/core/model"
	"github.com/mohammed-shakir/catastro-tool/internal/overlay"
)

type Coordinates struct {
	Lat     float64 `json:"latitud"`
	Lon     float64 `json:"longitud"`
	UTMX    float64 `json:"utm_x"`
	UTMY    float64 `json:"utm_y"`
	UTMZone int     `json:"huso_utm"`
	H3Cell  string  `json:"h3_cell,omitempty"`
}

// AffectationReport is the persisted overlay analysis of one parcel.
type AffectationReport struct {
	Reference    string                    `json:"referencia"`
	AreaM2       float64                   `json:"area_parcela_m2"`
	Coordinates  Coordinates               `json:"coordenadas"`
	Affectations []model.AffectationResult `json:"afectaciones_detectadas"`
}

func NewAffectationReport(s overlay.Summary, results []model.AffectationResult) AffectationReport {
	if results == nil {
		results = []model.AffectationResult{}
	}
	return AffectationReport{
		Reference: s.Reference,
		AreaM2:    s.AreaM2,
		Coordinates: Coordinates{
			Lat:     round6(s.Lat),
			Lon:     round6(s.Lon),
			UTMX:    s.UTMX,
			UTMY:    s.UTMY,
			UTMZone: s.UTMZone,
			H3Cell:  s.H3Cell,
		},
		Affectations: results,
	}
}

// Detected returns only the layers that overlap the parcel.
func (r AffectationReport) Detected() []model.AffectationResult {
	var out []model.AffectationResult
	for _, a := range r.Affectations {
		if a.Detected {
			out = append(out, a)
		}
	}
	return out
}

// WriteAffectations stores the report as json/<ref>_analisis_afectaciones.json
// and html/<ref>_informe_afectaciones.html and returns both paths.
func WriteAffectations(dir string, r AffectationReport) (string, string, error) {
	jsonPath := filepath.Join(dir, "json", r.Reference+"_analisis_afectaciones.json")
	if err := writeJSON(jsonPath, r); err != nil {
		return "", "", err
	}
	var page bytes.Buffer
	if err := affectationTmpl.Execute(&page, r); err != nil {
		return "", "", fmt.Errorf("render affectation report: %w", err)
	}
	htmlPath := filepath.Join(dir, "html", r.Reference+"_informe_afectaciones.html")
	if err := writeFile(htmlPath, page.Bytes()); err != nil {
		return "", "", err
	}
	return jsonPath, htmlPath, nil
}

// WriteRunSummary stores the run result as json/<ref>_resumen.json.
func WriteRunSummary(dir string, res model.RunResult) (string, error) {
	p := filepath.Join(dir, "json", res.Reference+"_resumen.json")
	return p, writeJSON(p, res)
}

var affectationTmpl = template.Must(template.New("affectations").Funcs(template.FuncMap{
	"pct": func(v float64) string { return fmt.Sprintf("%.2f", v) },
}).Parse(`<!DOCTYPE html>
<html><head><meta charset="utf-8"><title>Análisis Afectaciones - {{.Reference}}</title></head>
<body><h1>Análisis Afectaciones - {{.Reference}}</h1>
<p>Superficie: {{.AreaM2}} m²</p>
{{- $found := .Detected}}
{{- if $found}}
{{- range $found}}
<div><h3>{{.Description}}</h3><p>{{.AffectedAreaM2}} m² ({{pct .PercentOfParcel}}%)</p>{{if .Names}}<ul>{{range .Names}}<li>{{.}}</li>{{end}}</ul>{{end}}{{if .MapURL}}<img src="{{.MapURL}}" alt="{{.Layer}}">{{end}}</div>
{{- end}}
{{- else}}
<p>Sin afectaciones detectadas</p>
{{- end}}
{{- range .Affectations}}{{if .Error}}
<p class="error">{{.Layer}}: {{.Error}}</p>{{end}}{{end}}
</body></html>
`))

func round6(v float64) float64 {
	return math.Round(v*1e6) / 1e6
}
