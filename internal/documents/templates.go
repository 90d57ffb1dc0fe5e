package documents

import "html/template"

type descriptivePage struct {
	Ref     string
	Address string
}

var descriptiveTmpl = template.Must(template.New("descriptive").Parse(`<!DOCTYPE html>
<html><head><meta charset="utf-8"><title>Consulta {{.Ref}}</title>
<style>body { font-family: sans-serif; margin: 20px; } .seccion { margin-bottom: 20px; padding: 10px; border: 1px solid #ccc; }</style>
</head><body><h1>Consulta {{.Ref}}</h1>
{{if .Address}}<div class="seccion"><h3>Dirección</h3><p>{{.Address}}</p></div>
{{end}}</body></html>
`))
