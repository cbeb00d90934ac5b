package preview

import (
	"bytes"
	"html/template"
	"os"

	"github.com/pkg/errors"
)

var printTemplate = template.Must(template.New("print").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>{{.Doc.Title}} {{.Doc.PermitID}}</title>
{{range .Styles}}<style>{{.}}</style>
{{end}}<style>
@page { size: A4; margin: 12mm; }
body { font-family: Arial, sans-serif; font-size: 10pt; }
table { width: 100%; border-collapse: collapse; margin-bottom: 6mm; }
th, td { border: 1px solid #333; padding: 2px 4px; text-align: left; vertical-align: top; }
h1 { font-size: 14pt; } h2 { font-size: 11pt; margin: 4mm 0 1mm; }
</style>
</head>
<body onload="window.print()">
<h1>{{.Doc.Title}}</h1>
<table class="header">
<tr><th>Permit ID</th><td>{{.Doc.PermitID}}</td><th>Status</th><td>{{.Doc.Status}}</td></tr>
{{range .Doc.Header}}<tr><th>{{.Label}}</th><td colspan="3">{{.Value}}</td></tr>
{{end}}</table>
{{range .Doc.Sections}}<h2>{{.Title}}</h2>
{{if .Fields}}<table class="fields">
{{range .Fields}}<tr><th>{{.Label}}</th><td>{{.Value}}</td></tr>
{{end}}</table>
{{end}}{{with .Checklist}}<table class="checklist">
<tr>{{range .Columns}}<th>{{.}}</th>{{end}}</tr>
{{range .Rows}}<tr>{{range .}}<td>{{.}}</td>{{end}}</tr>
{{end}}</table>
{{end}}{{with .Authorizations}}<table class="authorizations">
<tr>{{range .Columns}}<th>{{.}}</th>{{end}}</tr>
{{range .Rows}}<tr>{{range .}}<td>{{.}}</td>{{end}}</tr>
{{end}}</table>
{{end}}{{end}}{{if .Doc.Closure}}<h2>Work Closure</h2>
<table class="closure">
{{range .Doc.Closure}}<tr><th>{{.Label}}</th><td>{{.Value}}</td></tr>
{{end}}</table>
{{end}}</body>
</html>
`))

// HTML renders a standalone A4 print document with the given stylesheets inlined.
func HTML(doc Document, stylesheets []string) ([]byte, error) {
	styles := make([]template.CSS, len(stylesheets))
	for i, css := range stylesheets {
		styles[i] = template.CSS(css)
	}
	var buf bytes.Buffer
	if err := printTemplate.Execute(&buf, struct {
		Doc    Document
		Styles []template.CSS
	}{doc, styles}); err != nil {
		return nil, errors.Wrap(err, "render print html")
	}
	return buf.Bytes(), nil
}

// LoadStylesheets reads the configured CSS files in order.
func LoadStylesheets(paths []string) ([]string, error) {
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			return nil, errors.Wrapf(err, "read stylesheet %s", p)
		}
		out = append(out, string(data))
	}
	return out, nil
}
