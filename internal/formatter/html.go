package formatter

import (
	"fmt"
	"html/template"
	"strings"

	"ao3extract/internal/models"
)

var htmlReport = template.Must(template.New("report").Funcs(template.FuncMap{
	"notice": func() string { return NotFoundNotice },
}).Parse(`<html>
<head>
<meta charset="utf-8">
<title>{{.Heading}}</title>
<style>
body { font-family: Arial, sans-serif; background:#f5f5f5; color:#222; padding:20px; }
.work { border:1px solid #ddd; padding:15px; margin-bottom:15px; background:#fff; border-radius:8px; }
.title { font-weight:bold; font-size:1.2em; margin-bottom:5px; }
.summary { font-style: italic; margin-bottom:10px; }
.url a { color:#0066cc; text-decoration:none; }
.stats div { margin: 2px 0; }
.notfound { color:#a00; font-weight:bold; margin-bottom:10px; }
.fallback { color:#886600; font-size:0.9em; margin-bottom:5px; }
</style>
</head>
<body>
<h1>{{.Heading}}</h1>
{{range .Works -}}
<div class="work">
<div class="title">{{.Title}}</div>
{{if .NotFound}}<div class="notfound">{{notice}}</div>
{{else if .Fallback}}<div class="fallback">Metadata recovered from the document text.</div>
{{end -}}
<div class="url"><a href="{{.Link}}" target="_blank">{{.Link}}</a></div>
<div class="summary">{{.Summary}}</div>
{{if .Stats}}<div class="stats">
{{range .Stats}}<div><strong>{{.Label}}:</strong> {{.Value}}</div>
{{end}}</div>
{{end -}}
</div>
{{end -}}
</body>
</html>
`))

type htmlWork struct {
	Title    string
	Link     string
	Summary  string
	Stats    []models.Attribute
	NotFound bool
	Fallback bool
}

type htmlPage struct {
	Heading string
	Works   []htmlWork
}

func renderHTML(results []models.ResultRecord, opts Options) (string, error) {
	labels := newLabelFormatter()
	page := htmlPage{
		Heading: heading(opts.Title, len(results)),
		Works:   make([]htmlWork, 0, len(results)),
	}

	for _, rec := range results {
		work := htmlWork{
			Title:    rec.Title,
			Link:     rec.Link(),
			Summary:  rec.Summary,
			NotFound: rec.NotFound,
			Fallback: rec.Origin == models.OriginFallback,
		}

		for _, attr := range rec.Stats {
			work.Stats = append(work.Stats, models.Attribute{
				Label: labels.format(attr.Label),
				Value: attr.Value,
			})
		}

		page.Works = append(page.Works, work)
	}

	var sb strings.Builder
	if err := htmlReport.Execute(&sb, page); err != nil {
		return "", fmt.Errorf("failed to render html report: %w", err)
	}

	return sb.String(), nil
}
