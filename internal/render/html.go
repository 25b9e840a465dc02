package render

import (
	"bytes"
	"encoding/json"
	"fmt"
	"html/template"
	"strings"

	"github.com/yuin/goldmark"
)

// Section is one recommendation as shown in the HTML report.
type Section struct {
	ChartType  string
	Title      string
	Reason     string
	Intent     string
	Strengths  string
	Weaknesses string
	WhenToUse  string
	// Doc is the Vega-Lite document; nil when Err is set.
	Doc any
	Err error
}

// HTMLReport writes a single self-contained page that embeds every chart
// with vega-embed.
type HTMLReport struct {
	Title string
	// Preamble is markdown shown above the charts.
	Preamble string
}

type htmlSection struct {
	ID    string
	Body  template.HTML
	Spec  template.JS
	Error string
}

var reportTmpl = template.Must(template.New("report").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>{{.Title}}</title>
<script src="https://cdn.jsdelivr.net/npm/vega@5"></script>
<script src="https://cdn.jsdelivr.net/npm/vega-lite@5"></script>
<script src="https://cdn.jsdelivr.net/npm/vega-embed@6"></script>
</head>
<body>
<h1>{{.Title}}</h1>
{{.Preamble}}
{{range .Sections}}<section>
{{.Body}}
{{if .Error}}<p class="error">{{.Error}}</p>{{else}}<div id="{{.ID}}"></div>
<script>vegaEmbed("#{{.ID}}", {{.Spec}});</script>{{end}}
</section>
{{end}}</body>
</html>
`))

// Render builds the page for sections in order.
func (r HTMLReport) Render(sections []Section) ([]byte, error) {
	title := r.Title
	if title == "" {
		title = "Chart recommendations"
	}
	pre, err := markdownHTML(r.Preamble)
	if err != nil {
		return nil, err
	}
	data := struct {
		Title    string
		Preamble template.HTML
		Sections []htmlSection
	}{Title: title, Preamble: pre}

	for i, s := range sections {
		body, err := markdownHTML(sectionMarkdown(i+1, s))
		if err != nil {
			return nil, err
		}
		hs := htmlSection{ID: fmt.Sprintf("vis%d", i+1), Body: body}
		if s.Err != nil || s.Doc == nil {
			cause := "no chart"
			if s.Err != nil {
				cause = s.Err.Error()
			}
			hs.Error = fmt.Sprintf("Could not render %s chart: %s", s.ChartType, cause)
		} else {
			b, err := json.Marshal(s.Doc)
			if err != nil {
				return nil, fmt.Errorf("encode chart %d: %w", i+1, err)
			}
			hs.Spec = template.JS(b)
		}
		data.Sections = append(data.Sections, hs)
	}

	var buf bytes.Buffer
	if err := reportTmpl.Execute(&buf, data); err != nil {
		return nil, fmt.Errorf("render report: %w", err)
	}
	return buf.Bytes(), nil
}

func sectionMarkdown(n int, s Section) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("### %d. %s (%s)\n\n", n, s.Title, s.ChartType))
	if s.Reason != "" {
		b.WriteString(fmt.Sprintf("**Why this chart?** %s\n\n", s.Reason))
	}
	if s.Intent != "" {
		b.WriteString(fmt.Sprintf("- **Intent:** %s\n", s.Intent))
	}
	if s.Strengths != "" {
		b.WriteString(fmt.Sprintf("- **Strengths:** %s\n", s.Strengths))
	}
	if s.Weaknesses != "" {
		b.WriteString(fmt.Sprintf("- **Weaknesses:** %s\n", s.Weaknesses))
	}
	if s.WhenToUse != "" {
		b.WriteString(fmt.Sprintf("- **When to use:** %s\n", s.WhenToUse))
	}
	return b.String()
}

// markdownHTML converts markdown with goldmark. Raw HTML in the input is
// omitted by the default renderer.
func markdownHTML(md string) (template.HTML, error) {
	if strings.TrimSpace(md) == "" {
		return "", nil
	}
	var buf bytes.Buffer
	if err := goldmark.Convert([]byte(md), &buf); err != nil {
		return "", fmt.Errorf("convert markdown: %w", err)
	}
	return template.HTML(buf.String()), nil
}
