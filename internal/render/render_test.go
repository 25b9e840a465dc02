package render

import (
	"bytes"
	"encoding/json"
	"errors"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/KaramelBytes/chartloom-cli/internal/chart"
	"github.com/KaramelBytes/chartloom-cli/internal/dataset"
)

func sampleData(t *testing.T) *dataset.Dataset {
	t.Helper()
	day := func(d int) time.Time { return time.Date(2024, 1, d, 0, 0, 0, 0, time.UTC) }
	ds, err := dataset.FromColumns(
		dataset.NewTemporalColumn("date", day(1), day(2), day(3), day(4)),
		dataset.NewTextColumn("region", "north", "south", "north", "east"),
		dataset.NewNumericColumn("sales", 10, 20, math.NaN(), 5),
	)
	if err != nil {
		t.Fatal(err)
	}
	return ds
}

func decodeDoc(t *testing.T, b []byte) map[string]any {
	t.Helper()
	var doc map[string]any
	if err := json.Unmarshal(b, &doc); err != nil {
		t.Fatalf("invalid json: %v\n%s", err, b)
	}
	return doc
}

func enc(doc map[string]any, ch string) map[string]any {
	return doc["encoding"].(map[string]any)[ch].(map[string]any)
}

func TestVegaLite_InfersTypesFromStorage(t *testing.T) {
	s := chart.MakeChart(sampleData(t), "date", "sales", "line", "Sales")
	b, err := VegaLite{}.Render(s)
	if err != nil {
		t.Fatal(err)
	}
	doc := decodeDoc(t, b)
	if doc["$schema"] != VegaLiteSchema || doc["title"] != "Sales" {
		t.Fatalf("header = %v %v", doc["$schema"], doc["title"])
	}
	if doc["mark"].(map[string]any)["type"] != "line" {
		t.Fatalf("mark = %v", doc["mark"])
	}
	if enc(doc, "x")["type"] != "temporal" || enc(doc, "y")["type"] != "quantitative" {
		t.Fatalf("encoding = %v", doc["encoding"])
	}
	vals := doc["data"].(map[string]any)["values"].([]any)
	if len(vals) != 4 {
		t.Fatalf("values = %d, want 4", len(vals))
	}
	row := vals[2].(map[string]any)
	if row["sales"] != nil || row["date"] != "2024-01-03T00:00:00Z" {
		t.Fatalf("row 2 = %v", row)
	}
	if _, ok := row["region"]; ok {
		t.Fatalf("unreferenced columns should not be inlined")
	}
}

func TestVegaLite_Histogram(t *testing.T) {
	s := chart.MakeChart(sampleData(t), "sales", "does-not-matter", "histogram", "H")
	b, err := VegaLite{}.Render(s)
	if err != nil {
		t.Fatal(err)
	}
	doc := decodeDoc(t, b)
	x, y := enc(doc, "x"), enc(doc, "y")
	if x["bin"] != true || x["type"] != "quantitative" || x["field"] != "sales" {
		t.Fatalf("x = %v", x)
	}
	if y["aggregate"] != "count" || y["type"] != "quantitative" || y["field"] != nil {
		t.Fatalf("y = %v", y)
	}
	if doc["mark"].(map[string]any)["type"] != "bar" {
		t.Fatalf("mark = %v", doc["mark"])
	}
}

func TestVegaLite_HistogramMarkAlias(t *testing.T) {
	s := &chart.Spec{Mark: chart.MarkHistogram, X: chart.Encoding{Field: "sales"}, Data: sampleData(t)}
	b, err := VegaLite{}.Render(s)
	if err != nil {
		t.Fatal(err)
	}
	doc := decodeDoc(t, b)
	if doc["mark"].(map[string]any)["type"] != "bar" || enc(doc, "x")["bin"] != true {
		t.Fatalf("alias not rendered as binned bar: %s", b)
	}
}

func TestVegaLite_BoxplotKeepsHints(t *testing.T) {
	s := chart.MakeChart(sampleData(t), "region", "sales", "boxplot", "")
	b, err := VegaLite{}.Render(s)
	if err != nil {
		t.Fatal(err)
	}
	doc := decodeDoc(t, b)
	if enc(doc, "x")["type"] != "nominal" || enc(doc, "y")["type"] != "quantitative" {
		t.Fatalf("encoding = %v", doc["encoding"])
	}
}

func TestRender_UnknownColumn(t *testing.T) {
	s := chart.MakeChart(sampleData(t), "date", "profit", "line", "")
	for _, r := range []Renderer{VegaLite{}, NewPNG(0, 0)} {
		_, err := r.Render(s)
		if !errors.Is(err, ErrUnknownColumn) {
			t.Fatalf("%s: want ErrUnknownColumn, got %v", r.Name(), err)
		}
	}
}

func TestRender_NotQuantitative(t *testing.T) {
	ds := sampleData(t)
	if _, err := (VegaLite{}).Render(chart.MakeChart(ds, "region", "", "histogram", "")); !errors.Is(err, ErrNotQuantitative) {
		t.Fatalf("histogram of text: %v", err)
	}
	if _, err := (VegaLite{}).Render(chart.MakeChart(ds, "sales", "region", "boxplot", "")); !errors.Is(err, ErrNotQuantitative) {
		t.Fatalf("boxplot of text: %v", err)
	}
	if _, err := NewPNG(0, 0).Render(chart.MakeChart(ds, "date", "region", "line", "")); !errors.Is(err, ErrNotQuantitative) {
		t.Fatalf("png line of text: %v", err)
	}
}

func TestPNG_AllKinds(t *testing.T) {
	ds := sampleData(t)
	magic := []byte("\x89PNG")
	cases := []struct{ x, y, typ string }{
		{"date", "sales", "line"},
		{"date", "sales", "area"},
		{"region", "sales", "bar"},
		{"date", "sales", "scatter"},
		{"region", "sales", "scatter"},
		{"sales", "", "histogram"},
		{"region", "sales", "boxplot"},
	}
	r := NewPNG(3, 2)
	for _, tc := range cases {
		b, err := r.Render(chart.MakeChart(ds, tc.x, tc.y, tc.typ, tc.typ))
		if err != nil {
			t.Fatalf("%s: %v", tc.typ, err)
		}
		if !bytes.HasPrefix(b, magic) {
			t.Fatalf("%s: output is not a png", tc.typ)
		}
	}
}

func TestPNG_NoData(t *testing.T) {
	ds, _ := dataset.FromColumns(dataset.NewNumericColumn("a", math.NaN()), dataset.NewNumericColumn("b", 1))
	if _, err := NewPNG(0, 0).Render(chart.MakeChart(ds, "a", "b", "line", "")); !errors.Is(err, ErrNoData) {
		t.Fatalf("want ErrNoData, got %v", err)
	}
}

func TestByName(t *testing.T) {
	if r, err := ByName("PNG", NewPNG(0, 0)); err != nil || r.Ext() != ".png" {
		t.Fatalf("png: %v %v", r, err)
	}
	if r, err := ByName("", PNG{}); err != nil || r.Name() != "vega-lite" {
		t.Fatalf("default: %v %v", r, err)
	}
	if _, err := ByName("svg", PNG{}); err == nil {
		t.Fatalf("expected error")
	}
}

func TestHTMLReport_IsolatesFailures(t *testing.T) {
	ds := sampleData(t)
	good, err := VegaLite{}.Document(chart.MakeChart(ds, "date", "sales", "line", "Trend"))
	if err != nil {
		t.Fatal(err)
	}
	_, badErr := VegaLite{}.Document(chart.MakeChart(ds, "nope", "sales", "bar", ""))
	page, err := HTMLReport{Title: "Report", Preamble: "Dataset **sales.csv**"}.Render([]Section{
		{ChartType: "line", Title: "Trend", Reason: "dates on x", Doc: good},
		{ChartType: "bar", Title: "Broken", Err: badErr},
	})
	if err != nil {
		t.Fatal(err)
	}
	html := string(page)
	for _, want := range []string{
		"<h3>1. Trend (line)</h3>",
		"<strong>Why this chart?</strong> dates on x",
		"<strong>sales.csv</strong>",
		`vegaEmbed("#vis1"`,
		"Could not render bar chart: unknown column",
		"vega-embed@6",
	} {
		if !strings.Contains(html, want) {
			t.Fatalf("report missing %q:\n%s", want, html)
		}
	}
	if strings.Contains(html, `id="vis2"`) {
		t.Fatalf("failed item should not get a chart container")
	}
}
