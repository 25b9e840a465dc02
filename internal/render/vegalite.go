package render

import (
	"encoding/json"

	"github.com/KaramelBytes/chartloom-cli/internal/chart"
	"github.com/KaramelBytes/chartloom-cli/internal/dataset"
)

// VegaLiteSchema is the $schema URL written into every document.
const VegaLiteSchema = "https://vega.github.io/schema/vega-lite/v5.json"

// VegaLite renders specs as Vega-Lite v5 JSON with inline data.
type VegaLite struct{}

// Name returns the format name accepted by ByName.
func (VegaLite) Name() string { return "vega-lite" }

// Ext returns the output file extension.
func (VegaLite) Ext() string { return ".vl.json" }

type vlDoc struct {
	Schema   string     `json:"$schema"`
	Title    string     `json:"title,omitempty"`
	Data     vlData     `json:"data"`
	Mark     vlMark     `json:"mark"`
	Encoding vlEncoding `json:"encoding"`
}

type vlData struct {
	Values []map[string]any `json:"values"`
}

type vlMark struct {
	Type    string `json:"type"`
	Tooltip bool   `json:"tooltip,omitempty"`
}

type vlEncoding struct {
	X vlChannel `json:"x"`
	Y vlChannel `json:"y"`
}

type vlChannel struct {
	Field     string `json:"field,omitempty"`
	Type      string `json:"type"`
	Bin       bool   `json:"bin,omitempty"`
	Aggregate string `json:"aggregate,omitempty"`
}

// Document builds the Vega-Lite document for s.
func (VegaLite) Document(s *chart.Spec) (any, error) {
	x, y, err := columns(s)
	if err != nil {
		return nil, err
	}
	mark := string(s.Mark)
	if s.Mark == chart.MarkHistogram {
		mark = string(chart.MarkBar)
	}
	doc := vlDoc{
		Schema: VegaLiteSchema,
		Title:  s.Title,
		Mark:   vlMark{Type: mark, Tooltip: true},
	}
	doc.Encoding.X = channel(s.X, x)
	if s.IsHistogram() {
		doc.Encoding.X.Type = string(chart.Quantitative)
		doc.Encoding.X.Bin = true
		doc.Encoding.Y = vlChannel{Aggregate: chart.AggregateCount, Type: string(chart.Quantitative)}
	} else {
		doc.Encoding.Y = channel(s.Y, y)
	}

	n := s.Data.Rows()
	doc.Data.Values = make([]map[string]any, n)
	for i := 0; i < n; i++ {
		row := map[string]any{x.Name: x.Value(i)}
		if y != nil {
			row[y.Name] = y.Value(i)
		}
		doc.Data.Values[i] = row
	}
	return doc, nil
}

func (v VegaLite) Render(s *chart.Spec) ([]byte, error) {
	doc, err := v.Document(s)
	if err != nil {
		return nil, err
	}
	return json.MarshalIndent(doc, "", "  ")
}

// channel keeps an explicit type hint and otherwise derives the type from
// column storage.
func channel(e chart.Encoding, c *dataset.Column) vlChannel {
	ch := vlChannel{Field: e.Field, Type: string(e.Type), Bin: e.Bin, Aggregate: e.Aggregate}
	if ch.Type != "" {
		return ch
	}
	switch c.Storage {
	case dataset.StorageNumeric:
		ch.Type = "quantitative"
	case dataset.StorageTemporal:
		ch.Type = "temporal"
	default:
		ch.Type = "nominal"
	}
	return ch
}
