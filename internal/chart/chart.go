package chart

import "github.com/KaramelBytes/chartloom-cli/internal/dataset"

// Mark is the visual primitive of a chart.
type Mark string

const (
	MarkLine      Mark = "line"
	MarkBar       Mark = "bar"
	MarkPoint     Mark = "point"
	MarkArea      Mark = "area"
	MarkHistogram Mark = "histogram"
	MarkBoxplot   Mark = "boxplot"
)

// Valid reports whether m is one of the known marks.
func (m Mark) Valid() bool {
	switch m {
	case MarkLine, MarkBar, MarkPoint, MarkArea, MarkHistogram, MarkBoxplot:
		return true
	}
	return false
}

// TypeHint overrides the encoding type a renderer would infer from storage.
type TypeHint string

const (
	Quantitative TypeHint = "quantitative"
	Nominal      TypeHint = "nominal"
)

// AggregateCount counts rows per bin or group.
const AggregateCount = "count"

// Encoding binds one positional channel to a column.
type Encoding struct {
	Field     string   `json:"field,omitempty"`
	Type      TypeHint `json:"type,omitempty"`
	Bin       bool     `json:"bin,omitempty"`
	Aggregate string   `json:"aggregate,omitempty"`
}

// Spec is a declarative chart description. Data is the dataset the fields
// refer to; it is not part of the serialized form.
type Spec struct {
	Mark  Mark     `json:"mark"`
	X     Encoding `json:"x"`
	Y     Encoding `json:"y"`
	Title string   `json:"title"`

	Data *dataset.Dataset `json:"-"`
}

// MakeChart maps a chart type name onto a Spec. Matching is exact; unknown
// or empty types produce a point chart. Column names are not checked here,
// and ds is never modified.
func MakeChart(ds *dataset.Dataset, x, y, chartType, title string) *Spec {
	s := &Spec{Title: title, Data: ds, X: Encoding{Field: x}, Y: Encoding{Field: y}}
	switch chartType {
	case "line":
		s.Mark = MarkLine
	case "bar":
		s.Mark = MarkBar
	case "scatter":
		s.Mark = MarkPoint
	case "area":
		s.Mark = MarkArea
	case "histogram":
		s.Mark = MarkBar
		s.X = Encoding{Field: x, Type: Quantitative, Bin: true}
		s.Y = Encoding{Aggregate: AggregateCount}
	case "boxplot":
		s.Mark = MarkBoxplot
		s.X = Encoding{Field: x, Type: Nominal}
		s.Y = Encoding{Field: y, Type: Quantitative}
	default:
		s.Mark = MarkPoint
	}
	return s
}

// IsHistogram reports whether the spec bins x and counts rows.
func (s *Spec) IsHistogram() bool {
	return s.Mark == MarkHistogram || (s.Mark == MarkBar && s.X.Bin && s.Y.Aggregate == AggregateCount)
}
