package analysis

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/KaramelBytes/chartloom-cli/internal/dataset"
)

// Kind is the semantic type assigned to a column.
type Kind string

const (
	KindNumeric     Kind = "numeric"
	KindDatetime    Kind = "datetime"
	KindCategorical Kind = "categorical"
)

// ColumnMetadata is the per-column summary sent to the model.
type ColumnMetadata struct {
	Type        Kind `json:"type"`
	Cardinality int  `json:"n_unique"`
}

// Metadata maps column names to their inferred summaries.
type Metadata map[string]ColumnMetadata

// Options controls inference behavior.
type Options struct {
	// DateLayouts are tried in order against the first non-null value of a
	// text column. The first layout that parses is then required for every
	// other value in that column.
	DateLayouts []string
	// SampleRows determines how many example rows Markdown includes.
	SampleRows int
}

// DefaultDateLayouts is the ordered list of accepted date/time layouts.
var DefaultDateLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
	"2006/01/02",
	"01/02/2006",
	"02/01/2006",
	"1/2/2006 15:04:05",
	"1/2/2006 15:04",
	"1/2/2006",
	"Jan 2, 2006",
	"January 2, 2006",
	"2 Jan 2006",
	"02-Jan-2006",
}

// DefaultOptions returns reasonable defaults for inference.
func DefaultOptions() Options {
	return Options{DateLayouts: DefaultDateLayouts, SampleRows: 5}
}

// Infer classifies every column of ds and returns the metadata together with
// the same dataset. Text columns whose values all parse as dates are switched
// to temporal storage in place; row and column counts never change. Infer
// never fails: a column that does not coerce is categorical.
func Infer(ds *dataset.Dataset, opt Options) (Metadata, *dataset.Dataset) {
	meta := Metadata{}
	if ds == nil || len(ds.Columns) == 0 || ds.Rows() == 0 {
		return meta, ds
	}
	layouts := opt.DateLayouts
	if len(layouts) == 0 {
		layouts = DefaultDateLayouts
	}
	for _, c := range ds.Columns {
		kind := classify(c, layouts)
		meta[c.Name] = ColumnMetadata{Type: kind, Cardinality: c.Distinct()}
	}
	return meta, ds
}

func classify(c *dataset.Column, layouts []string) Kind {
	switch c.Storage {
	case dataset.StorageNumeric:
		return KindNumeric
	case dataset.StorageTemporal:
		return KindDatetime
	}
	vals, rows := c.Texts()
	if len(vals) == 0 {
		return KindCategorical
	}
	layout, ok := pickLayout(vals[0], layouts)
	if !ok {
		return KindCategorical
	}
	times := make([]time.Time, c.Len())
	for k, v := range vals {
		t, err := time.Parse(layout, v)
		if err != nil {
			return KindCategorical
		}
		times[rows[k]] = t
	}
	if err := c.ReplaceWithTimes(times); err != nil {
		return KindCategorical
	}
	return KindDatetime
}

func pickLayout(s string, layouts []string) (string, bool) {
	for _, l := range layouts {
		if _, err := time.Parse(l, s); err == nil {
			return l, true
		}
	}
	return "", false
}

// Names returns the metadata column names sorted alphabetically.
func (m Metadata) Names() []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// JSON returns the compact wire form of the metadata with keys sorted.
func (m Metadata) JSON() ([]byte, error) {
	return m.OrderedJSON(nil)
}

// OrderedJSON encodes m with keys in the given column order. Keys missing
// from order follow alphabetically; names in order without metadata are
// skipped.
func (m Metadata) OrderedJSON(order []string) ([]byte, error) {
	var b bytes.Buffer
	b.WriteByte('{')
	seen := make(map[string]bool, len(m))
	for _, name := range append(append([]string{}, order...), m.Names()...) {
		cm, ok := m[name]
		if !ok || seen[name] {
			continue
		}
		key, err := json.Marshal(name)
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(cm)
		if err != nil {
			return nil, fmt.Errorf("encode %q: %w", name, err)
		}
		if len(seen) > 0 {
			b.WriteByte(',')
		}
		seen[name] = true
		b.Write(key)
		b.WriteByte(':')
		b.Write(val)
	}
	b.WriteByte('}')
	return b.Bytes(), nil
}

// Markdown renders a compact, LLM- and human-friendly summary of the dataset.
func (m Metadata) Markdown(name string, ds *dataset.Dataset, sampleRows int) string {
	var b strings.Builder
	b.WriteString("[DATASET SUMMARY]\n")
	if name != "" {
		b.WriteString(fmt.Sprintf("File: %s\n", name))
	}
	b.WriteString(fmt.Sprintf("Rows: %d\n", ds.Rows()))
	b.WriteString(fmt.Sprintf("Columns: %d\n\n", len(ds.Columns)))

	b.WriteString("[SCHEMA]\n")
	for _, c := range ds.Columns {
		cm, ok := m[c.Name]
		if !ok {
			continue
		}
		missing := c.Len() - c.NonNull()
		missPct := 0.0
		if c.Len() > 0 {
			missPct = float64(missing) * 100 / float64(c.Len())
		}
		b.WriteString(fmt.Sprintf("- %s: %s (unique %d, missing %.1f%%)\n", safeName(c.Name), cm.Type, cm.Cardinality, missPct))
	}

	if sampleRows <= 0 || ds.Rows() == 0 {
		return b.String()
	}
	n := ds.Rows()
	if n > sampleRows {
		n = sampleRows
	}
	b.WriteString("\n[HEAD AND SAMPLE ROWS]\n| ")
	for i, c := range ds.Columns {
		if i > 0 {
			b.WriteString(" | ")
		}
		b.WriteString(safeName(c.Name))
	}
	b.WriteString(" |\n|")
	for range ds.Columns {
		b.WriteString(" --- |")
	}
	b.WriteString("\n")
	for r := 0; r < n; r++ {
		b.WriteString("| ")
		for i, c := range ds.Columns {
			if i > 0 {
				b.WriteString(" | ")
			}
			b.WriteString(safeVal(c.String(r)))
		}
		b.WriteString(" |\n")
	}
	return b.String()
}

func safeName(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return "(unnamed)"
	}
	return s
}

func safeVal(s string) string { return strings.ReplaceAll(strings.ReplaceAll(s, "\n", " "), "|", "/") }
