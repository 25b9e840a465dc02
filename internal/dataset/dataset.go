package dataset

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Storage describes how a column's values are held in memory.
type Storage int

const (
	StorageText Storage = iota
	StorageNumeric
	StorageTemporal
)

// String returns the storage name used in reports.
func (s Storage) String() string {
	switch s {
	case StorageNumeric:
		return "numeric"
	case StorageTemporal:
		return "temporal"
	default:
		return "text"
	}
}

// Column is a named, typed sequence of values. Exactly one of the value
// slices is populated, depending on Storage. valid[i] is false for nulls.
type Column struct {
	Name    string
	Storage Storage

	text  []string
	nums  []float64
	times []time.Time
	valid []bool
}

// Dataset is a rectangular table of named columns.
type Dataset struct {
	Columns []*Column
	// SourceRows is the data row count of the source when a row limit cut
	// the load short, and zero otherwise.
	SourceRows int
}

// Truncated reports whether a row limit dropped rows from the source.
func (d *Dataset) Truncated() bool {
	return d != nil && d.SourceRows > d.Rows()
}

// ErrRagged is returned when columns of different lengths are combined.
var ErrRagged = errors.New("dataset columns have different lengths")

var nullMarkers = map[string]struct{}{
	"": {}, "NA": {}, "N/A": {}, "n/a": {}, "NaN": {}, "nan": {}, "-nan": {}, "-NaN": {},
	"null": {}, "NULL": {}, "None": {}, "#N/A": {}, "<NA>": {},
}

// IsNullToken reports whether a raw cell should be read as a missing value.
func IsNullToken(s string) bool {
	_, ok := nullMarkers[strings.TrimSpace(s)]
	return ok
}

// NewTextColumn builds a text column; null tokens become nulls.
func NewTextColumn(name string, values ...string) *Column {
	c := &Column{Name: name, Storage: StorageText, text: make([]string, len(values)), valid: make([]bool, len(values))}
	for i, v := range values {
		v = strings.TrimSpace(v)
		if IsNullToken(v) {
			continue
		}
		c.text[i] = v
		c.valid[i] = true
	}
	return c
}

// NewNumericColumn builds a numeric column; NaN values are nulls.
func NewNumericColumn(name string, values ...float64) *Column {
	c := &Column{Name: name, Storage: StorageNumeric, nums: make([]float64, len(values)), valid: make([]bool, len(values))}
	for i, v := range values {
		if math.IsNaN(v) {
			continue
		}
		c.nums[i] = v
		c.valid[i] = true
	}
	return c
}

// NewTemporalColumn builds a temporal column; zero times are nulls.
func NewTemporalColumn(name string, values ...time.Time) *Column {
	c := &Column{Name: name, Storage: StorageTemporal, times: make([]time.Time, len(values)), valid: make([]bool, len(values))}
	for i, v := range values {
		if v.IsZero() {
			continue
		}
		c.times[i] = v
		c.valid[i] = true
	}
	return c
}

var boolTokens = map[string]float64{
	"True": 1, "TRUE": 1, "true": 1,
	"False": 0, "FALSE": 0, "false": 0,
}

// boolColumn stores a column of boolean tokens as numeric 1/0. A null cell
// disqualifies the column, which then stays text.
func boolColumn(name string, cells []string) (*Column, bool) {
	if len(cells) == 0 {
		return nil, false
	}
	nums := make([]float64, len(cells))
	valid := make([]bool, len(cells))
	for i, raw := range cells {
		f, ok := boolTokens[strings.TrimSpace(raw)]
		if !ok {
			return nil, false
		}
		nums[i] = f
		valid[i] = true
	}
	return &Column{Name: name, Storage: StorageNumeric, nums: nums, valid: valid}, true
}

// columnFromCells stores a column as numeric when every non-null cell parses
// as a float or every cell is a boolean token, and as text otherwise.
func columnFromCells(name string, cells []string) *Column {
	if c, ok := boolColumn(name, cells); ok {
		return c
	}
	nums := make([]float64, len(cells))
	valid := make([]bool, len(cells))
	numeric := true
	for i, raw := range cells {
		v := strings.TrimSpace(raw)
		if IsNullToken(v) {
			continue
		}
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			numeric = false
			break
		}
		nums[i] = f
		valid[i] = true
	}
	if numeric {
		return &Column{Name: name, Storage: StorageNumeric, nums: nums, valid: valid}
	}
	return NewTextColumn(name, cells...)
}

// New builds a dataset from a header and row-major records. Rows shorter than
// the header are padded with nulls; rows longer than the header are an error.
func New(header []string, rows [][]string) (*Dataset, error) {
	names := normalizeHeader(header)
	cells := make([][]string, len(names))
	for j := range cells {
		cells[j] = make([]string, len(rows))
	}
	for i, rec := range rows {
		if len(rec) > len(names) {
			return nil, fmt.Errorf("row %d: %d fields, header has %d: %w", i+1, len(rec), len(names), ErrRagged)
		}
		for j := range rec {
			cells[j][i] = rec[j]
		}
	}
	ds := &Dataset{Columns: make([]*Column, len(names))}
	for j, name := range names {
		ds.Columns[j] = columnFromCells(name, cells[j])
	}
	return ds, nil
}

// FromColumns assembles a dataset from prebuilt columns.
func FromColumns(cols ...*Column) (*Dataset, error) {
	for _, c := range cols {
		if c.Len() != cols[0].Len() {
			return nil, fmt.Errorf("column %q has %d values, want %d: %w", c.Name, c.Len(), cols[0].Len(), ErrRagged)
		}
	}
	return &Dataset{Columns: cols}, nil
}

// normalizeHeader names blank headers "Unnamed: i" and suffixes duplicates
// with ".1", ".2", ...
func normalizeHeader(header []string) []string {
	out := make([]string, len(header))
	used := map[string]bool{}
	dups := map[string]int{}
	for i, h := range header {
		name := strings.TrimSpace(h)
		if name == "" {
			name = fmt.Sprintf("Unnamed: %d", i)
		}
		if used[name] {
			base := name
			for used[name] {
				dups[base]++
				name = fmt.Sprintf("%s.%d", base, dups[base])
			}
		}
		used[name] = true
		out[i] = name
	}
	return out
}

// Rows returns the row count.
func (d *Dataset) Rows() int {
	if d == nil || len(d.Columns) == 0 {
		return 0
	}
	return d.Columns[0].Len()
}

// Names returns column names in order.
func (d *Dataset) Names() []string {
	if d == nil {
		return nil
	}
	out := make([]string, len(d.Columns))
	for i, c := range d.Columns {
		out[i] = c.Name
	}
	return out
}

// Column looks a column up by exact name.
func (d *Dataset) Column(name string) (*Column, bool) {
	if d == nil {
		return nil, false
	}
	for _, c := range d.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return nil, false
}

// Len returns the number of rows, nulls included.
func (c *Column) Len() int { return len(c.valid) }

// IsNull reports whether row i holds a missing value.
func (c *Column) IsNull(i int) bool { return !c.valid[i] }

// Float returns the numeric value at i. For temporal columns it is the Unix
// time in seconds. ok is false for nulls and text columns.
func (c *Column) Float(i int) (float64, bool) {
	if !c.valid[i] {
		return 0, false
	}
	switch c.Storage {
	case StorageNumeric:
		return c.nums[i], true
	case StorageTemporal:
		return float64(c.times[i].UnixNano()) / 1e9, true
	}
	return 0, false
}

// Time returns the temporal value at i.
func (c *Column) Time(i int) (time.Time, bool) {
	if c.Storage != StorageTemporal || !c.valid[i] {
		return time.Time{}, false
	}
	return c.times[i], true
}

// String formats the value at i; nulls are "".
func (c *Column) String(i int) string {
	if !c.valid[i] {
		return ""
	}
	switch c.Storage {
	case StorageNumeric:
		return strconv.FormatFloat(c.nums[i], 'g', -1, 64)
	case StorageTemporal:
		t := c.times[i]
		if t.Hour() == 0 && t.Minute() == 0 && t.Second() == 0 && t.Nanosecond() == 0 {
			return t.Format("2006-01-02")
		}
		return t.Format(time.RFC3339)
	default:
		return c.text[i]
	}
}

// Value returns the cell as a JSON-friendly scalar: float64, string, or nil.
// Temporal values are RFC3339 strings.
func (c *Column) Value(i int) any {
	if !c.valid[i] {
		return nil
	}
	switch c.Storage {
	case StorageNumeric:
		return c.nums[i]
	case StorageTemporal:
		return c.times[i].Format(time.RFC3339)
	default:
		return c.text[i]
	}
}

// Texts returns the non-null text values and their row indices.
func (c *Column) Texts() (vals []string, rows []int) {
	if c.Storage != StorageText {
		return nil, nil
	}
	for i, ok := range c.valid {
		if ok {
			vals = append(vals, c.text[i])
			rows = append(rows, i)
		}
	}
	return vals, rows
}

// NonNull counts valid cells.
func (c *Column) NonNull() int {
	n := 0
	for _, ok := range c.valid {
		if ok {
			n++
		}
	}
	return n
}

// Distinct counts distinct non-null values under the current storage.
func (c *Column) Distinct() int {
	switch c.Storage {
	case StorageNumeric:
		set := map[float64]struct{}{}
		for i, ok := range c.valid {
			if ok {
				set[c.nums[i]] = struct{}{}
			}
		}
		return len(set)
	case StorageTemporal:
		set := map[int64]struct{}{}
		for i, ok := range c.valid {
			if ok {
				set[c.times[i].UnixNano()] = struct{}{}
			}
		}
		return len(set)
	default:
		set := map[string]struct{}{}
		for i, ok := range c.valid {
			if ok {
				set[c.text[i]] = struct{}{}
			}
		}
		return len(set)
	}
}

// ReplaceWithTimes switches the column to temporal storage. times must have
// one entry per row. The null mask is kept as is, so a zero time on a
// non-null row stays a value and entries on null rows are ignored.
func (c *Column) ReplaceWithTimes(times []time.Time) error {
	if len(times) != c.Len() {
		return fmt.Errorf("column %q: %d times for %d rows: %w", c.Name, len(times), c.Len(), ErrRagged)
	}
	c.Storage = StorageTemporal
	c.times = times
	c.text = nil
	c.nums = nil
	return nil
}
