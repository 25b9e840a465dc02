package render

import (
	"errors"
	"fmt"
	"strings"

	"github.com/KaramelBytes/chartloom-cli/internal/chart"
	"github.com/KaramelBytes/chartloom-cli/internal/dataset"
)

// Renderer turns a chart spec into a displayable artifact.
type Renderer interface {
	Name() string
	// Ext is the file extension of rendered output, including the dot.
	Ext() string
	Render(s *chart.Spec) ([]byte, error)
}

var (
	ErrUnknownColumn   = errors.New("unknown column")
	ErrNotQuantitative = errors.New("column is not quantitative")
	ErrNoData          = errors.New("no data to plot")
)

// ByName returns the renderer for a format name.
func ByName(name string, png PNG) (Renderer, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "vega", "vegalite", "vega-lite", "json":
		return VegaLite{}, nil
	case "png":
		return png, nil
	}
	return nil, fmt.Errorf("unknown render format %q (want vega-lite|png)", name)
}

func lookup(s *chart.Spec, field string) (*dataset.Column, error) {
	if s.Data == nil {
		return nil, ErrNoData
	}
	c, ok := s.Data.Column(field)
	if !ok {
		return nil, fmt.Errorf("%w %q (available: %s)", ErrUnknownColumn, field, strings.Join(s.Data.Names(), ", "))
	}
	return c, nil
}

func quantitative(c *dataset.Column) bool {
	return c.Storage == dataset.StorageNumeric || c.Storage == dataset.StorageTemporal
}

// columns resolves the x and y columns a spec needs. y is nil for histograms.
func columns(s *chart.Spec) (x, y *dataset.Column, err error) {
	if s == nil {
		return nil, nil, ErrNoData
	}
	if x, err = lookup(s, s.X.Field); err != nil {
		return nil, nil, err
	}
	if s.IsHistogram() {
		if !quantitative(x) {
			return nil, nil, fmt.Errorf("histogram of %q: %w", x.Name, ErrNotQuantitative)
		}
		return x, nil, nil
	}
	if y, err = lookup(s, s.Y.Field); err != nil {
		return nil, nil, err
	}
	if s.Y.Type == chart.Quantitative && !quantitative(y) {
		return nil, nil, fmt.Errorf("%s of %q: %w", s.Mark, y.Name, ErrNotQuantitative)
	}
	return x, y, nil
}
