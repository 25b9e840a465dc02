package render

import (
	"bytes"
	"fmt"
	"image/color"
	"sort"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/KaramelBytes/chartloom-cli/internal/chart"
	"github.com/KaramelBytes/chartloom-cli/internal/dataset"
)

// HistogramBins is the bin count used for PNG histograms.
const HistogramBins = 10

var (
	seriesColor = color.RGBA{R: 50, G: 90, B: 200, A: 255}
	areaColor   = color.RGBA{R: 50, G: 90, B: 200, A: 90}
)

// PNG renders specs to raster images with gonum/plot.
type PNG struct {
	Width  vg.Length
	Height vg.Length
}

// NewPNG returns a PNG renderer sized in inches. Non-positive sizes fall back
// to 6x4.
func NewPNG(widthIn, heightIn float64) PNG {
	if widthIn <= 0 {
		widthIn = 6
	}
	if heightIn <= 0 {
		heightIn = 4
	}
	return PNG{Width: vg.Length(widthIn) * vg.Inch, Height: vg.Length(heightIn) * vg.Inch}
}

// Name returns the format name accepted by ByName.
func (PNG) Name() string { return "png" }

// Ext returns the output file extension.
func (PNG) Ext() string { return ".png" }

// Render draws s as a PNG image.
func (r PNG) Render(s *chart.Spec) ([]byte, error) {
	x, y, err := columns(s)
	if err != nil {
		return nil, err
	}
	if r.Width <= 0 || r.Height <= 0 {
		r = NewPNG(0, 0)
	}
	p := plot.New()
	p.Title.Text = s.Title
	p.X.Label.Text = x.Name
	if y != nil {
		p.Y.Label.Text = y.Name
	}

	switch {
	case s.IsHistogram():
		err = addHistogram(p, x)
	case s.Mark == chart.MarkBar:
		err = addBars(p, x, y)
	case s.Mark == chart.MarkBoxplot:
		err = addBoxes(p, x, y)
	default:
		err = addXY(p, s.Mark, x, y)
	}
	if err != nil {
		return nil, err
	}

	wt, err := p.WriterTo(r.Width, r.Height, "png")
	if err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	var buf bytes.Buffer
	if _, err := wt.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}

func addHistogram(p *plot.Plot, x *dataset.Column) error {
	var vals plotter.Values
	for i := 0; i < x.Len(); i++ {
		if v, ok := x.Float(i); ok {
			vals = append(vals, v)
		}
	}
	if len(vals) == 0 {
		return ErrNoData
	}
	h, err := plotter.NewHist(vals, HistogramBins)
	if err != nil {
		return fmt.Errorf("histogram: %w", err)
	}
	h.FillColor = seriesColor
	p.Add(h)
	p.Y.Label.Text = "count"
	timeTicks(&p.X, x)
	return nil
}

// groups collects y per distinct x label in first-seen order.
func groups(x, y *dataset.Column) ([]string, map[string]plotter.Values) {
	var order []string
	byKey := map[string]plotter.Values{}
	for i := 0; i < x.Len(); i++ {
		if x.IsNull(i) {
			continue
		}
		v, ok := y.Float(i)
		if !ok {
			continue
		}
		k := x.String(i)
		if _, seen := byKey[k]; !seen {
			order = append(order, k)
		}
		byKey[k] = append(byKey[k], v)
	}
	return order, byKey
}

func addBars(p *plot.Plot, x, y *dataset.Column) error {
	if !quantitative(y) {
		return fmt.Errorf("bar of %q: %w", y.Name, ErrNotQuantitative)
	}
	order, byKey := groups(x, y)
	if len(order) == 0 {
		return ErrNoData
	}
	sums := make(plotter.Values, len(order))
	for i, k := range order {
		for _, v := range byKey[k] {
			sums[i] += v
		}
	}
	bars, err := plotter.NewBarChart(sums, barWidth(len(order)))
	if err != nil {
		return fmt.Errorf("bar: %w", err)
	}
	bars.Color = seriesColor
	bars.LineStyle.Width = 0
	p.Add(bars)
	p.NominalX(order...)
	return nil
}

func addBoxes(p *plot.Plot, x, y *dataset.Column) error {
	order, byKey := groups(x, y)
	if len(order) == 0 {
		return ErrNoData
	}
	for i, k := range order {
		b, err := plotter.NewBoxPlot(barWidth(len(order)), float64(i), byKey[k])
		if err != nil {
			return fmt.Errorf("boxplot %q: %w", k, err)
		}
		b.FillColor = areaColor
		p.Add(b)
	}
	p.NominalX(order...)
	return nil
}

func addXY(p *plot.Plot, mark chart.Mark, x, y *dataset.Column) error {
	if !quantitative(y) {
		return fmt.Errorf("%s of %q: %w", mark, y.Name, ErrNotQuantitative)
	}
	var labels []string
	pos := map[string]float64{}
	pts := make(plotter.XYs, 0, x.Len())
	for i := 0; i < x.Len(); i++ {
		yv, ok := y.Float(i)
		if !ok || x.IsNull(i) {
			continue
		}
		xv, ok := x.Float(i)
		if !ok {
			// Text x values are placed on ordinal positions.
			k := x.String(i)
			if _, seen := pos[k]; !seen {
				pos[k] = float64(len(labels))
				labels = append(labels, k)
			}
			xv = pos[k]
		}
		pts = append(pts, plotter.XY{X: xv, Y: yv})
	}
	if len(pts) == 0 {
		return ErrNoData
	}
	if mark == chart.MarkLine || mark == chart.MarkArea {
		sort.SliceStable(pts, func(i, j int) bool { return pts[i].X < pts[j].X })
	}

	switch mark {
	case chart.MarkLine, chart.MarkArea:
		l, err := plotter.NewLine(pts)
		if err != nil {
			return fmt.Errorf("%s: %w", mark, err)
		}
		l.Color = seriesColor
		l.LineStyle.Width = vg.Points(2)
		if mark == chart.MarkArea {
			l.FillColor = areaColor
		}
		p.Add(l)
	default:
		sc, err := plotter.NewScatter(pts)
		if err != nil {
			return fmt.Errorf("scatter: %w", err)
		}
		sc.Color = seriesColor
		p.Add(sc)
	}
	if len(labels) > 0 {
		p.NominalX(labels...)
	} else {
		timeTicks(&p.X, x)
	}
	timeTicks(&p.Y, y)
	return nil
}

func timeTicks(a *plot.Axis, c *dataset.Column) {
	if c.Storage == dataset.StorageTemporal {
		a.Tick.Marker = plot.TimeTicks{Format: "2006-01-02"}
	}
}

func barWidth(n int) vg.Length {
	w := vg.Points(300 / float64(n+1))
	if w > vg.Points(40) {
		w = vg.Points(40)
	}
	return w
}
