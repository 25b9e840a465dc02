package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/pflag"

	"github.com/KaramelBytes/chartloom-cli/internal/dataset"
	"github.com/KaramelBytes/chartloom-cli/internal/render"
)

// datasetFlags are the loader flags shared by infer, chart, and recommend.
type datasetFlags struct {
	Delimiter string
	Sheet     string
	MaxRows   int
}

func (f *datasetFlags) register(fs *pflag.FlagSet) {
	fs.StringVar(&f.Delimiter, "delimiter", "", "CSV delimiter: ',' | ';' | '|' | 'tab' (default: tab for .tsv, else comma)")
	fs.StringVar(&f.Sheet, "sheet", "", "XLSX: sheet name to load (default: first sheet)")
	fs.IntVar(&f.MaxRows, "max-rows", dataset.DefaultOptions().MaxRows, "maximum rows to load (0 = unlimited)")
}

func parseDelimiter(s string) (rune, error) {
	switch s {
	case "":
		return 0, nil
	case ",":
		return ',', nil
	case "\t", "tab", "\\t":
		return '\t', nil
	case ";":
		return ';', nil
	case "|", "pipe":
		return '|', nil
	}
	return 0, fmt.Errorf("unsupported --delimiter: %s", s)
}

// load reads path and warns on w when --max-rows dropped rows.
func (f datasetFlags) load(path string, w io.Writer) (*dataset.Dataset, error) {
	opt := dataset.DefaultOptions()
	opt.MaxRows = f.MaxRows
	opt.Sheet = f.Sheet
	d, err := parseDelimiter(f.Delimiter)
	if err != nil {
		return nil, err
	}
	opt.Delimiter = d
	ds, err := dataset.Load(path, opt)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}
	if ds.Truncated() {
		fmt.Fprintf(w, "⚠ Loaded first %d of %d rows (--max-rows %d)\n", ds.Rows(), ds.SourceRows, f.MaxRows)
	}
	return ds, nil
}

// newRenderer resolves --format with the configured PNG size.
func newRenderer(format string) (render.Renderer, error) {
	png := render.NewPNG(0, 0)
	if cfg != nil {
		png = render.NewPNG(cfg.PNGWidthIn, cfg.PNGHeightIn)
	}
	return render.ByName(format, png)
}

func outputDir(flag string) string {
	if flag != "" {
		return flag
	}
	if cfg != nil && cfg.OutputDir != "" {
		return cfg.OutputDir
	}
	return "charts"
}
