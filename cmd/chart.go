package cmd

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/KaramelBytes/chartloom-cli/internal/analysis"
	"github.com/KaramelBytes/chartloom-cli/internal/chart"
	"github.com/KaramelBytes/chartloom-cli/internal/render"
	"github.com/KaramelBytes/chartloom-cli/internal/utils"
)

var (
	chData   datasetFlags
	chX      string
	chY      string
	chType   string
	chTitle  string
	chFormat string
	chOut    string
)

var chartCmd = &cobra.Command{
	Use:   "chart <file>",
	Short: "Render one chart for an X/Y pair without asking a model",
	Example: `  chartloom chart sales.csv -x date -y revenue --type line
  chartloom chart sales.csv -x region -y revenue --type boxplot --format png --out box.png
  chartloom chart sales.csv -x revenue --type histogram`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if chX == "" {
			return fmt.Errorf("-x is required")
		}
		if chY == "" && chType != "histogram" {
			return fmt.Errorf("-y is required for %s charts", chType)
		}
		ds, err := chData.load(args[0], cmd.ErrOrStderr())
		if err != nil {
			return err
		}
		_, ds = analysis.Infer(ds, analysis.DefaultOptions())

		r, err := newRenderer(chFormat)
		if err != nil {
			return err
		}
		title := chTitle
		if title == "" {
			title = fmt.Sprintf("%s of %s", chType, chX)
			if chY != "" && chType != "histogram" {
				title = fmt.Sprintf("%s of %s by %s", chType, chY, chX)
			}
		}
		spec := chart.MakeChart(ds, chX, chY, chType, title)
		out, err := r.Render(spec)
		if err != nil {
			return fmt.Errorf("could not render %s chart: %w", chType, err)
		}

		path := chOut
		if path == "" {
			if _, isVL := r.(render.VegaLite); isVL {
				fmt.Fprintln(cmd.OutOrStdout(), string(out))
				return nil
			}
			path = filepath.Join(outputDir(""), utils.ChartFileName(1, title, r.Ext()))
		}
		if err := utils.SafeWriteFile(path, out); err != nil {
			return fmt.Errorf("write chart: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "✓ Wrote %s chart (%s) to %s\n", spec.Mark, r.Name(), path)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(chartCmd)
	chData.register(chartCmd.Flags())
	chartCmd.Flags().StringVarP(&chX, "x", "x", "", "X column")
	chartCmd.Flags().StringVarP(&chY, "y", "y", "", "Y column (ignored for histograms)")
	chartCmd.Flags().StringVarP(&chType, "type", "t", "bar", "chart type: line|bar|scatter|area|histogram|boxplot")
	chartCmd.Flags().StringVar(&chTitle, "title", "", "chart title")
	chartCmd.Flags().StringVarP(&chFormat, "format", "f", "vega-lite", "output format: vega-lite|png")
	chartCmd.Flags().StringVar(&chOut, "out", "", "output file (default: stdout for vega-lite, output_dir for png)")
}
