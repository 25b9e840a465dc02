package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/KaramelBytes/chartloom-cli/internal/analysis"
	"github.com/KaramelBytes/chartloom-cli/internal/utils"
)

var (
	infData       datasetFlags
	infJSON       bool
	infSampleRows int
	infOutputPath string
)

var inferCmd = &cobra.Command{
	Use:   "infer <file>",
	Short: "Infer column types (numeric, datetime, categorical) for a CSV/TSV/XLSX file",
	Example: `  chartloom infer sales.csv
  chartloom infer sales.csv --json
  chartloom infer book.xlsx --sheet Data --output schema.md`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := args[0]
		ds, err := infData.load(path, cmd.ErrOrStderr())
		if err != nil {
			return err
		}
		opt := analysis.DefaultOptions()
		if infSampleRows >= 0 {
			opt.SampleRows = infSampleRows
		}
		meta, ds := analysis.Infer(ds, opt)

		var out []byte
		if infJSON {
			compact, err := meta.OrderedJSON(ds.Names())
			if err != nil {
				return err
			}
			var buf bytes.Buffer
			if err := json.Indent(&buf, compact, "", "  "); err != nil {
				return err
			}
			out = buf.Bytes()
		} else {
			out = []byte(meta.Markdown(filepath.Base(path), ds, opt.SampleRows))
		}

		if infOutputPath != "" {
			if err := utils.SafeWriteFile(infOutputPath, out); err != nil {
				return fmt.Errorf("write output: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✓ Wrote column metadata to %s\n", infOutputPath)
			return nil
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(out))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(inferCmd)
	infData.register(inferCmd.Flags())
	inferCmd.Flags().BoolVar(&infJSON, "json", false, "print metadata as JSON (the payload sent to the model)")
	inferCmd.Flags().IntVar(&infSampleRows, "sample-rows", 5, "number of sample rows in the markdown report")
	inferCmd.Flags().StringVarP(&infOutputPath, "output", "o", "", "optional path to write the report")
}
