package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/KaramelBytes/chartloom-cli/internal/ai"
	"github.com/KaramelBytes/chartloom-cli/internal/utils"
)

var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "Manage or inspect the model catalog used for context and cost warnings",
	Example: `  chartloom models show
  chartloom models show --provider gemini
  chartloom models sync --file ./models.json --merge
  chartloom models fetch --url https://example.com/models.json
  chartloom models fetch --provider ollama --output models.json`,
}

var showProvider string

var modelsShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current model catalog",
	RunE: func(cmd *cobra.Command, args []string) error {
		cat := ai.Catalog()
		if showProvider != "" {
			preset, ok := ai.PresetCatalog(ai.NormalizeProvider(showProvider))
			if !ok {
				return fmt.Errorf("unknown --provider: %s (use %s)", showProvider, strings.Join(ai.Providers(), "|"))
			}
			filtered := make(map[string]ai.ModelInfo, len(preset))
			for k := range preset {
				if mi, ok := cat[k]; ok {
					filtered[k] = mi
				}
			}
			cat = filtered
		}
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		// Keys are encoded in sorted order.
		return enc.Encode(cat)
	},
}

var (
	syncPath  string
	syncMerge bool
)

var modelsSyncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Load model catalog/pricing from a JSON file",
	RunE: func(cmd *cobra.Command, args []string) error {
		if syncPath == "" {
			return fmt.Errorf("--file is required")
		}
		m, err := ai.LoadCatalogFromJSON(syncPath)
		if err != nil {
			return fmt.Errorf("load catalog: %w", err)
		}
		if syncMerge {
			ai.MergeCatalog(m)
			fmt.Fprintf(cmd.OutOrStdout(), "✓ Merged %d models from file\n", len(m))
		} else {
			ai.OverrideCatalog(m)
			fmt.Fprintf(cmd.OutOrStdout(), "✓ Replaced model catalog with %d models from file\n", len(m))
		}
		return nil
	},
}

// providerURL returns a catalog URL for a provider from
// CHARTLOOM_<PROVIDER>_CATALOG_URL. Empty string if unset.
func providerURL(name string) string {
	switch name {
	case ai.ProviderOpenRouter, ai.ProviderGemini, ai.ProviderOllama:
		return os.Getenv("CHARTLOOM_" + strings.ToUpper(name) + "_CATALOG_URL")
	}
	return ""
}

var (
	fetchURL      string
	fetchOutput   string
	fetchMerge    bool
	fetchProvider string
)

var modelsFetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Fetch model catalog/pricing JSON from a URL (or a built-in preset) and apply it",
	RunE: func(cmd *cobra.Command, args []string) error {
		w := cmd.OutOrStdout()
		provider := ""
		if fetchProvider != "" {
			provider = ai.NormalizeProvider(fetchProvider)
		}
		url := fetchURL
		if url == "" && provider != "" {
			url = providerURL(provider)
		}

		var m map[string]ai.ModelInfo
		source := url
		switch {
		case url != "":
			fetched, err := fetchCatalog(url)
			if err != nil {
				return err
			}
			m = fetched
		case provider != "":
			// No URL: apply the built-in preset without network.
			preset, ok := ai.PresetCatalog(provider)
			if !ok {
				return fmt.Errorf("unknown --provider: %s (use %s)", fetchProvider, strings.Join(ai.Providers(), "|"))
			}
			m = preset
			source = "built-in '" + provider + "' preset"
		default:
			return fmt.Errorf("--url is required (or specify --provider with a known preset)")
		}

		if fetchOutput != "" {
			data, err := utils.PrettyJSON(m)
			if err != nil {
				return err
			}
			if err := utils.SafeWriteFile(fetchOutput, data); err != nil {
				return fmt.Errorf("write file: %w", err)
			}
			fmt.Fprintf(w, "✓ Saved catalog to %s\n", fetchOutput)
		}
		if fetchMerge {
			ai.MergeCatalog(m)
			fmt.Fprintf(w, "✓ Merged %s into in-memory catalog\n", source)
		} else {
			ai.OverrideCatalog(m)
			fmt.Fprintf(w, "✓ Replaced in-memory catalog with %s\n", source)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(modelsCmd)
	modelsCmd.AddCommand(modelsShowCmd)
	modelsCmd.AddCommand(modelsSyncCmd)
	modelsCmd.AddCommand(modelsFetchCmd)

	modelsShowCmd.Flags().StringVar(&showProvider, "provider", "", "only show models from a provider preset (openrouter|gemini|ollama)")

	modelsSyncCmd.Flags().StringVar(&syncPath, "file", "", "path to JSON catalog file")
	modelsSyncCmd.Flags().BoolVar(&syncMerge, "merge", false, "merge into existing catalog instead of replacing")

	modelsFetchCmd.Flags().StringVar(&fetchURL, "url", "", "URL to JSON catalog file")
	modelsFetchCmd.Flags().StringVar(&fetchOutput, "output", "", "optional path to save the fetched JSON")
	modelsFetchCmd.Flags().BoolVar(&fetchMerge, "merge", false, "merge into existing catalog instead of replacing")
	modelsFetchCmd.Flags().StringVar(&fetchProvider, "provider", "", "provider (openrouter|gemini|ollama); uses CHARTLOOM_<PROVIDER>_CATALOG_URL or the built-in preset")
}
