package cmd

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/KaramelBytes/chartloom-cli/internal/ai"
	cfgpkg "github.com/KaramelBytes/chartloom-cli/internal/config"
	"github.com/KaramelBytes/chartloom-cli/internal/recommend"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "View or set Chartloom configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show effective configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		w := cmd.OutOrStdout()
		if cfg == nil {
			fmt.Fprintln(w, "No config loaded")
			return nil
		}
		printConfig(w, cfg)
		return nil
	},
}

func printConfig(w io.Writer, c *cfgpkg.Global) {
	fmt.Fprintf(w, "api_key: %s\n", mask(c.APIKey))
	fmt.Fprintf(w, "gemini_api_key: %s\n", mask(c.GeminiAPIKey))
	fmt.Fprintf(w, "default_provider: %s\n", c.DefaultProvider)
	if c.DefaultModel != "" {
		fmt.Fprintf(w, "default_model: %s\n", c.DefaultModel)
	} else {
		fmt.Fprintf(w, "default_model: (provider default: %s)\n", ai.DefaultModel(ai.NormalizeProvider(c.DefaultProvider)))
	}
	if c.BaseURL != "" {
		fmt.Fprintf(w, "base_url: %s\n", c.BaseURL)
	}
	fmt.Fprintf(w, "max_tokens: %d\n", c.MaxTokens)
	fmt.Fprintf(w, "temperature: %.3f\n", c.Temperature)
	fmt.Fprintf(w, "json_mode: %t\n", c.JSONMode)
	fmt.Fprintf(w, "lenient_json: %t\n", c.LenientJSON)
	fmt.Fprintf(w, "intent_mode: %s\n", c.IntentMode)
	fmt.Fprintf(w, "output_dir: %s\n", c.OutputDir)
	fmt.Fprintf(w, "png_size_in: %.1fx%.1f\n", c.PNGWidthIn, c.PNGHeightIn)
	fmt.Fprintf(w, "http_timeout_sec: %d\n", c.HTTPTimeoutSec)
	fmt.Fprintf(w, "retry: max=%d base=%dms cap=%dms\n", c.RetryMaxAttempts, c.RetryBaseDelayMs, c.RetryMaxDelayMs)
	fmt.Fprintf(w, "ollama_host: %s\n", c.OllamaHost)
	if c.ModelsAutoSync {
		fmt.Fprintf(w, "models_auto_sync: true (url=%s provider=%s merge=%t)\n", c.ModelsCatalogURL, c.ModelsProvider, c.ModelsMerge)
	}
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a config value and save to disk",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if cfg == nil {
			c, err := cfgpkg.Load(cfgFile)
			if err != nil {
				return err
			}
			cfg = c
		}
		if err := setConfigValue(cfg, args[0], args[1]); err != nil {
			return err
		}
		if err := cfgpkg.Save(cfg, cfgFile); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "✓ Saved %s\n", args[0])
		return nil
	},
}

func setConfigValue(c *cfgpkg.Global, key, val string) error {
	switch key {
	case "api_key":
		c.APIKey = val
	case "gemini_api_key":
		c.GeminiAPIKey = val
	case "default_model":
		c.DefaultModel = val
	case "base_url":
		c.BaseURL = val
	case "default_provider":
		p := ai.NormalizeProvider(val)
		switch p {
		case ai.ProviderOpenRouter, ai.ProviderGemini, ai.ProviderOllama:
			c.DefaultProvider = p
		default:
			return fmt.Errorf("invalid default_provider: %s (use %s)", val, strings.Join(ai.Providers(), "|"))
		}
	case "max_tokens":
		i, err := strconv.Atoi(val)
		if err != nil || i <= 0 {
			return fmt.Errorf("invalid positive int for max_tokens: %v", val)
		}
		c.MaxTokens = i
	case "temperature":
		f, err := strconv.ParseFloat(val, 64)
		if err != nil || f < 0 || f > 2 {
			return fmt.Errorf("invalid temperature (0..2): %v", val)
		}
		c.Temperature = f
	case "json_mode", "lenient_json", "models_auto_sync", "models_merge":
		b, err := strconv.ParseBool(val)
		if err != nil {
			return fmt.Errorf("invalid bool for %s: %w", key, err)
		}
		switch key {
		case "json_mode":
			c.JSONMode = b
		case "lenient_json":
			c.LenientJSON = b
		case "models_auto_sync":
			c.ModelsAutoSync = b
		case "models_merge":
			c.ModelsMerge = b
		}
	case "intent_mode":
		m, err := recommend.ParseIntentMode(val)
		if err != nil {
			return err
		}
		c.IntentMode = string(m)
	case "output_dir":
		c.OutputDir = val
	case "png_width_in", "png_height_in":
		f, err := strconv.ParseFloat(val, 64)
		if err != nil || f <= 0 {
			return fmt.Errorf("invalid positive size for %s: %v", key, val)
		}
		if key == "png_width_in" {
			c.PNGWidthIn = f
		} else {
			c.PNGHeightIn = f
		}
	case "http_timeout_sec", "retry_max_attempts", "retry_base_delay_ms", "retry_max_delay_ms", "ollama_timeout_sec":
		i, err := strconv.Atoi(val)
		if err != nil || i < 0 {
			return fmt.Errorf("invalid int for %s: %v", key, val)
		}
		switch key {
		case "http_timeout_sec":
			c.HTTPTimeoutSec = i
		case "retry_max_attempts":
			c.RetryMaxAttempts = i
		case "retry_base_delay_ms":
			c.RetryBaseDelayMs = i
		case "retry_max_delay_ms":
			c.RetryMaxDelayMs = i
		case "ollama_timeout_sec":
			c.OllamaTimeoutSec = i
		}
	case "ollama_host":
		c.OllamaHost = val
	case "models_catalog_url":
		c.ModelsCatalogURL = val
	case "models_provider":
		c.ModelsProvider = val
	default:
		return fmt.Errorf("unknown key: %s", key)
	}
	return nil
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
}

func mask(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 6 {
		return "******"
	}
	return s[:3] + "****" + s[len(s)-3:]
}
