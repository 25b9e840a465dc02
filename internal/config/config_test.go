package config

import (
	"os"
	"path/filepath"
	"testing"
)

func isolate(t *testing.T) {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	t.Setenv("OPENROUTER_API_KEY", "")
	t.Setenv("GEMINI_API_KEY", "")
}

func TestLoadDefaults(t *testing.T) {
	isolate(t)
	c, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if c.DefaultProvider != "openrouter" {
		t.Fatalf("default provider = %q", c.DefaultProvider)
	}
	if c.MaxTokens != 1024 || !c.JSONMode || c.LenientJSON {
		t.Fatalf("unexpected defaults: %+v", c)
	}
	if c.IntentMode != "user" || c.OutputDir != "charts" {
		t.Fatalf("unexpected defaults: %+v", c)
	}
	if c.PNGWidthIn != 6 || c.PNGHeightIn != 4 {
		t.Fatalf("png size = %vx%v", c.PNGWidthIn, c.PNGHeightIn)
	}
	if c.OllamaHost != "http://127.0.0.1:11434" {
		t.Fatalf("ollama host = %q", c.OllamaHost)
	}
}

func TestSaveLoadRoundTripExplicitFile(t *testing.T) {
	isolate(t)
	path := filepath.Join(t.TempDir(), "config.yaml")
	in := &Global{
		DefaultModel:    "gemini-2.0-flash",
		DefaultProvider: "gemini",
		MaxTokens:       512,
		Temperature:     0.1,
		LenientJSON:     true,
		IntentMode:      "inferred",
		OutputDir:       "out",
	}
	if err := Save(in, path); err != nil {
		t.Fatalf("save: %v", err)
	}
	c, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if c.DefaultModel != "gemini-2.0-flash" || c.DefaultProvider != "gemini" {
		t.Fatalf("model/provider not persisted: %+v", c)
	}
	if c.MaxTokens != 512 || !c.LenientJSON || c.IntentMode != "inferred" || c.OutputDir != "out" {
		t.Fatalf("values not persisted: %+v", c)
	}
}

func TestSaveDefaultLocation(t *testing.T) {
	isolate(t)
	if err := Save(&Global{DefaultModel: "llama3.1:8b"}, ""); err != nil {
		t.Fatalf("save: %v", err)
	}
	dir, err := Dir()
	if err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(filepath.Join(dir, "config.yaml")); err != nil {
		t.Fatalf("expected config.yaml under %s: %v", dir, err)
	}
	c, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if c.DefaultModel != "llama3.1:8b" {
		t.Fatalf("default model = %q", c.DefaultModel)
	}
}

func TestEnvOverrides(t *testing.T) {
	isolate(t)
	t.Setenv("CHARTLOOM_MAX_TOKENS", "2048")
	t.Setenv("CHARTLOOM_API_KEY", "sk-env")
	t.Setenv("GEMINI_API_KEY", "g-env")
	c, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if c.MaxTokens != 2048 {
		t.Fatalf("max tokens = %d", c.MaxTokens)
	}
	if c.APIKey != "sk-env" {
		t.Fatalf("api key = %q", c.APIKey)
	}
	if c.GeminiAPIKey != "g-env" {
		t.Fatalf("gemini key = %q", c.GeminiAPIKey)
	}
}

func TestOpenRouterKeyFallback(t *testing.T) {
	isolate(t)
	t.Setenv("OPENROUTER_API_KEY", "sk-or")
	c, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if c.APIKey != "sk-or" {
		t.Fatalf("api key = %q", c.APIKey)
	}
}

func TestLoadMalformedFile(t *testing.T) {
	isolate(t)
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("max_tokens: [unterminated"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Fatalf("expected error for malformed yaml")
	}
}
