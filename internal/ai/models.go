package ai

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"sync"
)

// Model metadata and simple pricing helpers for UX warnings.
// Prices are illustrative and should be verified against provider docs.

type ModelInfo struct {
	Name          string
	ContextTokens int     // approximate context window
	InputPerK     float64 // USD per 1K input tokens
	OutputPerK    float64 // USD per 1K output tokens
}

var (
	catalogMu sync.RWMutex
	models    = builtinCatalog()
)

func builtinCatalog() map[string]ModelInfo {
	m := map[string]ModelInfo{}
	for _, p := range []string{ProviderOpenRouter, ProviderGemini, ProviderOllama} {
		preset, _ := PresetCatalog(p)
		for k, v := range preset {
			m[k] = v
		}
	}
	return m
}

// PresetCatalog returns a built-in curated catalog for a known provider.
// The catalog can be merged or used to replace the in-memory catalog.
func PresetCatalog(provider string) (map[string]ModelInfo, bool) {
	switch provider {
	case ProviderOpenRouter:
		return map[string]ModelInfo{
			"openai/gpt-4.1-mini": {
				Name:          "openai/gpt-4.1-mini",
				ContextTokens: 1047576,
				InputPerK:     0.0004,
				OutputPerK:    0.0016,
			},
			"openai/gpt-4o-mini": {
				Name:          "openai/gpt-4o-mini",
				ContextTokens: 128000,
				InputPerK:     0.00015,
				OutputPerK:    0.0006,
			},
			"anthropic/claude-3-haiku": {
				Name:          "anthropic/claude-3-haiku",
				ContextTokens: 200000,
				InputPerK:     0.00025,
				OutputPerK:    0.00125,
			},
			"google/gemini-2.0-flash-001": {
				Name:          "google/gemini-2.0-flash-001",
				ContextTokens: 1048576,
				InputPerK:     0.0001,
				OutputPerK:    0.0004,
			},
			"deepseek/deepseek-chat-v3-0324:free": {
				Name:          "deepseek/deepseek-chat-v3-0324:free",
				ContextTokens: 163840,
			},
			"meta-llama/llama-3.1-8b-instruct": {
				Name:          "meta-llama/llama-3.1-8b-instruct",
				ContextTokens: 131072,
			},
		}, true
	case ProviderGemini, ProviderGoogle:
		return map[string]ModelInfo{
			"gemini-2.0-flash": {
				Name:          "gemini-2.0-flash",
				ContextTokens: 1048576,
				InputPerK:     0.0001,
				OutputPerK:    0.0004,
			},
			"gemini-2.5-flash": {
				Name:          "gemini-2.5-flash",
				ContextTokens: 1048576,
				InputPerK:     0.0003,
				OutputPerK:    0.0025,
			},
			"gemini-2.5-pro": {
				Name:          "gemini-2.5-pro",
				ContextTokens: 1048576,
				InputPerK:     0.00125,
				OutputPerK:    0.01,
			},
		}, true
	case ProviderOllama, ProviderLocal:
		// Local tags carry no cost; context sizes are Ollama's defaults.
		return map[string]ModelInfo{
			"llama3.1:8b": {
				Name:          "llama3.1:8b",
				ContextTokens: 8192,
			},
			"llama3.2:3b": {
				Name:          "llama3.2:3b",
				ContextTokens: 8192,
			},
			"qwen2.5:7b": {
				Name:          "qwen2.5:7b",
				ContextTokens: 32768,
			},
			"mistral:7b": {
				Name:          "mistral:7b",
				ContextTokens: 8192,
			},
			"phi3:mini-128k": {
				Name:          "phi3:mini-128k",
				ContextTokens: 128000,
			},
		}, true
	}
	return nil, false
}

// DefaultModel returns the model used for a provider when none is configured.
func DefaultModel(provider string) string {
	switch provider {
	case ProviderGemini, ProviderGoogle:
		return "gemini-2.0-flash"
	case ProviderOllama, ProviderLocal:
		return "llama3.1:8b"
	}
	return "openai/gpt-4.1-mini"
}

// LookupModel returns ModelInfo and ok flag.
func LookupModel(name string) (ModelInfo, bool) {
	catalogMu.RLock()
	defer catalogMu.RUnlock()
	mi, ok := models[name]
	return mi, ok
}

// EstimateCostUSD estimates total cost in USD for given tokens using model pricing.
// If the model is unknown, returns 0 and ok=false.
func EstimateCostUSD(model string, promptTokens, completionTokens int) (float64, bool) {
	mi, ok := LookupModel(model)
	if !ok {
		return 0, false
	}
	inCost := (float64(promptTokens) / 1000.0) * mi.InputPerK
	outCost := (float64(completionTokens) / 1000.0) * mi.OutputPerK
	return inCost + outCost, true
}

// LoadCatalogFromJSON loads a JSON object map[string]ModelInfo from a file path.
// Example entry:
// { "openai/gpt-4o-mini": {"Name":"openai/gpt-4o-mini","ContextTokens":128000,"InputPerK":0.00015,"OutputPerK":0.0006} }
func LoadCatalogFromJSON(path string) (map[string]ModelInfo, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return DecodeCatalog(b)
}

// DecodeCatalog parses catalog JSON and fills missing names from keys.
func DecodeCatalog(b []byte) (map[string]ModelInfo, error) {
	var m map[string]ModelInfo
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, fmt.Errorf("decode catalog: %w", err)
	}
	for k, v := range m {
		if v.Name == "" {
			v.Name = k
			m[k] = v
		}
	}
	return m, nil
}

// OverrideCatalog replaces the in-memory catalog entirely.
func OverrideCatalog(m map[string]ModelInfo) {
	if m == nil {
		return
	}
	catalogMu.Lock()
	defer catalogMu.Unlock()
	models = make(map[string]ModelInfo, len(m))
	for k, v := range m {
		models[k] = v
	}
}

// MergeCatalog merges/overrides entries in the in-memory catalog.
func MergeCatalog(m map[string]ModelInfo) {
	catalogMu.Lock()
	defer catalogMu.Unlock()
	for k, v := range m {
		models[k] = v
	}
}

// ResetCatalog restores the built-in catalog.
func ResetCatalog() {
	catalogMu.Lock()
	defer catalogMu.Unlock()
	models = builtinCatalog()
}

// Catalog returns a shallow copy of the current model catalog.
func Catalog() map[string]ModelInfo {
	catalogMu.RLock()
	defer catalogMu.RUnlock()
	out := make(map[string]ModelInfo, len(models))
	for k, v := range models {
		out[k] = v
	}
	return out
}

// CatalogNames returns catalog keys in sorted order.
func CatalogNames() []string {
	cat := Catalog()
	out := make([]string, 0, len(cat))
	for k := range cat {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
