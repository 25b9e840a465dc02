package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/KaramelBytes/chartloom-cli/internal/ai"
	cfgpkg "github.com/KaramelBytes/chartloom-cli/internal/config"
	"github.com/KaramelBytes/chartloom-cli/internal/pipeline"
	"github.com/KaramelBytes/chartloom-cli/internal/utils"
)

type runtimeOptions struct {
	ProviderFlag string
	OllamaHost   string
}

// resolveProvider picks --provider, then default_provider, then openrouter.
func resolveProvider(cfg *cfgpkg.Global, flag string) string {
	p := strings.TrimSpace(flag)
	if p == "" && cfg != nil {
		p = cfg.DefaultProvider
	}
	return ai.NormalizeProvider(p)
}

func buildRuntime(cfg *cfgpkg.Global, opts runtimeOptions) (ai.Runtime, string, error) {
	rc := ai.RuntimeConfig{
		HTTPTimeout: 60 * time.Second,
		RetryMax:    3,
		BaseDelay:   500 * time.Millisecond,
		MaxDelay:    4 * time.Second,
	}
	if cfg != nil {
		if cfg.HTTPTimeoutSec > 0 {
			rc.HTTPTimeout = time.Duration(cfg.HTTPTimeoutSec) * time.Second
		}
		if cfg.RetryMaxAttempts > 0 {
			rc.RetryMax = cfg.RetryMaxAttempts
		}
		if cfg.RetryBaseDelayMs > 0 {
			rc.BaseDelay = time.Duration(cfg.RetryBaseDelayMs) * time.Millisecond
		}
		if cfg.RetryMaxDelayMs > 0 {
			rc.MaxDelay = time.Duration(cfg.RetryMaxDelayMs) * time.Millisecond
		}
		rc.BaseURL = cfg.BaseURL
	}

	providerName := resolveProvider(cfg, opts.ProviderFlag)
	switch providerName {
	case ai.ProviderOpenRouter:
		rc.APIKey = os.Getenv("OPENROUTER_API_KEY")
		if cfg != nil && cfg.APIKey != "" {
			rc.APIKey = cfg.APIKey
		}
	case ai.ProviderGemini:
		rc.APIKey = os.Getenv("GEMINI_API_KEY")
		if cfg != nil && cfg.GeminiAPIKey != "" {
			rc.APIKey = cfg.GeminiAPIKey
		}
	case ai.ProviderOllama:
		host := strings.TrimSpace(opts.OllamaHost)
		if host == "" && cfg != nil {
			host = cfg.OllamaHost
		}
		if host == "" {
			host = ai.DefaultOllamaHost
		}
		rc.Host = host
		if cfg != nil && cfg.OllamaTimeoutSec > 0 {
			rc.HTTPTimeout = time.Duration(cfg.OllamaTimeoutSec) * time.Second
		}
	}

	client, ok := ai.GetRuntime(providerName, rc)
	if !ok {
		return nil, providerName, fmt.Errorf("provider not supported: %s (use %s)", providerName, strings.Join(ai.Providers(), "|"))
	}
	return client, providerName, nil
}

// selectModel prefers --model, then default_model when it belongs to the
// configured provider, then the provider's built-in default.
func selectModel(cfg *cfgpkg.Global, explicit, provider string) string {
	if explicit != "" {
		return explicit
	}
	if cfg != nil && cfg.DefaultModel != "" && ai.NormalizeProvider(cfg.DefaultProvider) == provider {
		return cfg.DefaultModel
	}
	return ai.DefaultModel(provider)
}

func enforceBudget(estCost, limit float64) error {
	if limit > 0 && estCost > 0 && estCost > limit {
		return fmt.Errorf("estimated cost ~$%.4f exceeds budget limit ~$%.4f", estCost, limit)
	}
	return nil
}

// contextWarning reports when prompt plus completion budget exceeds the
// model's known context window.
func contextWarning(model string, promptTokens, maxTokens int) string {
	mi, ok := ai.LookupModel(model)
	if !ok || mi.ContextTokens <= 0 || promptTokens+maxTokens <= mi.ContextTokens {
		return ""
	}
	return fmt.Sprintf("⚠ Prompt (%d tokens) + max-tokens (%d) exceeds %s context window (~%d tokens).",
		promptTokens, maxTokens, mi.Name, mi.ContextTokens)
}

// errorHint maps typed runtime errors to a one-line suggestion.
func errorHint(err error) string {
	var (
		authErr  *ai.AuthError
		rateErr  *ai.RateLimitError
		modelErr *ai.ModelNotFoundError
		quotaErr *ai.QuotaExceededError
		unreach  *ai.UnreachableError
		srvErr   *ai.ServerError
		badReq   *ai.BadRequestError
	)
	switch {
	case errors.As(err, &authErr):
		return "Check OPENROUTER_API_KEY / GEMINI_API_KEY, or run: chartloom config set api_key <key>"
	case errors.As(err, &rateErr):
		if rateErr.RetryAfter > 0 {
			return fmt.Sprintf("Rate limited by the provider; retry in about %ds.", int(rateErr.RetryAfter.Seconds()))
		}
		return "Rate limited by the provider; retry shortly or raise --retry-max."
	case errors.As(err, &modelErr):
		return "Unknown model. See 'chartloom models show', or for Ollama run: ollama pull <model>"
	case errors.As(err, &quotaErr):
		return "Provider quota or billing limit reached; check your account."
	case errors.As(err, &unreach):
		return "Runtime unreachable. Is Ollama running (ollama serve)? Set --ollama-host or ollama_host."
	case errors.As(err, &srvErr):
		return "The provider returned a server error; try again later."
	case errors.As(err, &badReq):
		return "The provider rejected the request; try a different --model or lower --max-tokens."
	case errors.Is(err, context.DeadlineExceeded):
		return "Request timed out; raise --timeout-sec or --http-timeout."
	}
	return ""
}

// writeItems saves every rendered item under dir and returns the paths in
// item order. Failed items get an empty path.
func writeItems(dir, ext string, items []pipeline.Item) ([]string, error) {
	if err := utils.EnsureDir(dir); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}
	paths := make([]string, len(items))
	for i, it := range items {
		if it.Err != nil || len(it.Output) == 0 {
			continue
		}
		p := filepath.Join(dir, utils.ChartFileName(i+1, it.Recommendation.Title, ext))
		if err := utils.SafeWriteFile(p, it.Output); err != nil {
			return paths, fmt.Errorf("write %s: %w", p, err)
		}
		paths[i] = p
	}
	return paths, nil
}

// recommendSummary is the --json view of a run.
type recommendSummary struct {
	RunID    string              `json:"run_id"`
	Provider string              `json:"provider"`
	Model    string              `json:"model"`
	Result   string              `json:"result"`
	Skipped  int                 `json:"skipped,omitempty"`
	Usage    ai.Usage            `json:"usage"`
	Items    []recommendItemJSON `json:"items"`
	Report   string              `json:"report,omitempty"`
}

type recommendItemJSON struct {
	ChartType  string `json:"chart_type"`
	Title      string `json:"title"`
	Reason     string `json:"reason"`
	Intent     string `json:"intent,omitempty"`
	Strengths  string `json:"strengths,omitempty"`
	Weaknesses string `json:"weaknesses,omitempty"`
	WhenToUse  string `json:"when_to_use,omitempty"`
	Mark       string `json:"mark"`
	File       string `json:"file,omitempty"`
	Error      string `json:"error,omitempty"`
}

func summarize(out *pipeline.Outcome, provider, model string, paths []string) recommendSummary {
	s := recommendSummary{
		RunID:    out.RunID,
		Provider: provider,
		Model:    model,
		Result:   out.Kind().String(),
		Skipped:  out.Result.Skipped,
		Usage:    out.Usage,
		Items:    make([]recommendItemJSON, 0, len(out.Items)),
	}
	for i, it := range out.Items {
		r := it.Recommendation
		j := recommendItemJSON{
			ChartType:  r.ChartType,
			Title:      r.Title,
			Reason:     r.Reason,
			Intent:     r.Intent,
			Strengths:  string(r.Strengths),
			Weaknesses: string(r.Weaknesses),
			WhenToUse:  string(r.WhenToUse),
		}
		if it.Spec != nil {
			j.Mark = string(it.Spec.Mark)
		}
		if i < len(paths) {
			j.File = paths[i]
		}
		if it.Err != nil {
			j.Error = it.Err.Error()
		}
		s.Items = append(s.Items, j)
	}
	return s
}
