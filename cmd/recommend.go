package cmd

import (
	"context"
	"crypto/sha1"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"k8s.io/klog/v2"

	"github.com/KaramelBytes/chartloom-cli/internal/ai"
	"github.com/KaramelBytes/chartloom-cli/internal/pipeline"
	"github.com/KaramelBytes/chartloom-cli/internal/recommend"
	"github.com/KaramelBytes/chartloom-cli/internal/render"
	"github.com/KaramelBytes/chartloom-cli/internal/utils"
)

var (
	recData        datasetFlags
	recX           string
	recY           string
	recIntent      string
	recAutoIntent  bool
	recLenient     bool
	recNoJSONMode  bool
	recStream      bool
	recProvider    string
	recModel       string
	recMaxTokens   int
	recTemp        float64
	recFormat      string
	recOutDir      string
	recHTML        string
	recBudgetLimit float64
	recDryRun      bool
	recJSON        bool
	recQuiet       bool
	recOllamaHost  string
	recTimeoutSec  int
)

var recommendCmd = &cobra.Command{
	Use:   "recommend <file>",
	Short: "Ask a model which charts fit an X/Y pair, then render every recommendation",
	Example: `  chartloom recommend sales.csv -x date -y revenue --intent trend
  chartloom recommend sales.csv -x region -y revenue --auto-intent --html report.html
  chartloom recommend sales.csv -x date -y revenue --intent compare --provider ollama --model llama3.1:8b
  chartloom recommend sales.csv -x date -y revenue --intent trend --dry-run`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if recJSON {
			recQuiet = true
		}
		stdout := cmd.OutOrStdout()
		say := func(format string, a ...any) {
			if !recQuiet {
				fmt.Fprintf(stdout, format, a...)
			}
		}
		if recX == "" || recY == "" {
			return fmt.Errorf("-x and -y are required")
		}

		mode, err := intentMode()
		if err != nil {
			return err
		}
		if mode == recommend.IntentUser && strings.TrimSpace(recIntent) == "" {
			return fmt.Errorf("--intent is required (%s, or free text), or pass --auto-intent", strings.Join(intentAliasNames(), "|"))
		}

		path := args[0]
		ds, err := recData.load(path, cmd.ErrOrStderr())
		if err != nil {
			return err
		}
		renderer, err := newRenderer(recFormat)
		if err != nil {
			return err
		}

		providerName := resolveProvider(cfg, recProvider)
		model := selectModel(cfg, recModel, providerName)
		maxTokens, temp := generationParams()

		var runtime ai.Runtime
		if !recDryRun {
			runtime, providerName, err = buildRuntime(cfg, runtimeOptions{ProviderFlag: recProvider, OllamaHost: recOllamaHost})
			if err != nil {
				return err
			}
		}

		var onDelta func(string)
		if recStream && !recQuiet {
			onDelta = func(s string) { fmt.Fprint(stdout, s) }
		}
		p, err := pipeline.New(pipeline.Config{
			Runtime:     runtimeOrPlaceholder(runtime),
			Model:       model,
			MaxTokens:   maxTokens,
			Temperature: temp,
			JSONMode:    jsonMode(),
			IntentMode:  mode,
			Parse:       recommend.ParseOptions{Lenient: lenient()},
			Renderer:    renderer,
			OnDelta:     onDelta,
		})
		if err != nil {
			return err
		}

		prep, err := p.Prepare(ds, pipeline.Request{X: recX, Y: recY, Intent: recIntent})
		if err != nil {
			return err
		}
		system, payload := prep.Request.Messages[0].Content, prep.Request.Messages[1].Content
		breakdown := utils.TokenBreakdown(map[string]string{"system": system, "payload": payload})
		promptTokens := breakdown["system"] + breakdown["payload"]
		say("Provider: %s  Model: %s  Intent mode: %s\n", providerName, model, mode)
		say("Tokens: total≈%d (%s), max-tokens %d\n", promptTokens, utils.FormatBreakdown(breakdown), maxTokens)
		if warn := contextWarning(model, promptTokens, maxTokens); warn != "" {
			say("%s\n", warn)
		}
		var estCost float64
		if cost, ok := ai.EstimateCostUSD(model, promptTokens, maxTokens); ok && cost > 0 {
			estCost = cost
			say("Estimated max cost: ~$%.4f\n", cost)
		}
		if err := enforceBudget(estCost, recBudgetLimit); err != nil {
			return err
		}

		if recDryRun {
			sum := sha1.Sum([]byte(system + payload))
			fmt.Fprintln(stdout, "\n--dry-run: no API call will be made. Request preview below --")
			fmt.Fprintf(stdout, "Request ID (dry-run): sim_%x\n", sum[:6])
			fmt.Fprintln(stdout, "[SYSTEM]")
			fmt.Fprintln(stdout, system)
			fmt.Fprintln(stdout, "[USER]")
			fmt.Fprintln(stdout, payload)
			return nil
		}

		timeoutSec := recTimeoutSec
		if timeoutSec <= 0 {
			timeoutSec = 180
		}
		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		ctx, cancel := context.WithTimeout(ctx, time.Duration(timeoutSec)*time.Second)
		defer cancel()

		if onDelta != nil {
			say("(streaming)\n")
		}
		out, err := p.Run(ctx, ds, pipeline.Request{X: recX, Y: recY, Intent: recIntent})
		if onDelta != nil && !recQuiet {
			fmt.Fprintln(stdout)
		}
		if err != nil {
			return err
		}
		klog.FromContext(ctx).V(2).Info("recommendation run finished", "run", out.RunID, "result", out.Kind(), "items", len(out.Items), "failed", out.Failed())

		if !out.Result.Ok() {
			say("⚠ %s\n", recommend.Fallback().Reason)
			if debug {
				say("  raw reply: %s\n", utils.TruncateToTokenLimit(out.Result.Raw, 200))
			}
		} else if out.Result.Skipped > 0 {
			say("⚠ Skipped %d malformed recommendation entries\n", out.Result.Skipped)
		}
		if out.Result.Ok() && len(out.Items) == 0 {
			say("⚠ The model returned no recommendations\n")
		}

		dir := outputDir(recOutDir)
		paths, err := writeItems(dir, renderer.Ext(), out.Items)
		if err != nil {
			return err
		}
		if !recQuiet {
			printItems(stdout, out.Items, paths)
		}

		var report string
		if recHTML != "" {
			if err := writeReport(recHTML, path, out); err != nil {
				return err
			}
			report = recHTML
			say("💾 Saved HTML report to %s\n", recHTML)
		}

		if recJSON {
			s := summarize(out, providerName, model, paths)
			s.Report = report
			b, err := utils.PrettyJSON(s)
			if err != nil {
				return err
			}
			fmt.Fprintln(stdout, string(b))
		}
		return nil
	},
}

func printItems(w io.Writer, items []pipeline.Item, paths []string) {
	for i, it := range items {
		r := it.Recommendation
		if it.Err != nil {
			fmt.Fprintf(w, "✗ %d. %s (%s): Could not render %s chart: %v\n", i+1, r.Title, r.ChartType, r.ChartType, it.Err)
			continue
		}
		fmt.Fprintf(w, "✓ %d. %s (%s) -> %s\n", i+1, r.Title, r.ChartType, paths[i])
		if r.Reason != "" {
			fmt.Fprintf(w, "   Why this chart? %s\n", r.Reason)
		}
		if r.Intent != "" {
			fmt.Fprintf(w, "   Intent: %s\n", r.Intent)
		}
	}
}

func writeReport(dest, source string, out *pipeline.Outcome) error {
	var pre strings.Builder
	fmt.Fprintf(&pre, "Dataset: `%s`  \nX: `%s`  Y: `%s`", filepath.Base(source), recX, recY)
	if !recAutoIntent && recIntent != "" {
		fmt.Fprintf(&pre, "  \nIntent: %s", recommend.ResolveIntent(recIntent))
	}
	if !out.Result.Ok() {
		fmt.Fprintf(&pre, "\n\n> %s", recommend.Fallback().Reason)
	}
	page, err := render.HTMLReport{
		Title:    "Chart recommendations for " + filepath.Base(source),
		Preamble: pre.String(),
	}.Render(pipeline.Sections(out.Items))
	if err != nil {
		return fmt.Errorf("render report: %w", err)
	}
	if err := utils.SafeWriteFile(dest, page); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	return nil
}

func intentMode() (recommend.IntentMode, error) {
	if recAutoIntent {
		return recommend.IntentInferred, nil
	}
	if cfg != nil && cfg.IntentMode != "" && recIntent == "" {
		return recommend.ParseIntentMode(cfg.IntentMode)
	}
	return recommend.IntentUser, nil
}

func intentAliasNames() []string {
	return []string{"trend", "compare", "distribution", "correlation"}
}

func generationParams() (int, float64) {
	maxTokens := recMaxTokens
	if maxTokens <= 0 && cfg != nil && cfg.MaxTokens > 0 {
		maxTokens = cfg.MaxTokens
	}
	if maxTokens <= 0 {
		maxTokens = 1024
	}
	temp := recTemp
	if temp <= 0 && cfg != nil && cfg.Temperature > 0 {
		temp = cfg.Temperature
	}
	return maxTokens, temp
}

func jsonMode() bool {
	if recNoJSONMode {
		return false
	}
	if cfg != nil {
		return cfg.JSONMode
	}
	return true
}

func lenient() bool {
	return recLenient || (cfg != nil && cfg.LenientJSON)
}

// dryRunRuntime stands in during --dry-run, where no request is sent.
type dryRunRuntime struct{}

func (dryRunRuntime) Generate(context.Context, ai.GenerateRequest) (*ai.GenerateResponse, error) {
	return nil, fmt.Errorf("dry-run: no request sent")
}

func runtimeOrPlaceholder(r ai.Runtime) ai.Runtime {
	if r == nil {
		return dryRunRuntime{}
	}
	return r
}

func init() {
	rootCmd.AddCommand(recommendCmd)
	f := recommendCmd.Flags()
	recData.register(f)
	f.StringVarP(&recX, "x", "x", "", "X column")
	f.StringVarP(&recY, "y", "y", "", "Y column")
	f.StringVarP(&recIntent, "intent", "i", "", "analysis intent: trend|compare|distribution|correlation or free text")
	f.BoolVar(&recAutoIntent, "auto-intent", false, "let the model infer likely intents from the metadata")
	f.BoolVar(&recLenient, "lenient", false, "accept fenced, Hjson, or repairable JSON replies")
	f.BoolVar(&recNoJSONMode, "no-json-mode", false, "do not ask the provider for a JSON-constrained reply")
	f.BoolVar(&recStream, "stream", false, "stream the model reply to stdout while it arrives")
	f.StringVar(&recProvider, "provider", "", "provider: openrouter|gemini|ollama (aliases: google, local)")
	f.StringVar(&recModel, "model", "", "model name (default: provider default or default_model)")
	f.IntVar(&recMaxTokens, "max-tokens", 0, "max tokens for the reply (default: config max_tokens)")
	f.Float64Var(&recTemp, "temperature", 0, "sampling temperature (default: config temperature)")
	f.StringVarP(&recFormat, "format", "f", "vega-lite", "chart output format: vega-lite|png")
	f.StringVar(&recOutDir, "out", "", "directory for rendered charts (default: config output_dir)")
	f.StringVar(&recHTML, "html", "", "also write a single HTML report to this path")
	f.Float64Var(&recBudgetLimit, "budget-limit", 0, "abort if the estimated max cost (USD) exceeds this")
	f.BoolVar(&recDryRun, "dry-run", false, "print the request without calling the model")
	f.BoolVar(&recJSON, "json", false, "print a JSON summary of the run (implies --quiet)")
	f.BoolVarP(&recQuiet, "quiet", "q", false, "only print essential output")
	f.StringVar(&recOllamaHost, "ollama-host", "", "Ollama host (default: config ollama_host)")
	f.IntVar(&recTimeoutSec, "timeout-sec", 180, "overall request timeout in seconds")
}
