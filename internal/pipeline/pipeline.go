// Package pipeline runs one chart recommendation: type inference, the model
// call, reply parsing, and per-item mapping and rendering.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"k8s.io/klog/v2"

	"github.com/KaramelBytes/chartloom-cli/internal/ai"
	"github.com/KaramelBytes/chartloom-cli/internal/analysis"
	"github.com/KaramelBytes/chartloom-cli/internal/chart"
	"github.com/KaramelBytes/chartloom-cli/internal/dataset"
	"github.com/KaramelBytes/chartloom-cli/internal/recommend"
	"github.com/KaramelBytes/chartloom-cli/internal/render"
)

// Config wires a Pipeline. Runtime and Model are required.
type Config struct {
	Runtime     ai.Runtime
	Model       string
	MaxTokens   int
	Temperature float64
	JSONMode    bool
	IntentMode  recommend.IntentMode
	Parse       recommend.ParseOptions
	// Renderer defaults to Vega-Lite.
	Renderer render.Renderer
	Infer    analysis.Options
	// OnDelta, when set and the runtime can stream, receives reply chunks.
	OnDelta func(string)
}

// Pipeline is safe for sequential reuse across datasets.
type Pipeline struct {
	cfg Config
}

// Request selects the columns and, in user mode, the analysis intent.
type Request struct {
	X      string
	Y      string
	Intent string
}

// Item is one recommendation carried through mapping and rendering. Err is
// set when this item alone failed to render.
type Item struct {
	Recommendation recommend.Recommendation
	Spec           *chart.Spec
	Output         []byte
	Err            error
}

// Outcome is the result of one Run.
type Outcome struct {
	RunID    string
	Metadata analysis.Metadata
	Result   recommend.Result
	Items    []Item
	Usage    ai.Usage
	Streamed bool
}

// Kind is the parse result kind of the model reply.
func (o *Outcome) Kind() recommend.ResultKind { return o.Result.Kind }

// Failed counts items whose rendering failed.
func (o *Outcome) Failed() int {
	n := 0
	for _, it := range o.Items {
		if it.Err != nil {
			n++
		}
	}
	return n
}

// New validates cfg and returns a Pipeline.
func New(cfg Config) (*Pipeline, error) {
	if cfg.Runtime == nil {
		return nil, errors.New("pipeline: runtime is required")
	}
	if strings.TrimSpace(cfg.Model) == "" {
		return nil, errors.New("pipeline: model is required")
	}
	if cfg.Renderer == nil {
		cfg.Renderer = render.VegaLite{}
	}
	if cfg.IntentMode == "" {
		cfg.IntentMode = recommend.IntentUser
	}
	if len(cfg.Infer.DateLayouts) == 0 {
		cfg.Infer = analysis.DefaultOptions()
	}
	return &Pipeline{cfg: cfg}, nil
}

// Prepared is the inferred metadata and the messages that would be sent.
type Prepared struct {
	Metadata analysis.Metadata
	Dataset  *dataset.Dataset
	Request  ai.GenerateRequest
}

// Prepare infers column types and builds the model request without calling
// the runtime.
func (p *Pipeline) Prepare(ds *dataset.Dataset, req Request) (*Prepared, error) {
	if ds == nil {
		return nil, errors.New("pipeline: dataset is nil")
	}
	meta, ds := analysis.Infer(ds, p.cfg.Infer)
	intent := ""
	if p.cfg.IntentMode == recommend.IntentUser {
		intent = recommend.ResolveIntent(req.Intent)
	}
	payload, err := recommend.UserPayload(meta, ds.Names(), req.X, req.Y, intent)
	if err != nil {
		return nil, err
	}
	return &Prepared{
		Metadata: meta,
		Dataset:  ds,
		Request: ai.GenerateRequest{
			Model: p.cfg.Model,
			Messages: []ai.Message{
				{Role: ai.RoleSystem, Content: recommend.SystemPrompt(p.cfg.IntentMode)},
				{Role: ai.RoleUser, Content: payload},
			},
			MaxTokens:   p.cfg.MaxTokens,
			Temperature: p.cfg.Temperature,
			JSONMode:    p.cfg.JSONMode,
		},
	}, nil
}

// Run executes the full recommendation flow. Only dataset and transport
// errors are returned; malformed replies degrade to the fallback item and
// rendering failures are reported per item.
func (p *Pipeline) Run(ctx context.Context, ds *dataset.Dataset, req Request) (*Outcome, error) {
	out := &Outcome{RunID: uuid.NewString()}
	log := klog.FromContext(ctx).WithValues("run", out.RunID)
	ctx = klog.NewContext(ctx, log)

	prep, err := p.Prepare(ds, req)
	if err != nil {
		return nil, err
	}
	out.Metadata = prep.Metadata
	log.V(2).Info("inferred metadata", "columns", len(prep.Metadata), "x", req.X, "y", req.Y)

	reply, streamed, usage, err := p.generate(ctx, prep.Request)
	if err != nil {
		return nil, fmt.Errorf("generate recommendations: %w", err)
	}
	out.Streamed = streamed
	out.Usage = usage

	out.Result = recommend.Parse(reply, p.cfg.Parse)
	if !out.Result.Ok() {
		log.V(1).Info("model reply was not valid JSON, using fallback", "cause", out.Result.Cause)
	} else if out.Result.Skipped > 0 {
		log.V(1).Info("skipped malformed recommendation entries", "skipped", out.Result.Skipped)
	}

	for _, rec := range out.Result.Recommendations() {
		out.Items = append(out.Items, p.renderItem(ctx, prep.Dataset, req, rec))
	}
	return out, nil
}

func (p *Pipeline) generate(ctx context.Context, req ai.GenerateRequest) (string, bool, ai.Usage, error) {
	if p.cfg.OnDelta != nil {
		if sr, ok := p.cfg.Runtime.(ai.StreamRuntime); ok {
			var b strings.Builder
			err := sr.GenerateStream(ctx, req, func(delta string) {
				b.WriteString(delta)
				p.cfg.OnDelta(delta)
			})
			if err != nil {
				return "", true, ai.Usage{}, err
			}
			return b.String(), true, ai.Usage{}, nil
		}
		klog.FromContext(ctx).V(1).Info("runtime cannot stream, falling back to a single request")
	}
	resp, err := p.cfg.Runtime.Generate(ctx, req)
	if err != nil {
		return "", false, ai.Usage{}, err
	}
	return resp.Text(), false, resp.Usage, nil
}

func (p *Pipeline) renderItem(ctx context.Context, ds *dataset.Dataset, req Request, rec recommend.Recommendation) Item {
	it := Item{Recommendation: rec}
	it.Spec = chart.MakeChart(ds, req.X, req.Y, rec.ChartType, rec.Title)
	it.Output, it.Err = p.cfg.Renderer.Render(it.Spec)
	if it.Err != nil {
		klog.FromContext(ctx).V(1).Info("render failed", "chartType", rec.ChartType, "title", rec.Title, "err", it.Err)
	}
	return it
}

// Sections converts items for the HTML report. Each chart is rebuilt as a
// Vega-Lite document regardless of the pipeline's renderer.
func Sections(items []Item) []render.Section {
	vl := render.VegaLite{}
	out := make([]render.Section, 0, len(items))
	for _, it := range items {
		r := it.Recommendation
		s := render.Section{
			ChartType:  r.ChartType,
			Title:      r.Title,
			Reason:     r.Reason,
			Intent:     r.Intent,
			Strengths:  string(r.Strengths),
			Weaknesses: string(r.Weaknesses),
			WhenToUse:  string(r.WhenToUse),
			Err:        it.Err,
		}
		if s.Err == nil && it.Spec != nil {
			s.Doc, s.Err = vl.Document(it.Spec)
		}
		out = append(out, s)
	}
	return out
}
