package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/KaramelBytes/chartloom-cli/internal/ai"
	"github.com/KaramelBytes/chartloom-cli/internal/chart"
	"github.com/KaramelBytes/chartloom-cli/internal/dataset"
	"github.com/KaramelBytes/chartloom-cli/internal/recommend"
	"github.com/KaramelBytes/chartloom-cli/internal/render"
)

type stubRuntime struct {
	reply string
	err   error
	got   []ai.GenerateRequest
}

func (s *stubRuntime) Generate(_ context.Context, req ai.GenerateRequest) (*ai.GenerateResponse, error) {
	s.got = append(s.got, req)
	if s.err != nil {
		return nil, s.err
	}
	return &ai.GenerateResponse{
		Choices: []ai.Choice{{Message: ai.Message{Role: "assistant", Content: s.reply}}},
		Usage:   ai.Usage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15},
	}, nil
}

type streamStub struct {
	stubRuntime
	chunks []string
}

func (s *streamStub) GenerateStream(_ context.Context, req ai.GenerateRequest, onDelta func(string)) error {
	s.got = append(s.got, req)
	for _, c := range s.chunks {
		onDelta(c)
	}
	return nil
}

func salesDataset(t *testing.T) *dataset.Dataset {
	t.Helper()
	ds, err := dataset.New(
		[]string{"date", "region", "sales"},
		[][]string{
			{"2024-01-01", "north", "10"},
			{"2024-01-02", "south", "12.5"},
			{"2024-01-03", "north", "9"},
		},
	)
	if err != nil {
		t.Fatalf("dataset: %v", err)
	}
	return ds
}

func newPipeline(t *testing.T, cfg Config) *Pipeline {
	t.Helper()
	if cfg.Model == "" {
		cfg.Model = "test-model"
	}
	p, err := New(cfg)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	return p
}

func TestNewRequiresRuntimeAndModel(t *testing.T) {
	if _, err := New(Config{Model: "m"}); err == nil {
		t.Fatalf("expected error without runtime")
	}
	if _, err := New(Config{Runtime: &stubRuntime{}}); err == nil {
		t.Fatalf("expected error without model")
	}
}

func TestRunMultipleRecommendations(t *testing.T) {
	rt := &stubRuntime{reply: `{"recommendations":[
		{"chart_type":"line","title":"Sales over time","reason":"trend"},
		{"chart_type":"bar","title":"Sales by day","reason":"compare"}
	]}`}
	p := newPipeline(t, Config{Runtime: rt, JSONMode: true, MaxTokens: 256})
	out, err := p.Run(context.Background(), salesDataset(t), Request{X: "date", Y: "sales", Intent: "trend"})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if out.RunID == "" {
		t.Fatalf("expected run id")
	}
	if out.Kind() != recommend.ResultOk || len(out.Items) != 2 {
		t.Fatalf("kind=%v items=%d", out.Kind(), len(out.Items))
	}
	if out.Items[0].Spec.Mark != chart.MarkLine || out.Items[1].Spec.Mark != chart.MarkBar {
		t.Fatalf("marks = %s, %s", out.Items[0].Spec.Mark, out.Items[1].Spec.Mark)
	}
	for i, it := range out.Items {
		if it.Err != nil || len(it.Output) == 0 {
			t.Fatalf("item %d: err=%v output=%d bytes", i, it.Err, len(it.Output))
		}
	}
	if out.Metadata["date"].Type != "datetime" || out.Metadata["sales"].Type != "numeric" {
		t.Fatalf("metadata = %+v", out.Metadata)
	}
	if out.Usage.TotalTokens != 15 || out.Streamed {
		t.Fatalf("usage=%+v streamed=%v", out.Usage, out.Streamed)
	}

	if len(rt.got) != 1 {
		t.Fatalf("expected exactly one model call, got %d", len(rt.got))
	}
	req := rt.got[0]
	if !req.JSONMode || req.MaxTokens != 256 || req.Model != "test-model" {
		t.Fatalf("request options = %+v", req)
	}
	if len(req.Messages) != 2 || req.Messages[0].Role != ai.RoleSystem || req.Messages[1].Role != ai.RoleUser {
		t.Fatalf("messages = %+v", req.Messages)
	}
	var payload map[string]any
	if err := json.Unmarshal([]byte(req.Messages[1].Content), &payload); err != nil {
		t.Fatalf("payload not json: %v", err)
	}
	if payload["intent"] != recommend.IntentTrend || payload["x_column"] != "date" || payload["y_column"] != "sales" {
		t.Fatalf("payload = %v", payload)
	}
}

func TestRunMalformedReplyFallsBack(t *testing.T) {
	rt := &stubRuntime{reply: "Sure! Here are some charts you could use."}
	p := newPipeline(t, Config{Runtime: rt})
	out, err := p.Run(context.Background(), salesDataset(t), Request{X: "region", Y: "sales"})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if out.Kind() != recommend.ResultMalformed {
		t.Fatalf("kind = %v", out.Kind())
	}
	if len(out.Items) != 1 || out.Items[0].Recommendation != recommend.Fallback() {
		t.Fatalf("items = %+v", out.Items)
	}
	if out.Items[0].Spec.Mark != chart.MarkBar || out.Items[0].Err != nil {
		t.Fatalf("fallback item = %+v", out.Items[0])
	}
	if len(rt.got) != 1 {
		t.Fatalf("parse failure must not retry, calls=%d", len(rt.got))
	}
}

func TestRunEmptyReplyFallsBack(t *testing.T) {
	p := newPipeline(t, Config{Runtime: &stubRuntime{reply: "  "}})
	out, err := p.Run(context.Background(), salesDataset(t), Request{X: "region", Y: "sales"})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if out.Kind() != recommend.ResultMalformed || !errors.Is(out.Result.Cause, recommend.ErrEmptyReply) {
		t.Fatalf("result = %+v", out.Result)
	}
	if len(out.Items) != 1 {
		t.Fatalf("items = %d", len(out.Items))
	}
}

func TestRunIsolatesRenderFailures(t *testing.T) {
	rt := &stubRuntime{reply: `{"recommendations":[
		{"chart_type":"histogram","title":"Region histogram","reason":"bad"},
		{"chart_type":"bar","title":"Sales by region","reason":"good"}
	]}`}
	p := newPipeline(t, Config{Runtime: rt})
	out, err := p.Run(context.Background(), salesDataset(t), Request{X: "region", Y: "sales"})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(out.Items) != 2 {
		t.Fatalf("items = %d", len(out.Items))
	}
	if !errors.Is(out.Items[0].Err, render.ErrNotQuantitative) {
		t.Fatalf("histogram over text should fail, got %v", out.Items[0].Err)
	}
	if out.Items[1].Err != nil {
		t.Fatalf("sibling should render, got %v", out.Items[1].Err)
	}
	if out.Failed() != 1 {
		t.Fatalf("failed = %d", out.Failed())
	}
}

func TestRunUnknownColumnIsPerItem(t *testing.T) {
	rt := &stubRuntime{reply: `{"recommendations":[{"chart_type":"scatter","title":"t","reason":"r"}]}`}
	p := newPipeline(t, Config{Runtime: rt})
	out, err := p.Run(context.Background(), salesDataset(t), Request{X: "missing", Y: "sales"})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(out.Items) != 1 || !errors.Is(out.Items[0].Err, render.ErrUnknownColumn) {
		t.Fatalf("items = %+v", out.Items)
	}
}

func TestRunTransportErrorIsReturned(t *testing.T) {
	boom := &ai.ServerError{APIError: &ai.APIError{StatusCode: 502}}
	p := newPipeline(t, Config{Runtime: &stubRuntime{err: boom}})
	_, err := p.Run(context.Background(), salesDataset(t), Request{X: "date", Y: "sales"})
	var se *ai.ServerError
	if !errors.As(err, &se) {
		t.Fatalf("expected ServerError, got %v", err)
	}
}

func TestRunInferredModeOmitsIntent(t *testing.T) {
	rt := &stubRuntime{reply: `{"recommendations":[{"chart_type":"line","title":"t","reason":"r","intent":"Show trend over time","strengths":["a","b"]}]}`}
	p := newPipeline(t, Config{Runtime: rt, IntentMode: recommend.IntentInferred})
	out, err := p.Run(context.Background(), salesDataset(t), Request{X: "date", Y: "sales", Intent: "ignored"})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if strings.Contains(rt.got[0].Messages[1].Content, `"intent"`) {
		t.Fatalf("inferred mode must not send an intent: %s", rt.got[0].Messages[1].Content)
	}
	if !strings.Contains(rt.got[0].Messages[0].Content, "when_to_use") {
		t.Fatalf("system prompt should carry the extended schema")
	}
	if got := out.Items[0].Recommendation.Strengths; got != "a; b" {
		t.Fatalf("strengths = %q", got)
	}
}

func TestRunStreaming(t *testing.T) {
	rt := &streamStub{chunks: []string{`{"recommendations":[`, `{"chart_type":"area","title":"A","reason":"r"}`, `]}`}}
	var seen []string
	p := newPipeline(t, Config{Runtime: rt, OnDelta: func(s string) { seen = append(seen, s) }})
	out, err := p.Run(context.Background(), salesDataset(t), Request{X: "date", Y: "sales"})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if !out.Streamed || len(seen) != 3 {
		t.Fatalf("streamed=%v deltas=%d", out.Streamed, len(seen))
	}
	if len(out.Items) != 1 || out.Items[0].Spec.Mark != chart.MarkArea {
		t.Fatalf("items = %+v", out.Items)
	}
}

func TestRunStreamFallsBackWhenUnsupported(t *testing.T) {
	rt := &stubRuntime{reply: `{"recommendations":[]}`}
	called := false
	p := newPipeline(t, Config{Runtime: rt, OnDelta: func(string) { called = true }})
	out, err := p.Run(context.Background(), salesDataset(t), Request{X: "date", Y: "sales"})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if out.Streamed || called || len(out.Items) != 0 {
		t.Fatalf("streamed=%v called=%v items=%d", out.Streamed, called, len(out.Items))
	}
}

func TestSectionsCarryDocsAndErrors(t *testing.T) {
	rt := &stubRuntime{reply: `{"recommendations":[
		{"chart_type":"boxplot","title":"Spread","reason":"r"},
		{"chart_type":"histogram","title":"Bad","reason":"r"}
	]}`}
	p := newPipeline(t, Config{Runtime: rt, Renderer: render.NewPNG(4, 3)})
	out, err := p.Run(context.Background(), salesDataset(t), Request{X: "region", Y: "sales"})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	secs := Sections(out.Items)
	if len(secs) != 2 {
		t.Fatalf("sections = %d", len(secs))
	}
	if secs[0].Doc == nil || secs[0].Err != nil {
		t.Fatalf("first section = %+v", secs[0])
	}
	if secs[1].Err == nil || secs[1].Doc != nil {
		t.Fatalf("second section = %+v", secs[1])
	}
}

func TestPrepareBuildsRequest(t *testing.T) {
	p := newPipeline(t, Config{Runtime: &stubRuntime{}, Temperature: 0.3})
	prep, err := p.Prepare(salesDataset(t), Request{X: "date", Y: "sales", Intent: "compare"})
	if err != nil {
		t.Fatalf("prepare: %v", err)
	}
	if prep.Request.Temperature != 0.3 {
		t.Fatalf("temperature = %v", prep.Request.Temperature)
	}
	if !strings.Contains(prep.Request.Messages[1].Content, recommend.IntentCompare) {
		t.Fatalf("alias not resolved: %s", prep.Request.Messages[1].Content)
	}
	if _, err := p.Prepare(nil, Request{}); err == nil {
		t.Fatalf("expected error for nil dataset")
	}
}
