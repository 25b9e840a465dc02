package recommend

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"unicode"

	jsonrepair "github.com/RealAlexandreAI/json-repair"
	hjson "github.com/hjson/hjson-go/v4"
)

// Recommendation is one suggested chart. The extended fields are only filled
// when the model was asked to infer intents.
type Recommendation struct {
	ChartType  string `json:"chart_type"`
	Title      string `json:"title"`
	Reason     string `json:"reason"`
	Intent     string `json:"intent,omitempty"`
	Strengths  Text   `json:"strengths,omitempty"`
	Weaknesses Text   `json:"weaknesses,omitempty"`
	WhenToUse  Text   `json:"when_to_use,omitempty"`
}

// Text accepts any JSON value. Strings are kept, other scalars keep their
// literal form, and arrays are joined with "; ".
type Text string

func (t *Text) UnmarshalJSON(b []byte) error {
	s, _ := textOf(b)
	*t = Text(s)
	return nil
}

// textOf flattens a JSON value to display text. ok is false for null and
// empty input, which callers treat like a missing key.
func textOf(b json.RawMessage) (string, bool) {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		return "", false
	}
	switch b[0] {
	case '"':
		var s string
		if err := json.Unmarshal(b, &s); err == nil {
			return s, true
		}
	case '[':
		var parts []json.RawMessage
		if err := json.Unmarshal(b, &parts); err == nil {
			out := make([]string, 0, len(parts))
			for _, p := range parts {
				if s, ok := textOf(p); ok {
					out = append(out, s)
				}
			}
			return strings.Join(out, "; "), true
		}
	case '{':
		var buf bytes.Buffer
		if err := json.Compact(&buf, b); err == nil {
			return buf.String(), true
		}
	}
	return string(b), true
}

// Fallback is the recommendation used when a reply cannot be parsed.
func Fallback() Recommendation {
	return Recommendation{
		ChartType: "bar",
		Title:     "Bar chart (fallback)",
		Reason:    "Model response could not be parsed as JSON. Showing a fallback bar chart.",
	}
}

// ResultKind tags a parse Result.
type ResultKind int

const (
	ResultOk ResultKind = iota
	ResultMalformed
)

func (k ResultKind) String() string {
	if k == ResultMalformed {
		return "malformed"
	}
	return "ok"
}

// Result is the outcome of parsing a model reply. Ok results carry the
// decoded items; Malformed results carry the raw text and the cause.
type Result struct {
	Kind  ResultKind
	Items []Recommendation
	// Skipped counts array entries that were not objects.
	Skipped int
	// Lenient is set when the reply only parsed after lenient recovery.
	Lenient bool

	Raw   string
	Cause error
}

// Ok reports whether the reply parsed.
func (r Result) Ok() bool { return r.Kind == ResultOk }

// Recommendations applies the degraded-result policy: Malformed results yield
// the single fallback recommendation.
func (r Result) Recommendations() []Recommendation {
	if r.Kind == ResultMalformed {
		return []Recommendation{Fallback()}
	}
	return r.Items
}

// ErrEmptyReply marks a reply with no text.
var ErrEmptyReply = errors.New("model returned an empty reply")

// ParseOptions controls reply parsing.
type ParseOptions struct {
	// Lenient enables code-fence stripping, Hjson, and JSON repair after a
	// strict parse fails.
	Lenient bool
}

type envelope struct {
	Recommendations json.RawMessage `json:"recommendations"`
}

// Parse decodes a model reply. It never returns an error; failures are a
// Malformed result.
func Parse(raw string, opt ParseOptions) Result {
	if strings.TrimSpace(raw) == "" {
		return Result{Kind: ResultMalformed, Raw: raw, Cause: ErrEmptyReply}
	}
	res, err := decodeStrict([]byte(raw), false)
	if err == nil {
		return res
	}
	if opt.Lenient {
		if res, lerr := decodeLenient(raw); lerr == nil {
			res.Lenient = true
			return res
		}
	}
	return Result{Kind: ResultMalformed, Raw: raw, Cause: err}
}

// decodeStrict parses b as a JSON object. With requireList set, the object
// must hold a recommendations array.
func decodeStrict(b []byte, requireList bool) (Result, error) {
	trimmed := bytes.TrimSpace(b)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		if json.Valid(trimmed) {
			return Result{}, errors.New("reply is JSON but not an object")
		}
	}
	var env envelope
	if err := json.Unmarshal(trimmed, &env); err != nil {
		return Result{}, fmt.Errorf("decode reply: %w", err)
	}
	list := bytes.TrimSpace(env.Recommendations)
	if len(list) == 0 || bytes.Equal(list, []byte("null")) {
		if requireList {
			return Result{}, errors.New("reply has no recommendations array")
		}
		return Result{Kind: ResultOk, Items: []Recommendation{}}, nil
	}
	var items []json.RawMessage
	if err := json.Unmarshal(list, &items); err != nil {
		return Result{}, fmt.Errorf("recommendations is not an array: %w", err)
	}
	res := Result{Kind: ResultOk, Items: make([]Recommendation, 0, len(items))}
	for _, it := range items {
		rec, ok := decodeItem(it)
		if !ok {
			res.Skipped++
			continue
		}
		res.Items = append(res.Items, rec)
	}
	return res, nil
}

// decodeItem reads one array entry. Only non-object entries are rejected;
// field values of any JSON type are flattened to text.
func decodeItem(b json.RawMessage) (Recommendation, bool) {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || b[0] != '{' {
		return Recommendation{}, false
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(b, &fields); err != nil {
		return Recommendation{}, false
	}
	field := func(key string) (string, bool) { return textOf(fields[key]) }

	rec := Recommendation{ChartType: "bar"}
	if v, ok := field("chart_type"); ok {
		rec.ChartType = v
	}
	if v, ok := field("title"); ok {
		rec.Title = v
	} else {
		rec.Title = titleCase(rec.ChartType) + " Chart"
	}
	rec.Reason, _ = field("reason")
	rec.Intent, _ = field("intent")
	for key, dst := range map[string]*Text{"strengths": &rec.Strengths, "weaknesses": &rec.Weaknesses, "when_to_use": &rec.WhenToUse} {
		v, _ := field(key)
		*dst = Text(v)
	}
	return rec, true
}

func decodeLenient(raw string) (Result, error) {
	text := stripCodeFence(raw)
	if res, err := decodeStrict([]byte(text), true); err == nil {
		return res, nil
	}
	var v any
	if err := hjson.Unmarshal([]byte(text), &v); err == nil {
		if b, err := json.Marshal(v); err == nil {
			if res, err := decodeStrict(b, true); err == nil {
				return res, nil
			}
		}
	}
	repaired, err := jsonrepair.RepairJSON(text)
	if err != nil {
		return Result{}, fmt.Errorf("repair reply: %w", err)
	}
	return decodeStrict([]byte(repaired), true)
}

// stripCodeFence removes an outer ``` or ```json fence and any chatter
// around the outermost JSON object.
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```")
		if nl := strings.IndexByte(s, '\n'); nl >= 0 && !strings.ContainsAny(s[:nl], "{[") {
			s = s[nl+1:]
		}
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
		s = strings.TrimSpace(s)
	}
	if i, j := strings.IndexByte(s, '{'), strings.LastIndexByte(s, '}'); i > 0 && j > i {
		s = s[i : j+1]
	}
	return s
}

// titleCase upper-cases the first letter of each word and lower-cases the rest.
func titleCase(s string) string {
	out := []rune(s)
	start := true
	for i, r := range out {
		if unicode.IsLetter(r) {
			if start {
				out[i] = unicode.ToUpper(r)
			} else {
				out[i] = unicode.ToLower(r)
			}
			start = false
			continue
		}
		start = true
	}
	return string(out)
}
