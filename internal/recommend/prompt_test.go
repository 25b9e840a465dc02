package recommend

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/KaramelBytes/chartloom-cli/internal/analysis"
)

func TestUserPayload_Shape(t *testing.T) {
	meta := analysis.Metadata{"month": {Type: analysis.KindDatetime, Cardinality: 12}}
	s, err := UserPayload(meta, nil, "month", "sales", IntentTrend)
	if err != nil {
		t.Fatal(err)
	}
	var got map[string]any
	if err := json.Unmarshal([]byte(s), &got); err != nil {
		t.Fatal(err)
	}
	if len(got) != 4 || got["x_column"] != "month" || got["y_column"] != "sales" || got["intent"] != IntentTrend {
		t.Fatalf("payload = %s", s)
	}
	m := got["metadata"].(map[string]any)["month"].(map[string]any)
	if m["type"] != "datetime" || m["n_unique"] != float64(12) {
		t.Fatalf("metadata = %v", m)
	}
}

func TestUserPayload_OmitsEmptyIntent(t *testing.T) {
	s, err := UserPayload(nil, nil, "a", "b", "")
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(s, "intent") || !strings.Contains(s, `"metadata":{}`) {
		t.Fatalf("payload = %s", s)
	}
}

func TestUserPayload_KeepsColumnOrder(t *testing.T) {
	meta := analysis.Metadata{
		"sales":  {Type: analysis.KindNumeric, Cardinality: 4},
		"region": {Type: analysis.KindCategorical, Cardinality: 2},
		"date":   {Type: analysis.KindDatetime, Cardinality: 4},
	}
	s, err := UserPayload(meta, []string{"sales", "region", "date"}, "date", "sales", "")
	if err != nil {
		t.Fatal(err)
	}
	iSales, iRegion, iDate := strings.Index(s, `"sales":{`), strings.Index(s, `"region":{`), strings.Index(s, `"date":{`)
	if iSales < 0 || !(iSales < iRegion && iRegion < iDate) {
		t.Fatalf("metadata keys out of column order: %s", s)
	}
}

func TestSystemPrompt_Modes(t *testing.T) {
	user := SystemPrompt(IntentUser)
	if !strings.Contains(user, `"chart_type"`) || strings.Contains(user, "when_to_use") {
		t.Fatalf("user prompt schema wrong:\n%s", user)
	}
	inf := SystemPrompt(IntentInferred)
	for _, k := range []string{"intent", "strengths", "weaknesses", "when_to_use"} {
		if !strings.Contains(inf, `"`+k+`"`) {
			t.Fatalf("inferred prompt missing %s", k)
		}
	}
	for _, p := range []string{user, inf} {
		if !strings.HasSuffix(p, "only valid JSON.") {
			t.Fatalf("prompt must end with the strict JSON instruction")
		}
	}
}

func TestResolveIntent(t *testing.T) {
	if ResolveIntent("Trend") != IntentTrend || ResolveIntent("correlation") != IntentCorrelation {
		t.Fatalf("aliases not expanded")
	}
	if ResolveIntent(" spot outliers ") != "spot outliers" {
		t.Fatalf("free text should pass through trimmed")
	}
}

func TestParseIntentMode(t *testing.T) {
	if m, err := ParseIntentMode("inferred"); err != nil || m != IntentInferred {
		t.Fatalf("inferred: %v %v", m, err)
	}
	if m, err := ParseIntentMode(""); err != nil || m != IntentUser {
		t.Fatalf("default: %v %v", m, err)
	}
	if _, err := ParseIntentMode("both"); err == nil {
		t.Fatalf("expected error")
	}
}
