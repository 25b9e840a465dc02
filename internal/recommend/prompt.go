package recommend

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/KaramelBytes/chartloom-cli/internal/analysis"
)

// IntentMode selects where the analysis intent comes from.
type IntentMode string

const (
	// IntentUser uses the intent the caller supplies.
	IntentUser IntentMode = "user"
	// IntentInferred lets the model derive likely intents from the metadata.
	IntentInferred IntentMode = "inferred"
)

// ParseIntentMode maps a config or flag value to an IntentMode.
func ParseIntentMode(s string) (IntentMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "user":
		return IntentUser, nil
	case "inferred", "auto":
		return IntentInferred, nil
	}
	return "", fmt.Errorf("unknown intent mode %q (want user|inferred)", s)
}

// Standard analysis intents.
const (
	IntentTrend        = "Show trend over time"
	IntentCompare      = "Compare categories"
	IntentDistribution = "Show distribution"
	IntentCorrelation  = "Explore correlation between variables"
)

// Intents lists the standard intents in display order.
var Intents = []string{IntentTrend, IntentCompare, IntentDistribution, IntentCorrelation}

var intentAliases = map[string]string{
	"trend":        IntentTrend,
	"compare":      IntentCompare,
	"distribution": IntentDistribution,
	"correlation":  IntentCorrelation,
}

// ResolveIntent expands a short alias to its standard intent. Anything else
// is passed through as free text.
func ResolveIntent(s string) string {
	s = strings.TrimSpace(s)
	if full, ok := intentAliases[strings.ToLower(s)]; ok {
		return full
	}
	return s
}

const userModeSchema = `{
  "recommendations": [
    {
      "chart_type": "line" | "bar" | "scatter" | "area" | "histogram" | "boxplot",
      "title": "string",
      "reason": "string explaining why this chart fits"
    },
    ...
  ]
}`

const inferredModeSchema = `{
  "recommendations": [
    {
      "chart_type": "line" | "bar" | "scatter" | "area" | "histogram" | "boxplot",
      "title": "string",
      "intent": "the analysis intent this chart serves",
      "reason": "string explaining why this chart fits",
      "strengths": "what this chart shows well",
      "weaknesses": "what this chart hides or distorts",
      "when_to_use": "situations where this chart is the right choice"
    },
    ...
  ]
}`

// SystemPrompt returns the instruction that constrains the model to a strict
// JSON reply for the given mode.
func SystemPrompt(mode IntentMode) string {
	var b strings.Builder
	b.WriteString("You are a data visualization expert.\n")
	if mode == IntentInferred {
		b.WriteString("Given metadata about a dataset and the selected X and Y variables, first summarize what the data ")
		b.WriteString("looks like, infer the analysis intents a user is most likely to have, and recommend appropriate ")
		b.WriteString("chart types for those intents.\n\n")
		b.WriteString("You MUST respond in strict JSON with the following schema:\n\n")
		b.WriteString(inferredModeSchema)
	} else {
		b.WriteString("Given metadata about a dataset, the selected X and Y variables, and the user's analysis intent,\n")
		b.WriteString("you recommend appropriate chart types.\n\n")
		b.WriteString("You MUST respond in strict JSON with the following schema:\n\n")
		b.WriteString(userModeSchema)
	}
	b.WriteString("\nNo extra text, no markdown, only valid JSON.")
	return b.String()
}

// Payload is the user message sent alongside the system prompt.
type Payload struct {
	Metadata json.RawMessage `json:"metadata"`
	XColumn  string          `json:"x_column"`
	YColumn  string          `json:"y_column"`
	Intent   string          `json:"intent,omitempty"`
}

// UserPayload serializes the dataset description and the column selection.
// Metadata keys follow columns, the dataset's column order.
func UserPayload(meta analysis.Metadata, columns []string, x, y, intent string) (string, error) {
	mb, err := meta.OrderedJSON(columns)
	if err != nil {
		return "", fmt.Errorf("encode metadata: %w", err)
	}
	b, err := json.Marshal(Payload{Metadata: mb, XColumn: x, YColumn: y, Intent: intent})
	if err != nil {
		return "", fmt.Errorf("encode payload: %w", err)
	}
	return string(b), nil
}
