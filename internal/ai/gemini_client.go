package ai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"google.golang.org/genai"
	"k8s.io/klog/v2"
)

// GeminiClient calls Google's Gemini API through the GenAI SDK.
type GeminiClient struct {
	apiKey      string
	httpTimeout time.Duration
	baseURL     string
}

// NewGeminiClient returns a client for the Gemini developer API.
func NewGeminiClient(apiKey string, httpTimeout time.Duration) *GeminiClient {
	if httpTimeout <= 0 {
		httpTimeout = 60 * time.Second
	}
	return &GeminiClient{apiKey: apiKey, httpTimeout: httpTimeout}
}

// NewGeminiClientWithBaseURL points the SDK at a custom endpoint (used in tests).
func NewGeminiClientWithBaseURL(apiKey string, httpTimeout time.Duration, baseURL string) *GeminiClient {
	c := NewGeminiClient(apiKey, httpTimeout)
	c.baseURL = baseURL
	return c
}

func (c *GeminiClient) client(ctx context.Context) (*genai.Client, error) {
	if c.apiKey == "" {
		return nil, errors.New("GEMINI_API_KEY is missing")
	}
	cfg := &genai.ClientConfig{
		APIKey:     c.apiKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: &http.Client{Timeout: c.httpTimeout},
	}
	if c.baseURL != "" {
		cfg.HTTPOptions = genai.HTTPOptions{BaseURL: c.baseURL}
	}
	client, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	return client, nil
}

// geminiContents splits chat messages into a system instruction and the
// conversation turns Gemini expects.
func geminiContents(req GenerateRequest) (*genai.Content, []*genai.Content) {
	var system []string
	var turns []*genai.Content
	for _, m := range req.Messages {
		switch m.Role {
		case RoleSystem:
			system = append(system, m.Content)
		case "assistant", "model":
			turns = append(turns, &genai.Content{Role: "model", Parts: []*genai.Part{{Text: m.Content}}})
		default:
			turns = append(turns, &genai.Content{Role: "user", Parts: []*genai.Part{{Text: m.Content}}})
		}
	}
	if len(system) == 0 {
		return nil, turns
	}
	return &genai.Content{Parts: []*genai.Part{{Text: strings.Join(system, "\n\n")}}}, turns
}

func geminiConfig(req GenerateRequest) *genai.GenerateContentConfig {
	sys, _ := geminiContents(req)
	cfg := &genai.GenerateContentConfig{SystemInstruction: sys}
	if req.Temperature > 0 {
		cfg.Temperature = genai.Ptr(float32(req.Temperature))
	}
	if req.MaxTokens > 0 {
		cfg.MaxOutputTokens = int32(req.MaxTokens)
	}
	if req.JSONMode {
		cfg.ResponseMIMEType = "application/json"
	}
	return cfg
}

// Generate sends one generateContent request.
func (c *GeminiClient) Generate(ctx context.Context, req GenerateRequest) (*GenerateResponse, error) {
	if strings.TrimSpace(req.Model) == "" {
		return nil, errors.New("model cannot be empty")
	}
	_, turns := geminiContents(req)
	if len(turns) == 0 {
		return nil, errors.New("messages cannot be empty")
	}
	client, err := c.client(ctx)
	if err != nil {
		return nil, err
	}
	result, err := client.Models.GenerateContent(ctx, req.Model, turns, geminiConfig(req))
	if err != nil {
		return nil, classifyGeminiError(err)
	}
	out := &GenerateResponse{
		Choices: []Choice{{Message: Message{Role: "assistant", Content: result.Text()}}},
	}
	if u := result.UsageMetadata; u != nil {
		out.Usage = Usage{
			PromptTokens:     int(u.PromptTokenCount),
			CompletionTokens: int(u.CandidatesTokenCount),
			TotalTokens:      int(u.TotalTokenCount),
		}
	}
	klog.FromContext(ctx).V(2).Info("completion received", "provider", ProviderGemini, "model", req.Model, "totalTokens", out.Usage.TotalTokens)
	return out, nil
}

// GenerateStream streams text chunks from generateContent.
func (c *GeminiClient) GenerateStream(ctx context.Context, req GenerateRequest, onDelta func(string)) error {
	if strings.TrimSpace(req.Model) == "" {
		return errors.New("model cannot be empty")
	}
	_, turns := geminiContents(req)
	if len(turns) == 0 {
		return errors.New("messages cannot be empty")
	}
	client, err := c.client(ctx)
	if err != nil {
		return err
	}
	for chunk, err := range client.Models.GenerateContentStream(ctx, req.Model, turns, geminiConfig(req)) {
		if err != nil {
			return classifyGeminiError(err)
		}
		if t := chunk.Text(); t != "" {
			onDelta(t)
		}
	}
	return nil
}

// classifyGeminiError maps SDK API errors onto the package's typed errors.
func classifyGeminiError(err error) error {
	var gerr genai.APIError
	if !errors.As(err, &gerr) {
		return fmt.Errorf("gemini generation failed: %w", err)
	}
	apiErr := &APIError{StatusCode: gerr.Code, Code: gerr.Status, Message: gerr.Message}
	if gerr.Code == http.StatusNotFound {
		return &ModelNotFoundError{APIError: apiErr}
	}
	if gerr.Status == "RESOURCE_EXHAUSTED" && containsAnyFold(gerr.Message, "quota", "billing") {
		return &QuotaExceededError{APIError: apiErr}
	}
	return classifyAPIError(apiErr, nil)
}
