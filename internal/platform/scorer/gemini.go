package scorer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rgdevment/sms-firewall/internal/domain"
	"github.com/rgdevment/sms-firewall/internal/service"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"
)

const (
	// DefaultGeminiBaseURL is the public Generative Language API.
	DefaultGeminiBaseURL = "https://generativelanguage.googleapis.com"
	// DefaultGeminiModel is tried first when none is configured.
	DefaultGeminiModel = "gemini-2.0-flash"
)

// fallbackModels are appended, in order, after the configured candidates.
var fallbackModels = []string{
	"gemini-2.0-flash",
	"gemini-2.0-flash-lite",
	"gemini-1.5-flash",
	"gemini-1.5-flash-latest",
	"gemini-1.5-pro",
}

// errModelNotFound marks a model the API does not serve; the next candidate
// is tried.
var errModelNotFound = errors.New("model not found")

// GeminiScorer calls the Gemini REST API with an API key.
type GeminiScorer struct {
	apiKey  string
	baseURL string
	client  *http.Client
	logger  *zap.Logger

	mu         sync.Mutex
	candidates []string
}

// ModelCandidates builds the ordered, de-duplicated list of models to try:
// the preferred model, then the configured extras, then the built-in fallbacks.
func ModelCandidates(preferred string, extra []string) []string {
	var out []string
	seen := make(map[string]bool)
	add := func(m string) {
		m = strings.TrimSpace(m)
		if m == "" || seen[m] {
			return
		}
		seen[m] = true
		out = append(out, m)
	}
	add(preferred)
	for _, m := range extra {
		add(m)
	}
	for _, m := range fallbackModels {
		add(m)
	}
	return out
}

func NewGeminiScorer(apiKey, baseURL string, candidates []string, client *http.Client, logger *zap.Logger) (*GeminiScorer, error) {
	if apiKey == "" {
		return nil, errors.New("scorer: GEMINI_API_KEY is required for the gemini backend")
	}
	if baseURL == "" {
		baseURL = DefaultGeminiBaseURL
	}
	if len(candidates) == 0 {
		candidates = ModelCandidates(DefaultGeminiModel, nil)
	}
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &GeminiScorer{
		apiKey:     apiKey,
		baseURL:    strings.TrimRight(baseURL, "/"),
		client:     client,
		logger:     logger,
		candidates: candidates,
	}, nil
}

// Score implements service.Scorer. Models answering 404 are skipped; the
// first one that works is promoted so later calls go straight to it.
func (g *GeminiScorer) Score(ctx context.Context, req service.ScoreRequest) (*domain.Analysis, error) {
	body, err := json.Marshal(generateRequest{
		SystemInstruction: &content{Parts: []part{{Text: SystemInstruction}}},
		Contents:          []content{{Role: "user", Parts: []part{{Text: BuildPrompt(req)}}}},
		GenerationConfig:  defaultGenerationConfig(),
	})
	if err != nil {
		return nil, fmt.Errorf("gemini: encode request: %w", err)
	}

	models := g.models()
	for i, model := range models {
		reply, err := g.generate(ctx, model, body)
		if errors.Is(err, errModelNotFound) {
			g.logger.Warn("gemini model unavailable, trying fallback", zap.String("model", model))
			continue
		}
		if err != nil {
			return nil, err
		}
		if i > 0 {
			g.promote(model)
			g.logger.Warn("switched gemini model",
				zap.String("from", models[0]),
				zap.String("to", model),
			)
		}
		return ParseAnalysis(reply)
	}
	return nil, fmt.Errorf("gemini: no compatible model found, tried %s", strings.Join(models, ", "))
}

func (g *GeminiScorer) generate(ctx context.Context, model string, body []byte) (string, error) {
	endpoint := fmt.Sprintf("%s/v1beta/models/%s:generateContent?key=%s",
		g.baseURL, url.PathEscape(model), url.QueryEscape(g.apiKey))

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("gemini: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("gemini: request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("gemini: read response: %w", err)
	}
	return replyText(resp.StatusCode, raw)
}

// models returns the current candidate order.
func (g *GeminiScorer) models() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.candidates...)
}

func (g *GeminiScorer) promote(model string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := []string{model}
	for _, m := range g.candidates {
		if m != model {
			out = append(out, m)
		}
	}
	g.candidates = out
}

// replyText extracts the first candidate's text from a generateContent
// response, mapping API-level errors.
func replyText(status int, raw []byte) (string, error) {
	doc := gjson.ParseBytes(raw)
	if status == http.StatusNotFound || doc.Get("error.status").Str == "NOT_FOUND" {
		return "", errModelNotFound
	}
	if status < 200 || status >= 300 {
		msg := doc.Get("error.message").Str
		if msg == "" {
			msg = http.StatusText(status)
		}
		return "", fmt.Errorf("generateContent: status %d: %s", status, msg)
	}

	var sb strings.Builder
	for _, p := range doc.Get("candidates.0.content.parts").Array() {
		sb.WriteString(p.Get("text").Str)
	}
	if sb.Len() == 0 {
		reason := doc.Get("promptFeedback.blockReason").Str
		if reason == "" {
			reason = doc.Get("candidates.0.finishReason").Str
		}
		return "", fmt.Errorf("generateContent: empty reply (%s)", reason)
	}
	return sb.String(), nil
}

type part struct {
	Text string `json:"text"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type generationConfig struct {
	Temperature     float64 `json:"temperature"`
	TopP            float64 `json:"topP"`
	TopK            int     `json:"topK"`
	MaxOutputTokens int     `json:"maxOutputTokens"`
}

type generateRequest struct {
	SystemInstruction *content         `json:"systemInstruction,omitempty"`
	Contents          []content        `json:"contents"`
	GenerationConfig  generationConfig `json:"generationConfig"`
}

func defaultGenerationConfig() generationConfig {
	return generationConfig{Temperature: 0.3, TopP: 0.95, TopK: 40, MaxOutputTokens: 1024}
}
