package scorer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/rgdevment/sms-firewall/internal/domain"
	"github.com/rgdevment/sms-firewall/internal/service"
	"golang.org/x/oauth2/google"
	"go.uber.org/zap"
)

const cloudPlatformScope = "https://www.googleapis.com/auth/cloud-platform"

// VertexScorer calls Gemini through Vertex AI using Application Default
// Credentials.
type VertexScorer struct {
	endpoint string
	client   *http.Client
	logger   *zap.Logger
}

// NewVertexScorer resolves credentials once. The returned client refreshes
// tokens on its own.
func NewVertexScorer(ctx context.Context, project, location, model string, logger *zap.Logger) (*VertexScorer, error) {
	if project == "" {
		return nil, errors.New("scorer: GCP_PROJECT_ID is required for the vertex backend")
	}
	client, err := google.DefaultClient(ctx, cloudPlatformScope)
	if err != nil {
		return nil, fmt.Errorf("vertex: load default credentials: %w", err)
	}
	endpoint := VertexEndpoint(project, location, model)
	logger.Info("vertex scorer ready", zap.String("endpoint", endpoint))
	return newVertexScorer(endpoint, client, logger), nil
}

func newVertexScorer(endpoint string, client *http.Client, logger *zap.Logger) *VertexScorer {
	return &VertexScorer{endpoint: endpoint, client: client, logger: logger}
}

// VertexEndpoint is the generateContent URL for a publisher model.
func VertexEndpoint(project, location, model string) string {
	if location == "" {
		location = "us-central1"
	}
	if model == "" {
		model = DefaultGeminiModel
	}
	return fmt.Sprintf("https://%s-aiplatform.googleapis.com/v1/projects/%s/locations/%s/publishers/google/models/%s:generateContent",
		location, project, location, model)
}

// Score implements service.Scorer.
func (v *VertexScorer) Score(ctx context.Context, req service.ScoreRequest) (*domain.Analysis, error) {
	body, err := json.Marshal(generateRequest{
		SystemInstruction: &content{Parts: []part{{Text: SystemInstruction}}},
		Contents:          []content{{Role: "user", Parts: []part{{Text: BuildPrompt(req)}}}},
		GenerationConfig:  defaultGenerationConfig(),
	})
	if err != nil {
		return nil, fmt.Errorf("vertex: encode request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, v.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("vertex: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := v.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("vertex: request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("vertex: read response: %w", err)
	}
	reply, err := replyText(resp.StatusCode, raw)
	if err != nil {
		return nil, fmt.Errorf("vertex: %w", err)
	}
	return ParseAnalysis(reply)
}
