// Package scorer holds the message-danger backends. All of them satisfy
// service.Scorer and are picked at startup by name.
package scorer

import (
	"context"
	"fmt"
	"net/http"

	"github.com/rgdevment/sms-firewall/internal/service"
	"go.uber.org/zap"
)

// Backend names accepted by New.
const (
	BackendGemini = "gemini"
	BackendVertex = "vertex"
	BackendRules  = "rules"
)

// Options carries everything any backend may need.
type Options struct {
	Backend         string
	GeminiAPIKey    string
	GeminiBaseURL   string
	Model           string
	ModelCandidates []string
	GCPProject      string
	GCPLocation     string
	HTTPClient      *http.Client
}

// New builds the configured backend.
func New(ctx context.Context, opts Options, logger *zap.Logger) (service.Scorer, error) {
	switch opts.Backend {
	case BackendGemini, "":
		g, err := NewGeminiScorer(opts.GeminiAPIKey, opts.GeminiBaseURL,
			ModelCandidates(opts.Model, opts.ModelCandidates), opts.HTTPClient, logger)
		if err != nil {
			return nil, err
		}
		return g, nil
	case BackendVertex:
		v, err := NewVertexScorer(ctx, opts.GCPProject, opts.GCPLocation, opts.Model, logger)
		if err != nil {
			return nil, err
		}
		return v, nil
	case BackendRules:
		return NewRulesScorer(), nil
	default:
		return nil, fmt.Errorf("scorer: unknown backend %q", opts.Backend)
	}
}
