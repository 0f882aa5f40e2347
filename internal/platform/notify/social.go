// Package notify publishes high-severity reports outside the request path.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/rgdevment/sms-firewall/internal/platform/metrics"
	"github.com/rgdevment/sms-firewall/internal/service"
	"go.uber.org/zap"
)

// SocialConfig points the poster at a webhook that relays to a social feed.
type SocialConfig struct {
	WebhookURL   string
	RetryMax     int
	RetryWaitMin time.Duration
	RetryWaitMax time.Duration
}

// SocialPoster sends the public warning for a high-severity report.
type SocialPoster struct {
	url    string
	client *retryablehttp.Client
	logger *zap.Logger
}

type socialPost struct {
	Text     string `json:"text"`
	Score    int    `json:"score"`
	ReportID string `json:"report_id"`
}

func NewSocialPoster(cfg SocialConfig, logger *zap.Logger) (*SocialPoster, error) {
	if cfg.WebhookURL == "" {
		return nil, errors.New("notify: SOCIAL_WEBHOOK_URL is required when social posting is enabled")
	}
	client := retryablehttp.NewClient()
	client.Logger = leveledLogger{logger.Sugar()}
	client.RetryMax = 3
	if cfg.RetryMax > 0 {
		client.RetryMax = cfg.RetryMax
	}
	if cfg.RetryWaitMin > 0 {
		client.RetryWaitMin = cfg.RetryWaitMin
	}
	if cfg.RetryWaitMax > 0 {
		client.RetryWaitMax = cfg.RetryWaitMax
	}
	client.HTTPClient.Timeout = 10 * time.Second

	return &SocialPoster{url: cfg.WebhookURL, client: client, logger: logger}, nil
}

// Notify implements service.Notifier.
func (p *SocialPoster) Notify(ctx context.Context, alert service.Alert) error {
	if alert.Report == nil {
		return nil
	}
	body, err := json.Marshal(socialPost{
		Text:     service.FormatSocialPost(alert.Report.MessageText, alert.Lesson, alert.Report.Score),
		Score:    alert.Report.Score,
		ReportID: alert.Report.ID.String(),
	})
	if err != nil {
		return fmt.Errorf("notify: encode post: %w", err)
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, p.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("notify: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		metrics.RecordOutbound("social", false)
		return fmt.Errorf("notify: social post: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		metrics.RecordOutbound("social", false)
		return fmt.Errorf("notify: social post: status %d", resp.StatusCode)
	}
	metrics.RecordOutbound("social", true)
	p.logger.Info("posted scam alert", zap.String("report_id", alert.Report.ID.String()))
	return nil
}

// leveledLogger lets retryablehttp log through zap.
type leveledLogger struct {
	s *zap.SugaredLogger
}

func (l leveledLogger) Error(msg string, kv ...interface{}) { l.s.Errorw(msg, kv...) }
func (l leveledLogger) Info(msg string, kv ...interface{})  { l.s.Infow(msg, kv...) }
func (l leveledLogger) Debug(msg string, kv ...interface{}) { l.s.Debugw(msg, kv...) }
func (l leveledLogger) Warn(msg string, kv ...interface{})  { l.s.Warnw(msg, kv...) }
