// Package sms delivers outbound text messages.
package sms

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rgdevment/sms-firewall/internal/domain"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	LiveEndpoint    = "https://api.africastalking.com/version1/messaging"
	SandboxEndpoint = "https://api.sandbox.africastalking.com/version1/messaging"

	// maxBatch is how many recipients go into one API call.
	maxBatch = 100
)

// ErrRejected is returned when the gateway accepts the call but no recipient
// was queued.
var ErrRejected = errors.New("sms: no recipient accepted")

// Config holds the Africa's Talking account settings.
type Config struct {
	Username  string
	APIKey    string
	Shortcode string
	// Endpoint overrides the API URL. Empty picks live or sandbox by Username.
	Endpoint string
	// SendRPS caps outbound API calls per second. Zero means 5.
	SendRPS float64
}

// AfricasTalking sends SMS through the Africa's Talking bulk messaging API.
type AfricasTalking struct {
	cfg     Config
	client  *http.Client
	limiter *rate.Limiter
	logger  *zap.Logger
}

func NewAfricasTalking(cfg Config, client *http.Client, logger *zap.Logger) (*AfricasTalking, error) {
	if cfg.Username == "" || cfg.APIKey == "" {
		return nil, errors.New("sms: AT_USERNAME and AT_API_KEY are required")
	}
	if cfg.Endpoint == "" {
		cfg.Endpoint = LiveEndpoint
		if cfg.Username == "sandbox" {
			cfg.Endpoint = SandboxEndpoint
		}
	}
	if cfg.SendRPS <= 0 {
		cfg.SendRPS = 5
	}
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	burst := int(cfg.SendRPS)
	if burst < 1 {
		burst = 1
	}
	return &AfricasTalking{
		cfg:     cfg,
		client:  client,
		limiter: rate.NewLimiter(rate.Limit(cfg.SendRPS), burst),
		logger:  logger,
	}, nil
}

// Send implements service.MessageSender. Recipients are sent in batches; the
// first failing batch stops the run.
func (a *AfricasTalking) Send(ctx context.Context, message string, recipients []domain.Phone) error {
	if len(recipients) == 0 {
		return nil
	}
	for start := 0; start < len(recipients); start += maxBatch {
		end := min(start+maxBatch, len(recipients))
		if err := a.sendBatch(ctx, message, recipients[start:end]); err != nil {
			return err
		}
	}
	return nil
}

func (a *AfricasTalking) sendBatch(ctx context.Context, message string, batch []domain.Phone) error {
	if err := a.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("sms: rate limiter: %w", err)
	}

	to := make([]string, len(batch))
	for i, p := range batch {
		to[i] = p.String()
	}
	form := url.Values{}
	form.Set("username", a.cfg.Username)
	form.Set("to", strings.Join(to, ","))
	form.Set("message", message)
	if a.cfg.Shortcode != "" {
		form.Set("from", a.cfg.Shortcode)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.Endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("sms: build request: %w", err)
	}
	req.Header.Set("apiKey", a.cfg.APIKey)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := a.client.Do(req)
	if err != nil {
		return fmt.Errorf("sms: request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("sms: read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("sms: gateway status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	sent, failed := 0, 0
	gjson.GetBytes(raw, "SMSMessageData.Recipients").ForEach(func(_, r gjson.Result) bool {
		// 100 Processed, 101 Sent, 102 Queued.
		if code := r.Get("statusCode").Int(); code >= 100 && code <= 102 {
			sent++
		} else {
			failed++
			a.logger.Warn("sms recipient rejected",
				zap.String("to", domain.Phone(r.Get("number").Str).Masked()),
				zap.String("status", r.Get("status").Str),
			)
		}
		return true
	})
	if sent == 0 {
		return fmt.Errorf("%w: %s", ErrRejected, gjson.GetBytes(raw, "SMSMessageData.Message").Str)
	}

	a.logger.Debug("sms batch sent", zap.Int("sent", sent), zap.Int("failed", failed))
	return nil
}
