package security

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rgdevment/sms-firewall/internal/domain"
	"go.uber.org/zap"
)

// Gate stages, used as labels in logs and metrics.
const (
	StageSignature = "signature"
	StageReplay    = "replay"
	StageIP        = "ip"
	StageRateLimit = "rate_limit"
)

// futureSkew is how far ahead of our clock a webhook date may be.
const futureSkew = 30 * time.Second

// GateConfig switches the individual checks on and off.
type GateConfig struct {
	Secret           string
	SignatureEnabled bool

	ReplayEnabled         bool
	TimestampCheckEnabled bool
	MaxRequestAge         time.Duration

	IPAllowListEnabled bool
	AllowList          []string

	RateLimitEnabled bool
}

// Request is what the gate needs to know about an inbound webhook.
type Request struct {
	ClientIP string
	Header   http.Header
	Form     url.Values
	RawBody  []byte
}

// Rejection is an admission failure. Reason is the fixed caller-facing message.
type Rejection struct {
	Status int
	Stage  string
	Reason string
}

func (r *Rejection) Error() string { return r.Reason }

// Gate runs the admission checks in a fixed order and stops at the first
// failure: signature, replay, IP allow-list, rate limit.
type Gate struct {
	cfg     GateConfig
	replay  *ReplayGuard
	limiter *RateLimiter
	logger  *zap.Logger
	now     func() time.Time
}

func NewGate(cfg GateConfig, replay *ReplayGuard, limiter *RateLimiter, logger *zap.Logger) *Gate {
	if cfg.MaxRequestAge <= 0 {
		cfg.MaxRequestAge = 5 * time.Minute
	}
	return &Gate{
		cfg:     cfg,
		replay:  replay,
		limiter: limiter,
		logger:  logger,
		now:     time.Now,
	}
}

// WithClock swaps the time source used by the timestamp check. Tests only.
func (g *Gate) WithClock(now func() time.Time) *Gate {
	g.now = now
	return g
}

// Admit returns nil when the request may proceed, a *Rejection when it must
// be refused, or another error when a state store failed.
//
// The nonce is recorded at the replay stage, before the IP and rate checks
// and before the pipeline runs. A retry of a request that was later refused
// with 403, 429 or 500 is therefore answered 409.
func (g *Gate) Admit(ctx context.Context, req *Request) error {
	if g.cfg.SignatureEnabled && g.cfg.Secret != "" {
		sig := ExtractSignature(req.Header)
		if !Verify(sig, CanonicalPayload(req.Form, req.RawBody), g.cfg.Secret) {
			g.logger.Warn("webhook signature verification failed",
				zap.String("client_ip", req.ClientIP),
				zap.Bool("signature_present", sig != ""),
			)
			return &Rejection{Status: http.StatusUnauthorized, Stage: StageSignature, Reason: "unauthorized"}
		}
	}

	if g.cfg.ReplayEnabled && g.replay != nil {
		if rej := g.checkTimestamp(req); rej != nil {
			return rej
		}
		source := NonceSource(req.Form)
		verdict, err := g.replay.CheckAndRecord(ctx, source)
		if err != nil {
			return err
		}
		if verdict == ReplayDuplicate {
			g.logger.Warn("replay attack detected",
				zap.String("nonce_prefix", truncate(source, 10)),
				zap.String("client_ip", req.ClientIP),
			)
			return &Rejection{Status: http.StatusConflict, Stage: StageReplay, Reason: "duplicate request"}
		}
	}

	if g.cfg.IPAllowListEnabled && len(g.cfg.AllowList) > 0 {
		if !IsAllowed(req.ClientIP, g.cfg.AllowList) {
			g.logger.Warn("IP whitelist violation", zap.String("client_ip", req.ClientIP))
			return &Rejection{Status: http.StatusForbidden, Stage: StageIP, Reason: "forbidden"}
		}
	}

	if g.cfg.RateLimitEnabled && g.limiter != nil {
		ok, err := g.limiter.Allow(ctx, ClientID(req))
		if err != nil {
			return err
		}
		if !ok {
			return &Rejection{Status: http.StatusTooManyRequests, Stage: StageRateLimit, Reason: "rate limited"}
		}
	}

	return nil
}

// checkTimestamp is deliberately lenient: a missing or unparseable date is
// logged and ignored.
func (g *Gate) checkTimestamp(req *Request) *Rejection {
	if !g.cfg.TimestampCheckEnabled {
		return nil
	}
	raw := req.Form.Get("date")
	if raw == "" {
		return nil
	}
	sent, ok := ParseTimestamp(raw)
	if !ok {
		g.logger.Warn("could not parse webhook timestamp", zap.String("date", truncate(raw, 40)))
		return nil
	}
	age := g.now().Sub(sent)
	if age > g.cfg.MaxRequestAge || age < -futureSkew {
		g.logger.Warn("webhook timestamp outside window", zap.Duration("age", age))
		return &Rejection{Status: http.StatusBadRequest, Stage: StageReplay, Reason: "stale request"}
	}
	return nil
}

// ClientID is the rate-limit key: the reporter's phone when the request
// carries one, otherwise the source address. The phone is normalized so a
// handset cannot dodge the cap by reformatting its number.
func ClientID(req *Request) string {
	from := strings.TrimSpace(req.Form.Get("from"))
	if from == "" {
		return req.ClientIP
	}
	if p := domain.Normalize(from); p.Valid() {
		return p.String()
	}
	return from
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
