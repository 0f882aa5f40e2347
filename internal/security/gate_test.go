package security_test

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"testing"
	"time"

	"github.com/rgdevment/sms-firewall/internal/security"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type failingNonceStore struct{}

func (failingNonceStore) Record(context.Context, string) (bool, error) {
	return false, errors.New("connection refused")
}

func fullGateConfig() security.GateConfig {
	return security.GateConfig{
		Secret:             testSecret,
		SignatureEnabled:   true,
		ReplayEnabled:      true,
		IPAllowListEnabled: true,
		AllowList:          []string{"41.90.64.0/24"},
		RateLimitEnabled:   true,
	}
}

func newTestGate(cfg security.GateConfig, perMinute int) *security.Gate {
	return security.NewGate(cfg,
		security.NewReplayGuard(security.NewMemoryNonceStore(100, time.Hour)),
		security.NewRateLimiter(security.NewMemoryRateStore(), perMinute),
		zap.NewNop(),
	)
}

func signedRequest(ip string, form url.Values) *security.Request {
	h := http.Header{}
	h.Set("X-Africas-Talking-Signature", security.Sign(security.CanonicalPayload(form, nil), testSecret))
	return &security.Request{ClientIP: ip, Header: h, Form: form}
}

func webhookForm(id string) url.Values {
	return url.Values{
		"id":   {id},
		"from": {"0712345678"},
		"to":   {"22384"},
		"text": {"You won KES 50,000"},
	}
}

func rejectionOf(t *testing.T, err error) *security.Rejection {
	t.Helper()
	var rej *security.Rejection
	require.ErrorAs(t, err, &rej)
	return rej
}

func TestGate_AdmitsValidRequest(t *testing.T) {
	g := newTestGate(fullGateConfig(), 10)
	assert.NoError(t, g.Admit(context.Background(), signedRequest("41.90.64.10", webhookForm("m1"))))
}

func TestGate_Order(t *testing.T) {
	ctx := context.Background()

	t.Run("bad signature beats everything", func(t *testing.T) {
		g := newTestGate(fullGateConfig(), 10)
		req := signedRequest("8.8.8.8", webhookForm("m1"))
		req.Header.Set("X-Africas-Talking-Signature", "deadbeef")

		rej := rejectionOf(t, g.Admit(ctx, req))
		assert.Equal(t, http.StatusUnauthorized, rej.Status)
		assert.Equal(t, security.StageSignature, rej.Stage)
		assert.Equal(t, "unauthorized", rej.Reason)
	})

	t.Run("replay before IP", func(t *testing.T) {
		g := newTestGate(fullGateConfig(), 10)
		require.NoError(t, g.Admit(ctx, signedRequest("41.90.64.10", webhookForm("m1"))))

		rej := rejectionOf(t, g.Admit(ctx, signedRequest("8.8.8.8", webhookForm("m1"))))
		assert.Equal(t, http.StatusConflict, rej.Status)
		assert.Equal(t, "duplicate request", rej.Reason)
	})

	t.Run("IP before rate limit", func(t *testing.T) {
		g := newTestGate(fullGateConfig(), 1)
		require.NoError(t, g.Admit(ctx, signedRequest("41.90.64.10", webhookForm("m1"))))

		rej := rejectionOf(t, g.Admit(ctx, signedRequest("8.8.8.8", webhookForm("m2"))))
		assert.Equal(t, http.StatusForbidden, rej.Status)
		assert.Equal(t, "forbidden", rej.Reason)
	})

	t.Run("rate limit last", func(t *testing.T) {
		g := newTestGate(fullGateConfig(), 1)
		require.NoError(t, g.Admit(ctx, signedRequest("41.90.64.10", webhookForm("m1"))))

		rej := rejectionOf(t, g.Admit(ctx, signedRequest("41.90.64.11", webhookForm("m2"))))
		assert.Equal(t, http.StatusTooManyRequests, rej.Status)
		assert.Equal(t, "rate limited", rej.Reason)
	})
}

func TestGate_RejectedSignatureDoesNotConsumeNonce(t *testing.T) {
	ctx := context.Background()
	g := newTestGate(fullGateConfig(), 10)

	forged := signedRequest("41.90.64.10", webhookForm("m1"))
	forged.Header.Set("X-Africas-Talking-Signature", "00")
	require.Error(t, g.Admit(ctx, forged))

	assert.NoError(t, g.Admit(ctx, signedRequest("41.90.64.10", webhookForm("m1"))))
}

func TestGate_DisabledChecks(t *testing.T) {
	g := newTestGate(security.GateConfig{}, 1)
	req := &security.Request{ClientIP: "8.8.8.8", Header: http.Header{}, Form: webhookForm("m1")}

	ctx := context.Background()
	assert.NoError(t, g.Admit(ctx, req))
	assert.NoError(t, g.Admit(ctx, req))
}

func TestGate_StoreFailureIsNotARejection(t *testing.T) {
	cfg := fullGateConfig()
	g := security.NewGate(cfg,
		security.NewReplayGuard(failingNonceStore{}),
		security.NewRateLimiter(security.NewMemoryRateStore(), 10),
		zap.NewNop(),
	)

	err := g.Admit(context.Background(), signedRequest("41.90.64.10", webhookForm("m1")))
	require.Error(t, err)
	var rej *security.Rejection
	assert.False(t, errors.As(err, &rej))
}

func TestGate_Timestamp(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	cfg := security.GateConfig{ReplayEnabled: true, TimestampCheckEnabled: true, MaxRequestAge: 5 * time.Minute}

	cases := []struct {
		name   string
		date   string
		reject bool
	}{
		{"recent", "2026-03-01T11:58:00Z", false},
		{"stale", "2026-03-01T11:50:00Z", true},
		{"far future", "2026-03-01T12:05:00Z", true},
		{"unparseable is ignored", "not a date", false},
		{"absent", "", false},
	}
	for i, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			g := newTestGate(cfg, 10).WithClock(func() time.Time { return now })
			form := webhookForm(string(rune('a' + i)))
			if tc.date != "" {
				form.Set("date", tc.date)
			}
			err := g.Admit(ctx, &security.Request{ClientIP: "1.1.1.1", Header: http.Header{}, Form: form})
			if tc.reject {
				assert.Equal(t, http.StatusBadRequest, rejectionOf(t, err).Status)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestClientID(t *testing.T) {
	cases := []struct {
		name string
		from string
		ip   string
		want string
	}{
		{"local format normalized", "0712345678", "1.2.3.4", "+254712345678"},
		{"international unchanged", "+254712345678", "1.2.3.4", "+254712345678"},
		{"unparseable kept raw", "SAFARICOM", "1.2.3.4", "SAFARICOM"},
		{"no sender uses ip", "", "1.2.3.4", "1.2.3.4"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := &security.Request{ClientIP: tc.ip, Form: url.Values{"from": {tc.from}}}
			assert.Equal(t, tc.want, security.ClientID(req))
		})
	}
}
