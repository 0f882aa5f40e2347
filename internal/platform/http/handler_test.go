package http_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/rgdevment/sms-firewall/internal/domain"
	apihttp "github.com/rgdevment/sms-firewall/internal/platform/http"
	"github.com/rgdevment/sms-firewall/internal/platform/storage/sqlite"
	"github.com/rgdevment/sms-firewall/internal/security"
	"github.com/rgdevment/sms-firewall/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const (
	secret    = "webhook-secret"
	masterKey = "master-key"
	reporter  = "0798765432"
)

type fixedScorer struct {
	mu    sync.Mutex
	score int
	calls int
}

func (s *fixedScorer) Score(_ context.Context, _ service.ScoreRequest) (*domain.Analysis, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	return &domain.Analysis{Score: s.score, Summary: "Fake M-Pesa reversal.", Lesson: "Never send money back."}, nil
}

func (s *fixedScorer) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

type recordingSender struct {
	mu   sync.Mutex
	msgs []string
}

func (r *recordingSender) Send(_ context.Context, msg string, _ []domain.Phone) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, msg)
	return nil
}

type failingNonceStore struct{}

func (failingNonceStore) Record(context.Context, string) (bool, error) {
	return false, errors.New("redis unavailable")
}

// readOnlyRepo rejects report writes and serves everything else.
type readOnlyRepo struct {
	service.Repository
}

func (readOnlyRepo) SaveReport(context.Context, *domain.ScamReport) error {
	return errors.New("disk I/O error: database is read-only")
}

type harness struct {
	router http.Handler
	repo   service.Repository
	scorer *fixedScorer
	sender *recordingSender
	intake service.Intake
}

type options struct {
	perMinute int
	nonces    security.NonceStore
	readOnly  bool
}

func newHarness(t *testing.T, opts options) *harness {
	t.Helper()
	logger := zap.NewNop()

	repo, err := sqlite.Open(context.Background(), filepath.Join(t.TempDir(), "firewall.db"))
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })
	if opts.readOnly {
		repo = readOnlyRepo{repo}
	}

	if opts.nonces == nil {
		opts.nonces = security.NewMemoryNonceStore(100, 0)
	}
	gate := security.NewGate(security.GateConfig{
		Secret:             secret,
		SignatureEnabled:   true,
		ReplayEnabled:      true,
		IPAllowListEnabled: true,
		AllowList:          []string{"192.0.2.0/24"},
		RateLimitEnabled:   true,
	},
		security.NewReplayGuard(opts.nonces),
		security.NewRateLimiter(security.NewMemoryRateStore(), opts.perMinute),
		logger,
	)

	h := &harness{repo: repo, scorer: &fixedScorer{score: 9}, sender: &recordingSender{}}
	engine := service.NewBlacklistEngine(repo, service.DefaultPhoneThreshold, service.DefaultURLThreshold, logger)
	h.intake = service.NewIntakeService(service.IntakeConfig{AutoBlockEnabled: true},
		repo, engine, h.scorer, h.sender, nil, logger)

	r := chi.NewRouter()
	apihttp.NewHandler(gate, h.intake, repo, masterKey, logger).RegisterRoutes(r)
	h.router = r
	return h
}

func webhookForm(id, text string) url.Values {
	return url.Values{
		"from":   {reporter},
		"to":     {"22384"},
		"text":   {text},
		"id":     {id},
		"linkId": {"link-" + id},
		"date":   {"2026-10-18 09:30:00"},
	}
}

func (h *harness) post(form url.Values, signed bool) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/webhook/sms", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if signed {
		req.Header.Set("X-Africas-Talking-Signature", security.Sign(security.CanonicalPayload(form, nil), secret))
	}
	rec := httptest.NewRecorder()
	h.router.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

const scamText = "From 0712345678: You have received KES 3,500 by mistake. Send it back via https://bit.ly/rev3500 now"

func TestWebhook_AnalyzesAndBlocks(t *testing.T) {
	h := newHarness(t, options{})

	rec := h.post(webhookForm("ATXid_1", scamText), true)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decode(t, rec)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, service.ActionAnalyzed, body["action"])
	assert.Equal(t, float64(9), body["score"])
	assert.Equal(t, true, body["blacklisted"])

	entry, err := h.repo.GetBlacklistEntry(context.Background(), domain.EntityPhone, "+254712345678")
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.True(t, entry.AutoBlocked)

	require.Len(t, h.sender.msgs, 1)
	assert.Contains(t, h.sender.msgs[0], "HIGH RISK")
	h.intake.Wait()
}

func TestWebhook_ReplayRejected(t *testing.T) {
	h := newHarness(t, options{})
	form := webhookForm("ATXid_replay", scamText)

	require.Equal(t, http.StatusOK, h.post(form, true).Code)

	rec := h.post(form, true)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "duplicate request", decode(t, rec)["message"])
	assert.Equal(t, 1, h.scorer.Calls())
}

func TestWebhook_GateRejections(t *testing.T) {
	cases := []struct {
		Name       string
		Signed     bool
		RemoteAddr string
		Want       int
		Reason     string
	}{
		{"unsigned", false, "", http.StatusUnauthorized, "unauthorized"},
		{"outside allow-list", true, "203.0.113.9:4000", http.StatusForbidden, "forbidden"},
	}

	for _, tc := range cases {
		t.Run(tc.Name, func(t *testing.T) {
			h := newHarness(t, options{})
			form := webhookForm("ATXid_"+tc.Name, scamText)

			req := httptest.NewRequest(http.MethodPost, "/webhook/sms", strings.NewReader(form.Encode()))
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
			if tc.Signed {
				req.Header.Set("X-Webhook-Signature", "sha256="+security.Sign(security.CanonicalPayload(form, nil), secret))
			}
			if tc.RemoteAddr != "" {
				req.RemoteAddr = tc.RemoteAddr
			}
			rec := httptest.NewRecorder()
			h.router.ServeHTTP(rec, req)

			assert.Equal(t, tc.Want, rec.Code)
			assert.Equal(t, tc.Reason, decode(t, rec)["message"])
			assert.Zero(t, h.scorer.Calls())
			assert.Empty(t, h.sender.msgs)
		})
	}
}

func TestWebhook_RateLimited(t *testing.T) {
	h := newHarness(t, options{perMinute: 2})

	assert.Equal(t, http.StatusOK, h.post(webhookForm("a", scamText), true).Code)
	assert.Equal(t, http.StatusOK, h.post(webhookForm("b", scamText), true).Code)

	rec := h.post(webhookForm("c", scamText), true)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "rate limited", decode(t, rec)["message"])
}

func TestWebhook_StoreFailureIsInternalError(t *testing.T) {
	h := newHarness(t, options{nonces: failingNonceStore{}})

	rec := h.post(webhookForm("x", scamText), true)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "internal server error", decode(t, rec)["message"])
	assert.NotContains(t, rec.Body.String(), "redis")
}

func TestWebhook_ReportSaveFailureIsInternalError(t *testing.T) {
	h := newHarness(t, options{readOnly: true})

	rec := h.post(webhookForm("ATXid_ro", scamText), true)
	h.intake.Wait()

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "internal server error", decode(t, rec)["message"])
	assert.NotContains(t, rec.Body.String(), "read-only")
	assert.Empty(t, h.sender.msgs)
	assert.Equal(t, 1, h.scorer.Calls())
}

func TestWebhook_RepeatReportCountsHit(t *testing.T) {
	h := newHarness(t, options{})

	require.Equal(t, http.StatusOK, h.post(webhookForm("ATXid_r1", scamText), true).Code)
	rec := h.post(webhookForm("ATXid_r2", scamText), true)
	h.intake.Wait()

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, service.ActionBlacklisted, decode(t, rec)["action"])
	entry, err := h.repo.GetBlacklistEntry(context.Background(), domain.EntityPhone, "+254712345678")
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, 2, entry.HitCount)
	assert.Equal(t, 1, h.scorer.Calls())
}

func TestWebhook_Validation(t *testing.T) {
	h := newHarness(t, options{})

	form := webhookForm("v1", "")
	rec := h.post(form, true)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "SMS text is required", decode(t, rec)["message"])

	form = webhookForm("v2", "<script>alert(1)</script> 0712345678")
	assert.Equal(t, http.StatusBadRequest, h.post(form, true).Code)
	assert.Zero(t, h.scorer.Calls())
}

func TestWebhook_MissingSender(t *testing.T) {
	h := newHarness(t, options{})

	rec := h.post(webhookForm("m1", "I got a weird message asking for my PIN"), true)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, service.ActionMissingSender, decode(t, rec)["action"])
	assert.Zero(t, h.scorer.Calls())
	require.Len(t, h.sender.msgs, 1)
}

func TestWebhook_BodyTooLarge(t *testing.T) {
	h := newHarness(t, options{})
	req := httptest.NewRequest(http.MethodPost, "/webhook/sms", strings.NewReader("text="+strings.Repeat("a", 70<<10)))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	h.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHealth(t *testing.T) {
	h := newHarness(t, options{})
	rec := httptest.NewRecorder()
	h.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "healthy", decode(t, rec)["status"])
}

func adminRequest(method, target, body string, withKey bool) *http.Request {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if withKey {
		req.Header.Set("X-API-Key", masterKey)
	}
	return req
}

func TestAdmin_RequiresKey(t *testing.T) {
	h := newHarness(t, options{})
	rec := httptest.NewRecorder()
	h.router.ServeHTTP(rec, adminRequest(http.MethodGet, "/v1/blacklist/phone/0712345678", "", false))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAdmin_BlacklistRoundTrip(t *testing.T) {
	h := newHarness(t, options{})

	rec := httptest.NewRecorder()
	h.router.ServeHTTP(rec, adminRequest(http.MethodGet, "/v1/blacklist/phone/0712345678", "", true))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = httptest.NewRecorder()
	h.router.ServeHTTP(rec, adminRequest(http.MethodPost, "/v1/blacklist",
		`{"entity_type":"url","entity_value":"https://kra-refund.cc/claim"}`, true))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, true, decode(t, rec)["auto_blocked"])

	rec = httptest.NewRecorder()
	h.router.ServeHTTP(rec, adminRequest(http.MethodGet,
		"/v1/blacklist/url/"+url.PathEscape("https://kra-refund.cc/claim"), "", true))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "Manually blocked by administrator", decode(t, rec)["reason"])
}

func TestAdmin_BlacklistValidation(t *testing.T) {
	h := newHarness(t, options{})

	for _, body := range []string{
		`{"entity_type":"email","entity_value":"a@b.c"}`,
		`{"entity_type":"url","entity_value":"ftp://x"}`,
		`{"entity_type":"phone","entity_value":"12"}`,
		`not json`,
	} {
		rec := httptest.NewRecorder()
		h.router.ServeHTTP(rec, adminRequest(http.MethodPost, "/v1/blacklist", body, true))
		assert.Equal(t, http.StatusBadRequest, rec.Code, body)
	}
}

func TestAdmin_Subscribe(t *testing.T) {
	h := newHarness(t, options{})

	rec := httptest.NewRecorder()
	h.router.ServeHTTP(rec, adminRequest(http.MethodPost, "/v1/subscribers", `{"phone_number":"0722000111","region":"Nairobi"}`, true))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	subs, err := h.repo.ListSubscribers(context.Background(), "")
	require.NoError(t, err)
	require.Len(t, subs, 1)
	assert.Equal(t, domain.Phone("+254722000111"), subs[0].Phone)
}
