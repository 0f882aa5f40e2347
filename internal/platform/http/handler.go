package http

import (
	"bytes"
	"errors"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"
	"github.com/rgdevment/sms-firewall/internal/domain"
	"github.com/rgdevment/sms-firewall/internal/platform/http/middleware"
	"github.com/rgdevment/sms-firewall/internal/platform/metrics"
	"github.com/rgdevment/sms-firewall/internal/security"
	"github.com/rgdevment/sms-firewall/internal/service"
	"go.uber.org/zap"
)

// maxWebhookBody bounds the inbound form.
const maxWebhookBody = 64 << 10

type Handler struct {
	gate      *security.Gate
	intake    service.Intake
	repo      service.Repository
	masterKey string
	logger    *zap.Logger
}

func NewHandler(gate *security.Gate, intake service.Intake, repo service.Repository, masterKey string, logger *zap.Logger) *Handler {
	return &Handler{
		gate:      gate,
		intake:    intake,
		repo:      repo,
		masterKey: masterKey,
		logger:    logger,
	}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/health", h.Health)
	r.Handle("/metrics", metrics.Handler())
	r.Post("/webhook/sms", h.Webhook)

	r.Group(func(r chi.Router) {
		r.Use(httprate.LimitByIP(100, time.Minute))
		r.Use(middleware.APIKeyAuth(h.masterKey))

		r.Get("/v1/blacklist/{type}/{value}", h.GetBlacklistEntry)
		r.Post("/v1/blacklist", h.AddBlacklistEntry)
		r.Post("/v1/subscribers", h.Subscribe)
	})
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{Status: "healthy", Service: "sms-firewall"})
}

// Webhook is the inbound SMS callback. It admits the request through the
// gate, then hands the form to the intake pipeline.
func (h *Handler) Webhook(w http.ResponseWriter, r *http.Request) {
	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}
	r.Body = io.NopCloser(bytes.NewReader(raw))
	if err := r.ParseForm(); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	req := &security.Request{
		ClientIP: clientIP(r),
		Header:   r.Header,
		Form:     r.PostForm,
		RawBody:  raw,
	}
	if err := h.gate.Admit(r.Context(), req); err != nil {
		var rej *security.Rejection
		if errors.As(err, &rej) {
			metrics.RecordGateRejection(rej.Stage)
			writeError(w, rej.Status, rej.Reason)
			return
		}
		h.logger.Error("security gate failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	out, err := h.intake.Process(r.Context(), service.Submission{
		From: r.PostForm.Get("from"),
		Text: r.PostForm.Get("text"),
		To:   r.PostForm.Get("to"),
	})
	if err != nil {
		var verr *domain.ValidationError
		if errors.As(err, &verr) {
			writeError(w, http.StatusBadRequest, verr.Message)
			return
		}
		h.logger.Error("failed to process report", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	writeJSON(w, http.StatusOK, out)
}

// clientIP is the peer address. When proxy headers are trusted, chi's
// RealIP middleware has already rewritten RemoteAddr.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
