package http

import (
	"encoding/json"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"
	"github.com/rgdevment/sms-firewall/internal/domain"
	"go.uber.org/zap"
)

func (h *Handler) GetBlacklistEntry(w http.ResponseWriter, r *http.Request) {
	t, err := domain.ParseEntityType(chi.URLParam(r, "type"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "entity type must be 'phone' or 'url'")
		return
	}
	rawValue, err := url.PathUnescape(chi.URLParam(r, "value"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid entity value")
		return
	}
	value, err := domain.CanonicalEntity(t, rawValue)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	entry, err := h.repo.GetBlacklistEntry(r.Context(), t, value)
	if err != nil {
		h.logger.Error("blacklist lookup failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	if entry == nil {
		writeError(w, http.StatusNotFound, "not blacklisted")
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

// AddBlacklistEntry records a manual block. It counts as one more hit and
// always sets AutoBlocked so the entry is enforced.
func (h *Handler) AddBlacklistEntry(w http.ResponseWriter, r *http.Request) {
	var req BlacklistRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 16<<10)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON format")
		return
	}
	t, value, err := req.Validate()
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	reason := req.Reason
	if reason == "" {
		reason = "Manually blocked by administrator"
	}

	entry, err := h.repo.UpsertBlacklist(r.Context(), t, value, true, reason)
	if err != nil {
		h.logger.Error("manual blacklist failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	h.logger.Info("manual blacklist entry",
		zap.String("type", string(t)),
		zap.Int("hit_count", entry.HitCount),
	)
	writeJSON(w, http.StatusCreated, entry)
}

func (h *Handler) Subscribe(w http.ResponseWriter, r *http.Request) {
	var req SubscribeRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 4<<10)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON format")
		return
	}
	phone, err := req.Validate()
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	sub := &domain.Subscriber{Phone: phone, Region: req.Region, Active: true}
	if err := h.repo.AddSubscriber(r.Context(), sub); err != nil {
		h.logger.Error("subscribe failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	writeJSON(w, http.StatusCreated, sub)
}
