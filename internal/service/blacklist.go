package service

import (
	"context"
	"fmt"

	"github.com/rgdevment/sms-firewall/internal/domain"
	"github.com/rgdevment/sms-firewall/internal/platform/metrics"
	"go.uber.org/zap"
)

// Default auto-block thresholds. URLs need a higher score than phones.
const (
	DefaultPhoneThreshold = 8
	DefaultURLThreshold   = 9
)

// Decision records which entities a report got auto-blocked.
type Decision struct {
	PhoneBlocked bool
	URLBlocked   bool
	BlockedURL   string
}

// Any reports whether something was blocked.
func (d Decision) Any() bool { return d.PhoneBlocked || d.URLBlocked }

// BlacklistEngine reads and writes the community blacklist.
type BlacklistEngine struct {
	repo           Repository
	phoneThreshold int
	urlThreshold   int
	logger         *zap.Logger
}

func NewBlacklistEngine(repo Repository, phoneThreshold, urlThreshold int, logger *zap.Logger) *BlacklistEngine {
	if phoneThreshold <= 0 {
		phoneThreshold = DefaultPhoneThreshold
	}
	if urlThreshold <= 0 {
		urlThreshold = DefaultURLThreshold
	}
	return &BlacklistEngine{
		repo:           repo,
		phoneThreshold: phoneThreshold,
		urlThreshold:   urlThreshold,
		logger:         logger,
	}
}

// IsBlacklisted is a read with no side effects.
func (e *BlacklistEngine) IsBlacklisted(ctx context.Context, t domain.EntityType, value string) (bool, error) {
	if value == "" {
		return false, nil
	}
	listed, err := e.repo.IsBlacklisted(ctx, t, value)
	if err != nil {
		return false, fmt.Errorf("blacklist lookup %s: %w", t, err)
	}
	return listed, nil
}

// AnyBlacklisted checks the sender and every URL, stopping at the first hit.
// It returns the matched entity so the caller can record the repeat.
func (e *BlacklistEngine) AnyBlacklisted(ctx context.Context, sender domain.Phone, urls []string) (domain.EntityType, string, bool, error) {
	if sender != "" {
		listed, err := e.IsBlacklisted(ctx, domain.EntityPhone, sender.String())
		if err != nil || listed {
			return domain.EntityPhone, sender.String(), listed, err
		}
	}
	for _, u := range urls {
		listed, err := e.IsBlacklisted(ctx, domain.EntityURL, u)
		if err != nil || listed {
			return domain.EntityURL, u, listed, err
		}
	}
	return "", "", false, nil
}

// RecordHit upserts one hit against an entity. It never downgrades an
// existing entry.
func (e *BlacklistEngine) RecordHit(ctx context.Context, t domain.EntityType, value string, autoBlocked bool, reason string) (*domain.BlacklistEntry, error) {
	entry, err := e.repo.UpsertBlacklist(ctx, t, value, autoBlocked, reason)
	if err != nil {
		return nil, fmt.Errorf("blacklist upsert %s: %w", t, err)
	}
	return entry, nil
}

// ApplyThresholds is the auto-block policy. An empty candidate is never
// blocked.
func ApplyThresholds(score int, phone domain.Phone, url string, phoneThreshold, urlThreshold int) (phoneBlocked, urlBlocked bool) {
	phoneBlocked = phone != "" && score >= phoneThreshold
	urlBlocked = url != "" && score >= urlThreshold
	return phoneBlocked, urlBlocked
}

// AutoBlockReason is the reason stored on auto-blocked entries.
func AutoBlockReason(score int) string {
	return fmt.Sprintf("Auto-blocked due to high danger score: %d/10", score)
}

// Enforce applies the thresholds to a scored report and records a hit for
// each entity that crossed its threshold. Only the first URL is a candidate.
// A failed upsert leaves that entity unblocked in the decision and is
// returned alongside it.
func (e *BlacklistEngine) Enforce(ctx context.Context, score int, sender domain.Phone, urls []string) (Decision, error) {
	var firstURL string
	if len(urls) > 0 {
		firstURL = urls[0]
	}

	phoneHit, urlHit := ApplyThresholds(score, sender, firstURL, e.phoneThreshold, e.urlThreshold)
	reason := AutoBlockReason(score)

	var d Decision
	var firstErr error

	if phoneHit {
		if _, err := e.RecordHit(ctx, domain.EntityPhone, sender.String(), true, reason); err != nil {
			firstErr = err
		} else {
			d.PhoneBlocked = true
			metrics.RecordAutoBlock(string(domain.EntityPhone))
			e.logger.Info("auto-blacklisted phone",
				zap.String("phone", sender.Masked()),
				zap.Int("score", score),
			)
		}
	}

	if urlHit {
		if _, err := e.RecordHit(ctx, domain.EntityURL, firstURL, true, reason); err != nil {
			if firstErr == nil {
				firstErr = err
			}
		} else {
			d.URLBlocked = true
			d.BlockedURL = firstURL
			metrics.RecordAutoBlock(string(domain.EntityURL))
			e.logger.Info("auto-blacklisted url",
				zap.String("url", firstURL),
				zap.Int("score", score),
			)
		}
	}

	return d, firstErr
}
