package domain

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"
)

// EntityType is the kind of thing that can be blacklisted.
type EntityType string

const (
	EntityPhone EntityType = "phone"
	EntityURL   EntityType = "url"
)

// ParseEntityType validates a user-supplied entity type.
func ParseEntityType(s string) (EntityType, error) {
	switch EntityType(s) {
	case EntityPhone, EntityURL:
		return EntityType(s), nil
	}
	return "", fmt.Errorf("unknown entity type %q", s)
}

// CanonicalEntity returns the stored form of a user-supplied entity: phones
// are normalized, URLs must be absolute http(s).
func CanonicalEntity(t EntityType, raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if t == EntityPhone {
		p := Normalize(raw)
		if !p.Valid() {
			return "", errors.New("invalid Kenyan phone number")
		}
		return p.String(), nil
	}
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", errors.New("entity value must be an http(s) URL")
	}
	return raw, nil
}

// BlacklistEntry is a community blacklist record. It is unique per
// (EntityType, EntityValue); HitCount only ever grows and AutoBlocked is never
// cleared once set.
type BlacklistEntry struct {
	EntityType  EntityType `json:"entity_type" db:"entity_type"`
	EntityValue string     `json:"entity_value" db:"entity_value"`
	HitCount    int        `json:"hit_count" db:"hit_count"`
	FirstSeen   time.Time  `json:"first_seen" db:"first_seen"`
	LastSeen    time.Time  `json:"last_seen" db:"last_seen"`
	AutoBlocked bool       `json:"auto_blocked" db:"auto_blocked"`
	Reason      string     `json:"reason,omitempty" db:"reason"`
}

// Merge applies one more hit to an existing entry the same way every store
// does: bump the counter, refresh LastSeen, upgrade AutoBlocked and replace the
// reason only when a new one is given.
func (e *BlacklistEntry) Merge(autoBlocked bool, reason string, now time.Time) {
	e.HitCount++
	e.LastSeen = now
	if autoBlocked {
		e.AutoBlocked = true
	}
	if reason != "" {
		e.Reason = reason
	}
}

// NewBlacklistEntry builds the first record for an entity.
func NewBlacklistEntry(t EntityType, value string, autoBlocked bool, reason string, now time.Time) *BlacklistEntry {
	return &BlacklistEntry{
		EntityType:  t,
		EntityValue: value,
		HitCount:    1,
		FirstSeen:   now,
		LastSeen:    now,
		AutoBlocked: autoBlocked,
		Reason:      reason,
	}
}
