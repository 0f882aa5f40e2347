package http

import (
	"errors"
	"strings"

	"github.com/rgdevment/sms-firewall/internal/domain"
)

type errorResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

type healthResponse struct {
	Status  string `json:"status"`
	Service string `json:"service"`
}

// BlacklistRequest is a manual blacklist entry from the admin API.
type BlacklistRequest struct {
	EntityType  string `json:"entity_type"`
	EntityValue string `json:"entity_value"`
	Reason      string `json:"reason"`
}

// Validate checks the request and returns the canonical entity.
func (r *BlacklistRequest) Validate() (domain.EntityType, string, error) {
	t, err := domain.ParseEntityType(strings.ToLower(r.EntityType))
	if err != nil {
		return "", "", errors.New("entity_type must be 'phone' or 'url'")
	}
	value, err := domain.CanonicalEntity(t, r.EntityValue)
	if err != nil {
		return "", "", err
	}
	if len(r.Reason) > 500 {
		return "", "", errors.New("reason is too long")
	}
	return t, value, nil
}

// SubscribeRequest opts a phone in to bulk alerts.
type SubscribeRequest struct {
	PhoneNumber string `json:"phone_number"`
	Region      string `json:"region"`
}

func (r *SubscribeRequest) Validate() (domain.Phone, error) {
	p := domain.Normalize(r.PhoneNumber)
	if !p.Valid() {
		return "", errors.New("invalid Kenyan phone number")
	}
	if len(r.Region) > 64 {
		return "", errors.New("region is too long")
	}
	return p, nil
}
