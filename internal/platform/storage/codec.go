// Package storage holds what the SQL-backed repositories share.
package storage

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rgdevment/sms-firewall/internal/domain"
)

// ErrNotFound is returned by lookups that require a row.
var ErrNotFound = errors.New("storage: not found")

// EncodeAnalysis serializes an analysis for a JSON/TEXT column.
func EncodeAnalysis(a *domain.Analysis) (string, error) {
	if a == nil {
		return "", nil
	}
	b, err := json.Marshal(a)
	if err != nil {
		return "", fmt.Errorf("encode analysis: %w", err)
	}
	return string(b), nil
}

// DecodeAnalysis is the inverse of EncodeAnalysis. An empty column is nil.
func DecodeAnalysis(raw string) (*domain.Analysis, error) {
	if raw == "" {
		return nil, nil
	}
	var a domain.Analysis
	if err := json.Unmarshal([]byte(raw), &a); err != nil {
		return nil, fmt.Errorf("decode analysis: %w", err)
	}
	return &a, nil
}

// EncodeStrings stores a string list as a JSON array.
func EncodeStrings(in []string) (string, error) {
	if in == nil {
		in = []string{}
	}
	b, err := json.Marshal(in)
	if err != nil {
		return "", fmt.Errorf("encode list: %w", err)
	}
	return string(b), nil
}

// DecodeStrings is the inverse of EncodeStrings.
func DecodeStrings(raw string) ([]string, error) {
	if raw == "" {
		return []string{}, nil
	}
	var out []string
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, fmt.Errorf("decode list: %w", err)
	}
	return out, nil
}

// PhoneStrings converts phones for list storage.
func PhoneStrings(in []domain.Phone) []string {
	out := make([]string, len(in))
	for i, p := range in {
		out[i] = p.String()
	}
	return out
}

// Phones is the inverse of PhoneStrings.
func Phones(in []string) []domain.Phone {
	out := make([]domain.Phone, len(in))
	for i, s := range in {
		out[i] = domain.Phone(s)
	}
	return out
}
