package domain_test

import (
	"testing"

	"github.com/rgdevment/sms-firewall/internal/domain"
	"github.com/stretchr/testify/assert"
)

func TestNormalizeAcceptedShapes(t *testing.T) {
	const want = domain.Phone("+254712345678")

	cases := []struct {
		Name string
		Raw  string
	}{
		{"international", "+254712345678"},
		{"country code without plus", "254712345678"},
		{"national trunk", "0712345678"},
		{"bare subscriber", "712345678"},
		{"double prefix", "+2540712345678"},
		{"double prefix without plus", "2540712345678"},
		{"spaces and dashes", " +254 712-345-678 "},
		{"parentheses", "(0712) 345 678"},
		{"embedded plus dropped", "0712+345678+"},
	}

	for _, tc := range cases {
		t.Run(tc.Name, func(t *testing.T) {
			assert.Equal(t, want, domain.Normalize(tc.Raw))
		})
	}
}

func TestNormalizeAirtelPrefix(t *testing.T) {
	assert.Equal(t, domain.Phone("+254112345678"), domain.Normalize("0112345678"))
	assert.Equal(t, domain.Phone("+254112345678"), domain.Normalize("112345678"))
}

func TestNormalizeRejects(t *testing.T) {
	cases := []struct {
		Name string
		Raw  string
	}{
		{"empty", ""},
		{"only symbols", "+-()"},
		{"landline leading digit", "0202345678"},
		{"non mobile bare", "812345678"},
		{"non mobile international", "+254812345678"},
		{"foreign country code", "+256712345678"},
		{"too short", "07123456"},
		{"too long", "07123456789"},
		{"letters only", "call me"},
	}

	for _, tc := range cases {
		t.Run(tc.Name, func(t *testing.T) {
			p := domain.Normalize(tc.Raw)
			assert.False(t, p.Valid(), "expected %q to be rejected, got %q", tc.Raw, p)
		})
	}
}

func TestPhoneMasked(t *testing.T) {
	assert.Equal(t, "+2547****5678", domain.Phone("+254712345678").Masked())
	assert.Equal(t, "****", domain.Phone("").Masked())
}
