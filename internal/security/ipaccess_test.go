package security_test

import (
	"testing"

	"github.com/rgdevment/sms-firewall/internal/security"
	"github.com/stretchr/testify/assert"
)

func TestIsAllowed(t *testing.T) {
	allow := []string{"41.90.64.0/24", "196.201.214.7", "2001:db8::/32", "not-an-ip", ""}

	cases := []struct {
		name string
		ip   string
		want bool
	}{
		{"inside CIDR", "41.90.64.10", true},
		{"CIDR boundary", "41.90.64.255", true},
		{"outside CIDR", "41.90.65.1", false},
		{"exact match", "196.201.214.7", true},
		{"exact neighbour", "196.201.214.8", false},
		{"public resolver", "8.8.8.8", false},
		{"ipv6 in range", "2001:db8::1", true},
		{"ipv4-mapped ipv6", "::ffff:41.90.64.10", true},
		{"bracketed", "[2001:db8::2]", true},
		{"malformed client", "999.1.1.1", false},
		{"empty client", "", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, security.IsAllowed(tc.ip, allow))
		})
	}
}

func TestIsAllowed_EmptyList(t *testing.T) {
	assert.False(t, security.IsAllowed("41.90.64.10", nil))
}

func TestIsAllowed_UnmaskedPrefix(t *testing.T) {
	assert.True(t, security.IsAllowed("10.0.0.200", []string{"10.0.0.17/24"}))
}
