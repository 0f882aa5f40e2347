package security

import (
	"net/netip"
	"strings"
)

// IsAllowed reports whether clientIP matches one of the allow-list entries.
// Entries containing '/' are CIDR blocks; anything else must be the same
// address. A malformed client IP matches nothing and a malformed entry is
// skipped. An empty list allows nothing; whether to consult the list at all
// is the gate's decision.
func IsAllowed(clientIP string, allowList []string) bool {
	addr, err := netip.ParseAddr(strings.Trim(strings.TrimSpace(clientIP), "[]"))
	if err != nil {
		return false
	}
	addr = addr.Unmap()

	for _, entry := range allowList {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		if strings.Contains(entry, "/") {
			prefix, err := netip.ParsePrefix(entry)
			if err != nil {
				continue
			}
			if prefix.Masked().Contains(addr) {
				return true
			}
			continue
		}
		if single, err := netip.ParseAddr(entry); err == nil && single.Unmap() == addr {
			return true
		}
	}
	return false
}
