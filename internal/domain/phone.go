package domain

import (
	"regexp"
	"strings"

	"github.com/nyaruka/phonenumbers"
)

const (
	// CountryCode is the calling code every accepted number is anchored to.
	CountryCode = "254"
	// Region is the ISO 3166-1 alpha-2 region used for phonenumbers formatting.
	Region = "KE"

	subscriberLen = 9
)

// Phone is a mobile number in canonical E.164 form (+2547XXXXXXXX).
// The zero value is the invalid sentinel returned by Normalize.
type Phone string

var nonDialable = regexp.MustCompile(`[^\d+]`)

// Normalize canonicalizes a raw phone string. Accepted shapes, after stripping
// everything but digits and a leading '+':
//
//	+254XXXXXXXXX   international
//	254XXXXXXXXX    country code without '+'
//	0XXXXXXXXX      national with trunk prefix
//	XXXXXXXXX       bare subscriber number
//	+2540XXXXXXXXX  double prefix, corrected
//
// The subscriber number must start with 7 or 1. Anything else yields "".
func Normalize(raw string) Phone {
	cleaned := nonDialable.ReplaceAllString(strings.TrimSpace(raw), "")
	if cleaned == "" {
		return ""
	}

	international := cleaned[0] == '+'
	digits := strings.ReplaceAll(cleaned, "+", "")

	var subscriber string
	switch {
	case international:
		if !strings.HasPrefix(digits, CountryCode) {
			return ""
		}
		subscriber = stripTrunk(digits[len(CountryCode):])
	case strings.HasPrefix(digits, CountryCode) && len(digits) >= len(CountryCode)+subscriberLen:
		subscriber = stripTrunk(digits[len(CountryCode):])
	case len(digits) == subscriberLen+1 && digits[0] == '0':
		subscriber = digits[1:]
	default:
		subscriber = digits
	}

	if len(subscriber) != subscriberLen || !isMobilePrefix(subscriber[0]) {
		return ""
	}

	num, err := phonenumbers.Parse("+"+CountryCode+subscriber, Region)
	if err != nil {
		return ""
	}
	return Phone(phonenumbers.Format(num, phonenumbers.E164))
}

// stripTrunk drops the trunk '0' that some senders keep after the country code.
func stripTrunk(rest string) string {
	if len(rest) == subscriberLen+1 && rest[0] == '0' {
		return rest[1:]
	}
	return rest
}

func isMobilePrefix(b byte) bool {
	return b == '7' || b == '1'
}

// Valid reports whether p holds a canonical number.
func (p Phone) Valid() bool { return p != "" }

func (p Phone) String() string { return string(p) }

// Masked hides the middle digits so numbers can be logged.
func (p Phone) Masked() string {
	s := string(p)
	if len(s) < 10 {
		return "****"
	}
	return s[:5] + strings.Repeat("*", len(s)-9) + s[len(s)-4:]
}
