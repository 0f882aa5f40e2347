package domain

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"
)

// MaxMessageLength is the default cap on reported message text, in characters.
const MaxMessageLength = 1000

// ValidationError is a client-side input problem. Message is safe to return
// to the caller verbatim.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

var (
	injectionMarkers = []string{"<script", "javascript:", "onerror=", "onload="}
	controlChars     = regexp.MustCompile(`[\x00-\x08\x0B\x0C\x0E-\x1F\x7F]`)
)

// ValidateReporter checks the webhook 'from' field and returns its canonical form.
func ValidateReporter(raw string) (Phone, error) {
	if strings.TrimSpace(raw) == "" {
		return "", &ValidationError{Field: "from", Message: "Phone number is required"}
	}
	p := Normalize(raw)
	if !p.Valid() {
		return "", &ValidationError{Field: "from", Message: "Invalid phone number format"}
	}
	return p, nil
}

// ValidateText rejects empty, oversized or script-bearing message bodies.
func ValidateText(text string, maxLen int) error {
	if maxLen <= 0 {
		maxLen = MaxMessageLength
	}
	if text == "" {
		return &ValidationError{Field: "text", Message: "SMS text is required"}
	}
	if utf8.RuneCountInString(text) > maxLen {
		return &ValidationError{
			Field:   "text",
			Message: fmt.Sprintf("SMS text exceeds maximum length of %d characters", maxLen),
		}
	}
	lower := strings.ToLower(text)
	for _, marker := range injectionMarkers {
		if strings.Contains(lower, marker) {
			return &ValidationError{Field: "text", Message: "SMS contains potentially dangerous content"}
		}
	}
	return nil
}

// Sanitize removes NUL and control characters (newline, tab and CR survive)
// and trims surrounding whitespace.
func Sanitize(text string) string {
	return strings.TrimSpace(controlChars.ReplaceAllString(text, ""))
}
