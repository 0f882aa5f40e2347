package security

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"net/url"
	"sort"
	"strings"
)

// signatureHeaders are checked in this order; the first non-empty one wins.
// Authorization: Bearer is consulted only after all of them.
var signatureHeaders = []string{
	"X-Africas-Talking-Signature",
	"X-Webhook-Signature",
	"X-Signature",
}

const signaturePrefix = "sha256="

// ExtractSignature finds the request signature in the known header locations.
func ExtractSignature(h http.Header) string {
	for _, name := range signatureHeaders {
		if v := strings.TrimSpace(h.Get(name)); v != "" {
			return v
		}
	}
	if auth := h.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
	}
	return ""
}

// CanonicalPayload rebuilds the signed string. For form bodies the keys are
// sorted and joined as k=v with '&', using the first, unescaped value of each
// key. Without form fields the raw body is used as-is. Senders must build the
// payload the same way.
func CanonicalPayload(form url.Values, raw []byte) string {
	if len(form) == 0 {
		return string(raw)
	}
	keys := make([]string, 0, len(form))
	for k := range form {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+form.Get(k))
	}
	return strings.Join(parts, "&")
}

// Sign computes the hex HMAC-SHA256 of payload.
func Sign(payload, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(payload))
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify checks signature against payload. With no secret configured it
// passes; with a secret but no signature it fails. The comparison is
// constant-time.
func Verify(signature, payload, secret string) bool {
	if secret == "" {
		return true
	}
	if signature == "" {
		return false
	}
	got := strings.ToLower(strings.TrimPrefix(signature, signaturePrefix))
	want := Sign(payload, secret)
	return hmac.Equal([]byte(got), []byte(want))
}
