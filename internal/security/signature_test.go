package security_test

import (
	"net/http"
	"net/url"
	"strings"
	"testing"

	"github.com/rgdevment/sms-firewall/internal/security"
	"github.com/stretchr/testify/assert"
)

const testSecret = "s3cr3t"

func TestVerify(t *testing.T) {
	payload := "from=+254712345678&text=hello&to=22384"
	good := security.Sign(payload, testSecret)

	flipped := []byte(good)
	if flipped[0] == 'a' {
		flipped[0] = 'b'
	} else {
		flipped[0] = 'a'
	}

	cases := []struct {
		name   string
		sig    string
		secret string
		want   bool
	}{
		{"valid", good, testSecret, true},
		{"valid with prefix", "sha256=" + good, testSecret, true},
		{"valid upper-case hex", strings.ToUpper(good), testSecret, true},
		{"one char changed", string(flipped), testSecret, false},
		{"wrong secret", security.Sign(payload, "other"), testSecret, false},
		{"missing signature", "", testSecret, false},
		{"no secret configured", "", "", true},
		{"garbage", "zz", testSecret, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, security.Verify(tc.sig, payload, tc.secret))
		})
	}
}

func TestExtractSignature_Priority(t *testing.T) {
	h := http.Header{}
	h.Set("Authorization", "Bearer bearer-sig")
	assert.Equal(t, "bearer-sig", security.ExtractSignature(h))

	h.Set("X-Signature", "plain")
	assert.Equal(t, "plain", security.ExtractSignature(h))

	h.Set("X-Webhook-Signature", "webhook")
	assert.Equal(t, "webhook", security.ExtractSignature(h))

	h.Set("X-Africas-Talking-Signature", "at")
	assert.Equal(t, "at", security.ExtractSignature(h))

	assert.Empty(t, security.ExtractSignature(http.Header{"Authorization": {"Basic abc"}}))
}

func TestCanonicalPayload(t *testing.T) {
	form := url.Values{}
	form.Set("to", "22384")
	form.Set("from", "+254712345678")
	form.Set("text", "win a prize & more")

	assert.Equal(t, "from=+254712345678&text=win a prize & more&to=22384",
		security.CanonicalPayload(form, []byte("ignored")))
	assert.Equal(t, `{"a":1}`, security.CanonicalPayload(nil, []byte(`{"a":1}`)))
}
