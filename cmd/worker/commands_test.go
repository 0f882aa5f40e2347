package main

import (
	"bytes"
	"net/url"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rgdevment/sms-firewall/internal/security"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestSignCmd(t *testing.T) {
	out, err := execute(t, "sign", "--secret", "s3cr3t", "--field", "text=hi there", "--field", "from=0712345678")
	require.NoError(t, err)

	form := url.Values{"from": {"0712345678"}, "text": {"hi there"}}
	assert.Equal(t, security.Sign(security.CanonicalPayload(form, nil), "s3cr3t"), strings.TrimSpace(out))
}

func TestSignCmd_Errors(t *testing.T) {
	t.Setenv("AT_WEBHOOK_SECRET", "")

	_, err := execute(t, "sign", "--field", "a=b")
	assert.Error(t, err)

	_, err = execute(t, "sign", "--secret", "x", "--field", "novalue")
	assert.Error(t, err)
}

func TestBlacklistAddThenCheck(t *testing.T) {
	t.Setenv("STORAGE_BACKEND", "sqlite")
	t.Setenv("SQLITE_PATH", filepath.Join(t.TempDir(), "worker.db"))
	t.Setenv("LOG_LEVEL", "error")

	out, err := execute(t, "blacklist", "check", "phone", "0712345678")
	require.NoError(t, err)
	assert.Contains(t, out, "not blacklisted")

	out, err = execute(t, "blacklist", "add", "phone", "0712345678", "--reason", "fake reversal")
	require.NoError(t, err)
	assert.Contains(t, out, "+254712345678 blocked (hits=1)")

	out, err = execute(t, "blacklist", "check", "phone", "+254712345678")
	require.NoError(t, err)
	assert.Contains(t, out, "auto_blocked=true")
	assert.Contains(t, out, `reason="fake reversal"`)
}

func TestBlacklist_InvalidEntity(t *testing.T) {
	_, err := execute(t, "blacklist", "add", "email", "a@b.c")
	assert.Error(t, err)

	_, err = execute(t, "blacklist", "check", "url", "not-a-url")
	assert.Error(t, err)
}

func TestCampaignsCmd_EmptyStore(t *testing.T) {
	t.Setenv("STORAGE_BACKEND", "sqlite")
	t.Setenv("SQLITE_PATH", filepath.Join(t.TempDir(), "worker.db"))
	t.Setenv("LOG_LEVEL", "error")

	out, err := execute(t, "campaigns")
	require.NoError(t, err)
	assert.Contains(t, out, "0 campaign(s)")
}
