package auth

import (
	"net/url"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func codeAt(t *testing.T, secret string, at time.Time) string {
	t.Helper()
	code, err := totp.GenerateCodeCustom(secret, at, totp.ValidateOpts{
		Period:    totpPeriod,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
	require.NoError(t, err)
	return code
}

func TestTOTPManager_Window(t *testing.T) {
	// Mid-step so that ±N steps stay unambiguous.
	now := time.Date(2026, 5, 1, 12, 0, 15, 0, time.UTC)
	clock := clockwork.NewFakeClockAt(now)
	m := NewTOTPManager("PropTradePro", 1, clock)

	secret, err := m.GenerateSecret()
	require.NoError(t, err)
	require.Len(t, secret, 32)

	step := totpPeriod * time.Second
	assert.True(t, m.Verify(secret, codeAt(t, secret, now)))
	assert.True(t, m.Verify(secret, codeAt(t, secret, now.Add(step))))
	assert.True(t, m.Verify(secret, codeAt(t, secret, now.Add(-step))))
	assert.False(t, m.Verify(secret, codeAt(t, secret, now.Add(2*step))))
	assert.False(t, m.Verify(secret, codeAt(t, secret, now.Add(-2*step))))
}

func TestTOTPManager_RejectsGarbage(t *testing.T) {
	m := NewTOTPManager("PropTradePro", 1, clockwork.NewFakeClock())
	secret, err := m.GenerateSecret()
	require.NoError(t, err)

	assert.False(t, m.Verify(secret, ""))
	assert.False(t, m.Verify(secret, "12345"))
	assert.False(t, m.Verify(secret, "abcdef"))
	assert.False(t, m.Verify("", "123456"))
}

func TestTOTPManager_SecretsAreFresh(t *testing.T) {
	m := NewTOTPManager("PropTradePro", 1, nil)
	a, err := m.GenerateSecret()
	require.NoError(t, err)
	b, err := m.GenerateSecret()
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestTOTPManager_ProvisioningURI(t *testing.T) {
	m := NewTOTPManager("PropTradePro", 1, nil)
	secret, err := m.GenerateSecret()
	require.NoError(t, err)

	uri, err := m.ProvisioningURI(secret, "a@x.com")
	require.NoError(t, err)

	again, err := m.ProvisioningURI(secret, "a@x.com")
	require.NoError(t, err)
	assert.Equal(t, uri, again, "formatting is deterministic")

	parsed, err := url.Parse(uri)
	require.NoError(t, err)
	assert.Equal(t, "otpauth", parsed.Scheme)
	assert.Equal(t, "totp", parsed.Host)
	assert.Equal(t, secret, parsed.Query().Get("secret"))
	assert.Equal(t, "PropTradePro", parsed.Query().Get("issuer"))

	_, err = m.ProvisioningURI("not base32 !!", "a@x.com")
	require.Error(t, err)
}
