package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateTOTPSecretShape(t *testing.T) {
	secret, err := GenerateTOTPSecret()
	require.NoError(t, err)
	assert.True(t, IsHexOfLen(secret, 32))
}

func TestTOTPBase32(t *testing.T) {
	// 16 bytes of 0x00 encode to 26 base32 chars, no padding.
	b32, err := TOTPBase32("00000000000000000000000000000000")
	require.NoError(t, err)
	assert.Len(t, b32, 26)
	assert.NotContains(t, b32, "=")

	_, err = TOTPBase32("not-hex")
	assert.Error(t, err)
}

func TestTOTPRoundTrip(t *testing.T) {
	secret, err := GenerateTOTPSecret()
	require.NoError(t, err)

	token, err := GenerateTOTP(secret)
	require.NoError(t, err)
	require.Len(t, token, 6)

	ok, err := VerifyTOTP(token, secret)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = VerifyTOTP("000000", secret)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestVerifyTOTPWrongSecret(t *testing.T) {
	first, err := GenerateTOTPSecret()
	require.NoError(t, err)
	second, err := GenerateTOTPSecret()
	require.NoError(t, err)

	token, err := GenerateTOTP(first)
	require.NoError(t, err)

	ok, err := VerifyTOTP(token, second)
	require.NoError(t, err)
	assert.False(t, ok)
}
