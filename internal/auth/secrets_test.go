package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenHex(t *testing.T) {
	for _, n := range []int{4, 8, 16, 128} {
		s, err := GenHex(n)
		require.NoError(t, err)
		assert.True(t, IsHexOfLen(s, n), "GenHex(%d) = %q", n, s)
	}
}

func TestGenerateBackupCodes(t *testing.T) {
	codes, err := GenerateBackupCodes(10)
	require.NoError(t, err)
	require.Len(t, codes, 10)

	seen := make(map[string]struct{}, len(codes))
	for _, code := range codes {
		assert.True(t, IsHexOfLen(code, 16))
		// Codes come back in the same upper-cased form ParseToken produces.
		tok, ok := ParseToken(code)
		require.True(t, ok)
		assert.Equal(t, TokenBackup, tok.Kind())
		assert.Equal(t, code, tok.String())
		seen[code] = struct{}{}
	}
	assert.Len(t, seen, len(codes))
}

func TestSecureCompare(t *testing.T) {
	assert.True(t, SecureCompare("invite", "invite"))
	assert.False(t, SecureCompare("invite", "Invite"))
	assert.False(t, SecureCompare("", "invite"))
}
