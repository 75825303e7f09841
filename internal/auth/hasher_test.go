package auth

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashAndVerify(t *testing.T) {
	h := NewHasher(false)

	phc, err := h.Hash("correct horse battery staple")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(phc, "$argon2id$"))

	ok, err := h.Verify("correct horse battery staple", phc)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = h.Verify("wrong password", phc)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestHashesAreSalted(t *testing.T) {
	h := NewHasher(false)
	a, err := h.Hash("same password")
	require.NoError(t, err)
	b, err := h.Hash("same password")
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestVerifyHonoursEmbeddedParams(t *testing.T) {
	// A hash cut at a higher time cost still verifies through a fast hasher.
	slow := &Hasher{time: 3}
	phc, err := slow.Hash("pw")
	require.NoError(t, err)

	fast := NewHasher(false)
	ok, err := fast.Verify("pw", phc)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestVerifyMalformedHash(t *testing.T) {
	h := NewHasher(false)
	for _, hash := range []string{
		"",
		"not a hash",
		"$argon2i$v=19$m=4096,t=1,p=1$c2FsdA$aGFzaA",
		"$argon2id$v=19$m=4096,t=1,p=1$!!!$aGFzaA",
		"$argon2id$v=19$bogus$c2FsdA$aGFzaA",
	} {
		_, err := h.Verify("pw", hash)
		assert.ErrorIs(t, err, ErrMalformedHash, "hash %q", hash)
	}
}
