package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"strings"
)

// GenHex returns n hex characters of cryptographic randomness. n must be
// even.
func GenHex(n int) (string, error) {
	buf := make([]byte, n/2)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("crypto/rand failed: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// GenerateBackupCodes creates count fresh 16-hex-character recovery codes,
// upper-cased to match token normalisation. The raw codes are returned
// once; callers hash them before storage.
func GenerateBackupCodes(count int) ([]string, error) {
	codes := make([]string, count)
	for i := range codes {
		code, err := GenHex(16)
		if err != nil {
			return nil, err
		}
		codes[i] = strings.ToUpper(code)
	}
	return codes, nil
}

// SecureCompare performs a constant-time comparison of two strings, for
// invite codes and other server-held secrets.
func SecureCompare(provided, expected string) bool {
	return subtle.ConstantTimeCompare([]byte(provided), []byte(expected)) == 1
}
