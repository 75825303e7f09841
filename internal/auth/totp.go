package auth

import (
	"encoding/base32"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

// TOTP parameters: SHA-1, 6 digits, 30-second period, the authenticator
// app defaults.
var totpOpts = totp.ValidateOpts{
	Period:    30,
	Skew:      0,
	Digits:    otp.DigitsSix,
	Algorithm: otp.AlgorithmSHA1,
}

// GenerateTOTPSecret returns a fresh shared secret as 32 hex characters.
// The hex form is what gets persisted; clients receive the base32 form.
func GenerateTOTPSecret() (string, error) {
	return GenHex(32)
}

// TOTPBase32 converts the stored hex secret into the base32 form that
// authenticator apps consume.
func TOTPBase32(hexSecret string) (string, error) {
	raw, err := hex.DecodeString(hexSecret)
	if err != nil {
		return "", fmt.Errorf("totp secret is not hex: %w", err)
	}
	return base32.StdEncoding.WithPadding(base32.NoPadding).EncodeToString(raw), nil
}

// VerifyTOTP checks token against the current 30-second window of the
// stored hex secret.
func VerifyTOTP(token, hexSecret string) (bool, error) {
	b32, err := TOTPBase32(hexSecret)
	if err != nil {
		return false, err
	}
	return totp.ValidateCustom(token, b32, time.Now().UTC(), totpOpts)
}

// GenerateTOTP produces the current token for the stored hex secret.
// Used by tests and the setup verification flow.
func GenerateTOTP(hexSecret string) (string, error) {
	b32, err := TOTPBase32(hexSecret)
	if err != nil {
		return "", err
	}
	return totp.GenerateCodeCustom(b32, time.Now().UTC(), totpOpts)
}
