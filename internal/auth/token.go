package auth

import "strings"

// TokenKind distinguishes the two second-factor token shapes.
type TokenKind int

const (
	TokenTotp TokenKind = iota
	TokenBackup
)

// Token is a tagged second-factor credential: either a six-digit TOTP or a
// sixteen-hex backup code. ParseToken is the only constructor.
type Token struct {
	kind  TokenKind
	value string
}

func (t Token) Kind() TokenKind { return t.kind }

// String returns the normalised raw token.
func (t Token) String() string { return t.value }

// ParseToken normalises s (ASCII spaces stripped) and classifies it:
// six digits make a TOTP token, sixteen hex characters make an
// upper-cased backup code. Anything else is rejected.
func ParseToken(s string) (Token, bool) {
	s = strings.ReplaceAll(s, " ", "")

	if len(s) == 6 && allDigits(s) {
		return Token{kind: TokenTotp, value: s}, true
	}
	if len(s) == 16 && allHex(s) {
		return Token{kind: TokenBackup, value: strings.ToUpper(s)}, true
	}
	return Token{}, false
}

func allDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func allHex(s string) bool {
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9':
		case r >= 'a' && r <= 'f':
		case r >= 'A' && r <= 'F':
		default:
			return false
		}
	}
	return true
}

// IsHexOfLen reports whether s is exactly n lower-or-upper hex characters.
// Used to validate 128-hex reset and verification secrets before lookup.
func IsHexOfLen(s string, n int) bool {
	return len(s) == n && allHex(s)
}
