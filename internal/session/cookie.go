package session

import (
	"net/http"
	"time"

	"github.com/gorilla/securecookie"
	"github.com/oklog/ulid/v2"
)

// CookieJar encodes the session ULID into a signed+encrypted cookie and
// back. The cookie value is opaque to the client; only its decoded form is
// ever a ULID.
type CookieJar struct {
	codec      *securecookie.SecureCookie
	name       string
	domain     string
	production bool
}

// NewCookieJar splits the 64-byte secret into a 32-byte signing key and a
// 32-byte encryption key.
func NewCookieJar(name string, secret []byte, domain string, production bool) *CookieJar {
	codec := securecookie.New(secret[:32], secret[32:64])
	codec.SetSerializer(securecookie.JSONEncoder{})
	return &CookieJar{
		codec:      codec,
		name:       name,
		domain:     domain,
		production: production,
	}
}

// Set emits the session cookie. MaxAge tracks the server-side TTL.
func (j *CookieJar) Set(w http.ResponseWriter, sessionULID string, ttl time.Duration) error {
	encoded, err := j.codec.Encode(j.name, sessionULID)
	if err != nil {
		return err
	}
	http.SetCookie(w, &http.Cookie{
		Name:     j.name,
		Value:    encoded,
		Path:     "/",
		Domain:   j.domain,
		MaxAge:   int(ttl.Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
		Secure:   j.production,
	})
	return nil
}

// Get decodes the request's session cookie into a ULID string. Absent,
// tampered, or non-ULID cookies all read as not-present.
func (j *CookieJar) Get(r *http.Request) (string, bool) {
	c, err := r.Cookie(j.name)
	if err != nil {
		return "", false
	}
	var value string
	if err := j.codec.Decode(j.name, c.Value, &value); err != nil {
		return "", false
	}
	if _, err := ulid.ParseStrict(value); err != nil {
		return "", false
	}
	return value, true
}

// Clear expires the cookie client-side.
func (j *CookieJar) Clear(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     j.name,
		Value:    "",
		Path:     "/",
		Domain:   j.domain,
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
		Secure:   j.production,
	})
}
