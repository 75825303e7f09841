package session

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testJar(production bool) *CookieJar {
	secret := []byte(strings.Repeat("s", 32) + strings.Repeat("e", 32))
	return NewCookieJar("mealpedant_session", secret, "example.com", production)
}

func requestWithCookie(t *testing.T, jar *CookieJar, value string, ttl time.Duration) *http.Request {
	t.Helper()
	rec := httptest.NewRecorder()
	require.NoError(t, jar.Set(rec, value, ttl))
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	for _, c := range rec.Result().Cookies() {
		r.AddCookie(c)
	}
	return r
}

func TestCookieRoundTrip(t *testing.T) {
	jar := testJar(false)
	id := ulid.Make().String()

	r := requestWithCookie(t, jar, id, DefaultTTL)
	got, ok := jar.Get(r)
	assert.True(t, ok)
	assert.Equal(t, id, got)
}

func TestCookieAttributes(t *testing.T) {
	jar := testJar(true)
	rec := httptest.NewRecorder()
	id := ulid.Make().String()
	require.NoError(t, jar.Set(rec, id, DefaultTTL))

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	c := cookies[0]
	assert.Equal(t, "mealpedant_session", c.Name)
	assert.Equal(t, "/", c.Path)
	assert.Equal(t, "example.com", c.Domain)
	assert.Equal(t, int(DefaultTTL.Seconds()), c.MaxAge)
	assert.True(t, c.HttpOnly)
	assert.True(t, c.Secure)
	assert.Equal(t, http.SameSiteStrictMode, c.SameSite)

	// The session id never appears in the clear.
	assert.NotContains(t, c.Value, id)
}

func TestCookieTamperRejected(t *testing.T) {
	jar := testJar(false)
	r := requestWithCookie(t, jar, ulid.Make().String(), DefaultTTL)

	c, err := r.Cookie("mealpedant_session")
	require.NoError(t, err)

	tampered := httptest.NewRequest(http.MethodGet, "/", nil)
	tampered.AddCookie(&http.Cookie{Name: c.Name, Value: c.Value[:len(c.Value)-2] + "xx"})
	_, ok := jar.Get(tampered)
	assert.False(t, ok)
}

func TestCookieNonULIDRejected(t *testing.T) {
	jar := testJar(false)
	r := requestWithCookie(t, jar, "definitely-not-a-ulid", DefaultTTL)
	_, ok := jar.Get(r)
	assert.False(t, ok)
}

func TestCookieWrongKeyRejected(t *testing.T) {
	jar := testJar(false)
	other := NewCookieJar("mealpedant_session",
		[]byte(strings.Repeat("x", 64)), "example.com", false)

	r := requestWithCookie(t, jar, ulid.Make().String(), DefaultTTL)
	_, ok := other.Get(r)
	assert.False(t, ok)
}

func TestClearExpiresCookie(t *testing.T) {
	jar := testJar(false)
	rec := httptest.NewRecorder()
	jar.Clear(rec)

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, -1, cookies[0].MaxAge)
	assert.Empty(t, cookies[0].Value)
}
