package static

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/oklog/ulid/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mealpedant/api/internal/api"
	"github.com/mealpedant/api/internal/kv"
	"github.com/mealpedant/api/internal/meal"
	"github.com/mealpedant/api/internal/photo"
	"github.com/mealpedant/api/internal/ratelimit"
	"github.com/mealpedant/api/internal/session"
)

type fixture struct {
	router http.Handler
	jar    *session.CookieJar
	store  *session.Store
	photos *photo.Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	mr := miniredis.RunT(t)
	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	kvc := kv.NewFromClient(rdb)

	sessions := session.NewStore(kvc, nil)
	jar := session.NewCookieJar("mealpedant_session",
		[]byte(strings.Repeat("k", 64)), "example.com", false)

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	dir := t.TempDir()
	originalDir := filepath.Join(dir, "original")
	convertedDir := filepath.Join(dir, "converted")
	require.NoError(t, os.Mkdir(originalDir, 0o755))
	require.NoError(t, os.Mkdir(convertedDir, 0o755))
	photos := photo.NewService(originalDir, convertedDir, nil, log)

	publicDir := filepath.Join(dir, "public")
	require.NoError(t, os.Mkdir(publicDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(publicDir, "app.css"), []byte("body{}"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(publicDir, "app.css.gz"), []byte("gzip-bytes"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(publicDir, "app.css.br"), []byte("br-bytes"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(publicDir, "plain.js"), []byte("var x;"), 0o644))

	state := &api.State{
		Sessions: sessions,
		Cookies:  jar,
		Limiter:  ratelimit.NewLimiter(kvc, sessions),
		Photos:   photos,
		Log:      log,
	}
	return &fixture{
		router: NewRouter(state, publicDir),
		jar:    jar,
		store:  sessions,
		photos: photos,
	}
}

// placePair writes both files of a generated pair and returns the names.
func (f *fixture) placePair(t *testing.T, person string) (original, converted photo.Name) {
	t.Helper()
	original, converted, err := photo.Pair(person)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(f.photos.Path(original), []byte("jpeg-bytes"), 0o644))
	require.NoError(t, os.WriteFile(f.photos.Path(converted), []byte("jpeg-bytes"), 0o644))
	return original, converted
}

func (f *fixture) get(t *testing.T, path string, authed bool) *httptest.ResponseRecorder {
	t.Helper()
	r := httptest.NewRequest(http.MethodGet, path, nil)
	r.RemoteAddr = "192.0.2.10:1234"

	if authed {
		id := ulid.Make().String()
		require.NoError(t, f.store.Create(r.Context(), 7, "jack@example.com", session.DefaultTTL, id))
		rec := httptest.NewRecorder()
		require.NoError(t, f.jar.Set(rec, id, session.DefaultTTL))
		for _, c := range rec.Result().Cookies() {
			r.AddCookie(c)
		}
	}

	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, r)
	return w
}

func TestPhotoVisibility(t *testing.T) {
	f := newFixture(t)
	jackOrig, jackConv := f.placePair(t, meal.PersonJack)
	daveOrig, daveConv := f.placePair(t, meal.PersonDave)

	tests := []struct {
		name   string
		file   string
		authed bool
		status int
		cache  string
	}{
		{"converted jack anonymous", jackConv.String(), false, http.StatusOK, publicMaxAge},
		{"converted jack authed", jackConv.String(), true, http.StatusOK, publicMaxAge},
		{"original jack anonymous", jackOrig.String(), false, http.StatusNotFound, "no-cache"},
		{"original jack authed", jackOrig.String(), true, http.StatusOK, "no-cache"},
		{"converted dave anonymous", daveConv.String(), false, http.StatusNotFound, "no-cache"},
		{"converted dave authed", daveConv.String(), true, http.StatusOK, "no-cache"},
		{"original dave anonymous", daveOrig.String(), false, http.StatusNotFound, "no-cache"},
		{"original dave authed", daveOrig.String(), true, http.StatusOK, "no-cache"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			w := f.get(t, "/photo/"+tc.file, tc.authed)
			assert.Equal(t, tc.status, w.Code)
			assert.Equal(t, tc.cache, w.Header().Get("Cache-Control"))
			if tc.status == http.StatusOK {
				assert.Equal(t, "jpeg-bytes", w.Body.String())
			}
		})
	}
}

func TestPhotoMalformedNameIs404(t *testing.T) {
	f := newFixture(t)
	for _, name := range []string{
		"whatever.jpg",
		"..%2F..%2Fetc%2Fpasswd",
		strings.Repeat("a", 32) + ".jpg",
	} {
		w := f.get(t, "/photo/"+name, true)
		assert.Equal(t, http.StatusNotFound, w.Code, "name %q", name)
		assert.Equal(t, "no-cache", w.Header().Get("Cache-Control"))
	}
}

func TestStaleCookieIsAnonymous(t *testing.T) {
	f := newFixture(t)
	_, conv := f.placePair(t, meal.PersonDave)

	// A decodable cookie pointing at a deleted session grants nothing.
	r := httptest.NewRequest(http.MethodGet, "/photo/"+conv.String(), nil)
	r.RemoteAddr = "192.0.2.10:1234"
	id := ulid.Make().String()
	rec := httptest.NewRecorder()
	require.NoError(t, f.jar.Set(rec, id, session.DefaultTTL))
	for _, c := range rec.Result().Cookies() {
		r.AddCookie(c)
	}

	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, r)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestAssetFallbackIsCacheable(t *testing.T) {
	f := newFixture(t)
	w := f.get(t, "/app.css", false)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, publicMaxAge, w.Header().Get("Cache-Control"))
	assert.Equal(t, "body{}", w.Body.String())
	assert.Empty(t, w.Header().Get("Content-Encoding"))
}

func (f *fixture) getEncoded(t *testing.T, path, acceptEncoding string) *httptest.ResponseRecorder {
	t.Helper()
	r := httptest.NewRequest(http.MethodGet, path, nil)
	r.RemoteAddr = "192.0.2.10:1234"
	r.Header.Set("Accept-Encoding", acceptEncoding)
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, r)
	return w
}

func TestAssetPrecompressedVariants(t *testing.T) {
	f := newFixture(t)

	// Brotli wins when both are accepted.
	w := f.getEncoded(t, "/app.css", "gzip, br")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "br", w.Header().Get("Content-Encoding"))
	assert.Equal(t, "br-bytes", w.Body.String())
	assert.Equal(t, "text/css; charset=utf-8", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Values("Vary"), "Accept-Encoding")

	w = f.getEncoded(t, "/app.css", "gzip")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "gzip", w.Header().Get("Content-Encoding"))
	assert.Equal(t, "gzip-bytes", w.Body.String())

	// No variant on disk falls back to the identity file.
	w = f.getEncoded(t, "/plain.js", "gzip, br")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, w.Header().Get("Content-Encoding"))
	assert.Equal(t, "var x;", w.Body.String())
}
