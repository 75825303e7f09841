// Package static serves the photo files and the precompressed front-end
// assets. It shares session state and the rate limiter with the API
// server; only the routes differ.
package static

import (
	"mime"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"

	sentryhttp "github.com/getsentry/sentry-go/http"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/mealpedant/api/internal/api"
	"github.com/mealpedant/api/internal/api/middleware"
	"github.com/mealpedant/api/internal/meal"
	"github.com/mealpedant/api/internal/photo"
)

const publicMaxAge = "public, max-age=8640000"

// NewRouter assembles the static server's tree around the shared state.
func NewRouter(state *api.State, publicDir string) *chi.Mux {
	r := chi.NewRouter()

	r.Use(chimiddleware.RealIP)
	sentryHandler := sentryhttp.New(sentryhttp.Options{Repanic: true})
	r.Use(sentryHandler.Handle)
	r.Use(middleware.RequestLogger)
	r.Use(middleware.PanicRecovery)
	r.Use(middleware.CookieSession(state.Cookies))
	r.Use(middleware.RateLimit(state.Limiter))

	h := &photoServer{state: state}
	r.Get("/photo/{name}", h.Serve)

	r.Get("/*", assetHandler(publicDir))

	return r
}

// assetHandler serves the precompressed front-end tree. When the client
// accepts br or gzip and a sibling variant of the requested file exists,
// that variant is sent with the matching Content-Encoding and the
// original's content type.
func assetHandler(dir string) http.HandlerFunc {
	fallback := http.FileServer(http.Dir(dir))
	encodings := []struct {
		name string
		ext  string
	}{
		{"br", ".br"},
		{"gzip", ".gz"},
	}

	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", publicMaxAge)

		clean := path.Clean(r.URL.Path)
		accept := r.Header.Get("Accept-Encoding")
		if !strings.HasSuffix(clean, "/") && !strings.Contains(clean, "..") {
			for _, enc := range encodings {
				if !strings.Contains(accept, enc.name) {
					continue
				}
				variant := filepath.Join(dir, filepath.FromSlash(clean)) + enc.ext
				info, err := os.Stat(variant)
				if err != nil || info.IsDir() {
					continue
				}
				if ct := mime.TypeByExtension(path.Ext(clean)); ct != "" {
					w.Header().Set("Content-Type", ct)
				}
				w.Header().Set("Content-Encoding", enc.name)
				w.Header().Add("Vary", "Accept-Encoding")
				http.ServeFile(w, r, variant)
				return
			}
		}
		fallback.ServeHTTP(w, r)
	}
}

type photoServer struct {
	state *api.State
}

// Serve applies the visibility table: the converted Jack variant is the
// only public file; everything else needs a live session. Failures of any
// sort collapse into an uncacheable 404 so an anonymous caller cannot tell
// "forbidden" from "absent".
func (h *photoServer) Serve(w http.ResponseWriter, r *http.Request) {
	name, err := photo.ParseName(chi.URLParam(r, "name"))
	if err != nil {
		notFound(w)
		return
	}

	public := name.Variant() == photo.Converted && name.Person() == meal.PersonJack
	if !public && !h.authed(r) {
		notFound(w)
		return
	}

	if public {
		w.Header().Set("Cache-Control", publicMaxAge)
	} else {
		w.Header().Set("Cache-Control", "no-cache")
	}
	http.ServeFile(w, r, h.state.Photos.Path(name))
}

func (h *photoServer) authed(r *http.Request) bool {
	ulid, ok := middleware.SessionULID(r.Context())
	if !ok {
		return false
	}
	d, err := h.state.Sessions.Data(r.Context(), ulid)
	return err == nil && d != nil
}

func notFound(w http.ResponseWriter) {
	w.Header().Set("Cache-Control", "no-cache")
	http.Error(w, "not found", http.StatusNotFound)
}
