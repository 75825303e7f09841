package middleware

import (
	"net/http"

	"github.com/mealpedant/api/internal/api/helpers"
	"github.com/mealpedant/api/internal/apperror"
	"github.com/mealpedant/api/internal/session"
)

// CookieSession decodes the signed session cookie once per request and
// stashes the ULID in the context. It never rejects; the guards below do.
func CookieSession(jar *session.CookieJar) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if ulid, ok := jar.Get(r); ok {
				r = r.WithContext(withSessionULID(r.Context(), ulid))
			}
			next.ServeHTTP(w, r)
		})
	}
}

// IsAuthenticated resolves the cookie to a live user and injects it, or
// answers 403 Invalid Authentication.
func IsAuthenticated(sessions *session.Store) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ulid, ok := SessionULID(r.Context())
			if !ok {
				helpers.RespondError(w, r, apperror.Authentication())
				return
			}
			u, err := sessions.Get(r.Context(), ulid)
			if err != nil {
				helpers.RespondError(w, r, apperror.Internal(err))
				return
			}
			if u == nil {
				helpers.RespondError(w, r, apperror.Authentication())
				return
			}
			next.ServeHTTP(w, r.WithContext(withUser(r.Context(), u)))
		})
	}
}

// IsAdmin is IsAuthenticated plus the admin flag.
func IsAdmin(sessions *session.Store) func(http.Handler) http.Handler {
	authed := IsAuthenticated(sessions)
	return func(next http.Handler) http.Handler {
		return authed(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			u, _ := User(r.Context())
			if u == nil || !u.Admin {
				helpers.RespondError(w, r, apperror.Authentication())
				return
			}
			next.ServeHTTP(w, r)
		}))
	}
}

// NotAuthenticated blocks callers that already hold a live session; the
// incognito surface is for signed-out clients only.
func NotAuthenticated(sessions *session.Store) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if ulid, ok := SessionULID(r.Context()); ok {
				u, err := sessions.Get(r.Context(), ulid)
				if err != nil {
					helpers.RespondError(w, r, apperror.Internal(err))
					return
				}
				if u != nil {
					helpers.RespondError(w, r, apperror.Authentication())
					return
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}
