package middleware

import (
	"net/http"

	"github.com/mealpedant/api/internal/api/helpers"
	"github.com/mealpedant/api/internal/ratelimit"
)

// RateLimit counts every request against the two-tier limiter before any
// handler runs. Runs after CookieSession so an authenticated caller is
// counted on the email scope.
func RateLimit(limiter *ratelimit.Limiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ulid, _ := SessionULID(r.Context())
			if err := limiter.Check(r.Context(), helpers.RealIP(r), ulid); err != nil {
				helpers.RespondError(w, r, err)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
