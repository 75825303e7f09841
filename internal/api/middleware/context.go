// Package middleware carries the HTTP middleware shared by the API and
// static servers: session loading, route guards, rate limiting, CORS,
// panic recovery and request logging.
package middleware

import (
	"context"

	"github.com/mealpedant/api/internal/user"
)

// contextKey is a private type so request-scoped values cannot collide
// with other packages.
type contextKey string

const (
	sessionULIDKey contextKey = "session_ulid"
	userKey        contextKey = "user"
)

// SessionULID returns the decoded cookie ULID, if the request carried one.
// Present does not imply live; guards resolve it.
func SessionULID(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(sessionULIDKey).(string)
	return v, ok && v != ""
}

// User returns the session's resolved user. Only set behind the
// authenticated guards.
func User(ctx context.Context) (*user.User, bool) {
	u, ok := ctx.Value(userKey).(*user.User)
	return u, ok && u != nil
}

func withSessionULID(ctx context.Context, ulid string) context.Context {
	return context.WithValue(ctx, sessionULIDKey, ulid)
}

func withUser(ctx context.Context, u *user.User) context.Context {
	return context.WithValue(ctx, userKey, u)
}
