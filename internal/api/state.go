// Package api mounts the JSON surface: the versioned router, its
// middleware stack and every handler.
package api

import (
	"log/slog"
	"time"

	"github.com/mealpedant/api/internal/auth"
	"github.com/mealpedant/api/internal/backup"
	"github.com/mealpedant/api/internal/meal"
	"github.com/mealpedant/api/internal/photo"
	"github.com/mealpedant/api/internal/ratelimit"
	"github.com/mealpedant/api/internal/session"
	"github.com/mealpedant/api/internal/user"
)

// Version is the released application version; its major digit selects the
// route prefix.
const Version = "1.6.2"

// RoutePrefix mounts every route under the major version.
const RoutePrefix = "/v1"

// State is the one immutable value shared by every handler of both
// servers. Built once in main, handed around by pointer, never mutated
// after startup.
type State struct {
	Auth     *auth.Service
	Users    *user.Store
	Sessions *session.Store
	Cookies  *session.CookieJar
	Limiter  *ratelimit.Limiter
	Meals    *meal.Store
	Cache    *meal.Cache
	Photos   *photo.Service
	Backups  *backup.Runner
	Log      *slog.Logger

	Production bool
	StartedAt  time.Time
}
