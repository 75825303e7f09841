package api

import (
	"net/http"

	sentryhttp "github.com/getsentry/sentry-go/http"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/mealpedant/api/internal/api/helpers"
	"github.com/mealpedant/api/internal/api/middleware"
	"github.com/mealpedant/api/internal/apperror"
	"github.com/mealpedant/api/internal/photo"
)

// NewRouter assembles the API server's routing tree. Middleware order
// matters: Sentry before recovery so panics are captured, the cookie layer
// before the rate limiter so authenticated traffic is counted on the email
// scope.
func NewRouter(state *State, allowedOrigins []string) *chi.Mux {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)

	sentryHandler := sentryhttp.New(sentryhttp.Options{Repanic: true})
	r.Use(sentryHandler.Handle)

	r.Use(middleware.RequestLogger)
	r.Use(middleware.PanicRecovery)

	r.Use(middleware.CORS(allowedOrigins))
	r.Use(middleware.CookieSession(state.Cookies))
	r.Use(middleware.RateLimit(state.Limiter))

	isAuthed := middleware.IsAuthenticated(state.Sessions)
	isAdmin := middleware.IsAdmin(state.Sessions)
	notAuthed := middleware.NotAuthenticated(state.Sessions)

	incognito := &incognitoHandler{state}
	users := &userHandler{state}
	food := &foodHandler{state}
	meals := &mealHandler{state}
	photos := &photoHandler{state}
	admin := &adminHandler{state}

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		helpers.RespondError(w, r, apperror.InvalidValue("unknown endpoint"))
	})

	r.Route(RoutePrefix, func(r chi.Router) {
		r.Route("/incognito", func(r chi.Router) {
			r.Get("/online", incognito.Online)
			r.Get("/meals", incognito.Meals)
			r.Get("/hash", incognito.Hash)

			r.Group(func(r chi.Router) {
				r.Use(notAuthed)
				r.Post("/register", incognito.Register)
				r.Get("/verify/{secret}", incognito.Verify)
				r.Post("/reset", incognito.ResetRequest)
				r.Get("/reset/{secret}", incognito.ResetInspect)
				r.Patch("/reset/{secret}", incognito.ResetConsume)
				r.Post("/signin", incognito.Signin)
			})
		})

		r.Route("/user", func(r chi.Router) {
			r.Use(isAuthed)
			r.Get("/", users.Me)
			r.Post("/signout", users.Signout)
			r.Patch("/password", users.ChangePassword)

			r.Route("/setup/twofa", func(r chi.Router) {
				r.Get("/", users.SetupTwoFAStart)
				r.Post("/", users.SetupTwoFAConfirm)
				r.Delete("/", users.SetupTwoFACancel)
				r.Patch("/", users.SetTwoFAAlwaysRequired)
			})

			r.Route("/twofa", func(r chi.Router) {
				r.Post("/", users.GenerateBackupCodes)
				r.Patch("/", users.RotateBackupCodes)
				r.Put("/", users.ClearBackupCodes)
				r.Delete("/", users.DisableTwoFA)
			})
		})

		r.Route("/food", func(r chi.Router) {
			r.With(isAuthed).Get("/all", food.All)
			r.With(isAuthed).Get("/hash", food.Hash)
			r.With(isAdmin).Delete("/cache", food.FlushCache)
		})

		r.Route("/meal", func(r chi.Router) {
			r.Use(isAdmin)
			r.Get("/{date}/{person}", meals.Get)
			r.Post("/", meals.Insert)
			r.Patch("/", meals.Update)
			r.Delete("/{date}/{person}", meals.Delete)
		})

		r.Route("/photo", func(r chi.Router) {
			r.Use(isAdmin)
			r.With(bodyLimit).Post("/", photos.Upload)
			r.Delete("/", photos.Delete)
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(isAdmin)
			r.Get("/user", admin.Users)
			r.Get("/memory", admin.Memory)
			r.Get("/limit", admin.Limits)
			r.Delete("/limit", admin.DeleteLimit)
			r.Get("/session/{userID}", admin.Sessions)
			r.Delete("/session/{userID}", admin.DeleteSessions)
			r.Get("/backup", admin.Backups)
			r.Post("/backup", admin.RunBackup)
			r.Delete("/backup/{name}", admin.DeleteBackup)
		})
	})

	return r
}

// bodyLimit caps the photo upload body at 10 MiB.
func bodyLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, photo.MaxUploadBytes)
		next.ServeHTTP(w, r)
	})
}
