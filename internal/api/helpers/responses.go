package helpers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/getsentry/sentry-go"

	"github.com/mealpedant/api/internal/apperror"
)

// envelope is the single response shape: every success and every error
// body is {"response": ...}.
type envelope struct {
	Response any `json:"response"`
}

// RespondJSON writes data inside the response envelope.
func RespondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(envelope{Response: data}); err != nil {
		slog.Error("response_encode_failed", "error", err)
	}
}

// RespondError translates err into its taxonomy status and message.
// Anything that is not an *apperror.Error renders as a plain 500; every
// 5xx is logged with its cause and forwarded to Sentry.
func RespondError(w http.ResponseWriter, r *http.Request, err error) {
	var appErr *apperror.Error
	if !errors.As(err, &appErr) {
		appErr = apperror.Internal(err)
	}

	status := appErr.Status()
	if status >= http.StatusInternalServerError {
		slog.Error("request_failed",
			"status", status,
			"path", r.URL.Path,
			"method", r.Method,
			"error", err,
		)
		if hub := sentry.GetHubFromContext(r.Context()); hub != nil {
			hub.CaptureException(err)
		}
	}

	RespondJSON(w, status, appErr.Message())
}
