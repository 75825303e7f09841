// Package apperror defines the error taxonomy shared by every handler.
// Errors carry their HTTP status and the exact client-visible message, so
// the boundary can render them without inspecting causes. Enumeration
// sensitive failures (unknown user, bad password, bad token) all collapse
// into the single Authorization message.
package apperror

import (
	"fmt"
	"net/http"
)

// Kind classifies an Error for status mapping.
type Kind int

const (
	// KindAuthentication is a missing or unresolvable session cookie.
	KindAuthentication Kind = iota
	// KindAuthorization is a failed credential check (email/password/token).
	KindAuthorization
	KindInvalidValue
	KindMissingKey
	KindConflict
	KindRateLimited
	KindBodySize
	KindInternal
	KindIo
	KindSerde
	KindImage
	KindDatabase
)

// Error is the single error type crossing the service/handler boundary.
type Error struct {
	Kind    Kind
	Msg     string
	Seconds int   // only for KindRateLimited
	Err     error // wrapped cause, logged server-side, never shown
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message(), e.Err)
	}
	return e.Message()
}

func (e *Error) Unwrap() error { return e.Err }

// Status maps the kind to its HTTP status code.
func (e *Error) Status() int {
	switch e.Kind {
	case KindAuthentication:
		return http.StatusForbidden
	case KindAuthorization:
		return http.StatusUnauthorized
	case KindInvalidValue, KindMissingKey:
		return http.StatusBadRequest
	case KindConflict:
		return http.StatusConflict
	case KindRateLimited:
		return http.StatusTooManyRequests
	case KindBodySize:
		return http.StatusRequestEntityTooLarge
	default:
		return http.StatusInternalServerError
	}
}

// Message is the client-visible response string.
func (e *Error) Message() string {
	switch e.Kind {
	case KindAuthentication:
		return "Invalid Authentication"
	case KindAuthorization:
		return "Invalid email address and/or password and/or token"
	case KindInvalidValue, KindConflict:
		return e.Msg
	case KindMissingKey:
		return "missing " + e.Msg
	case KindRateLimited:
		return fmt.Sprintf("rate limited for %d seconds", e.Seconds)
	case KindBodySize:
		return "body too large"
	case KindIo:
		return "IO"
	case KindSerde:
		return "serde"
	case KindImage:
		return "image"
	case KindDatabase:
		return "database"
	default:
		return "Internal Server Error"
	}
}

func Authentication() *Error { return &Error{Kind: KindAuthentication} }

func Authorization() *Error { return &Error{Kind: KindAuthorization} }

func InvalidValue(msg string) *Error { return &Error{Kind: KindInvalidValue, Msg: msg} }

func MissingKey(field string) *Error { return &Error{Kind: KindMissingKey, Msg: field} }

func Conflict(msg string) *Error { return &Error{Kind: KindConflict, Msg: msg} }

func RateLimited(seconds int) *Error { return &Error{Kind: KindRateLimited, Seconds: seconds} }

func BodySize() *Error { return &Error{Kind: KindBodySize} }

func Internal(err error) *Error { return &Error{Kind: KindInternal, Err: err} }

func Io(err error) *Error { return &Error{Kind: KindIo, Err: err} }

func Serde(err error) *Error { return &Error{Kind: KindSerde, Err: err} }

func Image(err error) *Error { return &Error{Kind: KindImage, Err: err} }

func Database(err error) *Error { return &Error{Kind: KindDatabase, Err: err} }
