package helpers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/mealpedant/api/internal/apperror"
)

// Validator lets a request struct report its own missing required fields,
// which JSON decoding alone cannot see.
type Validator interface {
	Validate() error
}

// DecodeJSON decodes a request body with unknown fields rejected and
// decode failures translated into the client-visible taxonomy: an unknown
// or mistyped field is "invalid input", any other malformed body is the
// bare "JSON" message, and an over-long body maps to the 413 kind.
func DecodeJSON(r *http.Request, v any) error {
	return decodeJSON(r, v, false)
}

// DecodeJSONOptional is DecodeJSON for endpoints whose body is optional:
// an entirely absent body leaves v at its zero value and skips validation.
// A present-but-malformed body still fails.
func DecodeJSONOptional(r *http.Request, v any) error {
	return decodeJSON(r, v, true)
}

func decodeJSON(r *http.Request, v any, allowEmpty bool) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(v); err != nil {
		if allowEmpty && errors.Is(err, io.EOF) {
			return nil
		}

		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return apperror.BodySize()
		}

		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) || strings.Contains(err.Error(), "unknown field") {
			return apperror.InvalidValue("invalid input")
		}
		return apperror.InvalidValue("JSON")
	}

	if val, ok := v.(Validator); ok {
		return val.Validate()
	}
	return nil
}
