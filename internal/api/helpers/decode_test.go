package helpers

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mealpedant/api/internal/apperror"
)

type signupBody struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (b *signupBody) Validate() error {
	if b.Email == "" {
		return apperror.MissingKey("email")
	}
	if b.Password == "" {
		return apperror.MissingKey("password")
	}
	return nil
}

func jsonRequest(body string) *http.Request {
	r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	r.Header.Set("Content-Type", "application/json")
	return r
}

func decodeKind(t *testing.T, err error) *apperror.Error {
	t.Helper()
	var appErr *apperror.Error
	require.True(t, errors.As(err, &appErr))
	return appErr
}

func TestDecodeJSONValid(t *testing.T) {
	var body signupBody
	err := DecodeJSON(jsonRequest(`{"email":"jack@example.com","password":"pw"}`), &body)
	require.NoError(t, err)
	assert.Equal(t, "jack@example.com", body.Email)
}

func TestDecodeJSONMissingField(t *testing.T) {
	var body signupBody
	err := DecodeJSON(jsonRequest(`{"email":"jack@example.com"}`), &body)
	appErr := decodeKind(t, err)
	assert.Equal(t, "missing password", appErr.Message())
}

func TestDecodeJSONUnknownField(t *testing.T) {
	var body signupBody
	err := DecodeJSON(jsonRequest(`{"email":"a@b.c","password":"pw","admin":true}`), &body)
	appErr := decodeKind(t, err)
	assert.Equal(t, "invalid input", appErr.Message())
}

func TestDecodeJSONWrongType(t *testing.T) {
	var body signupBody
	err := DecodeJSON(jsonRequest(`{"email":123,"password":"pw"}`), &body)
	appErr := decodeKind(t, err)
	assert.Equal(t, "invalid input", appErr.Message())
}

func TestDecodeJSONMalformed(t *testing.T) {
	var body signupBody
	err := DecodeJSON(jsonRequest(`{"email": `), &body)
	appErr := decodeKind(t, err)
	assert.Equal(t, "JSON", appErr.Message())
}

func TestDecodeJSONBodyTooLarge(t *testing.T) {
	big := `{"email":"` + strings.Repeat("a", 256) + `"}`
	r := jsonRequest(big)
	r.Body = http.MaxBytesReader(httptest.NewRecorder(), r.Body, 16)

	var body signupBody
	err := DecodeJSON(r, &body)
	appErr := decodeKind(t, err)
	assert.Equal(t, apperror.KindBodySize, appErr.Kind)
	assert.Equal(t, http.StatusRequestEntityTooLarge, appErr.Status())
}

func TestDecodeJSONOptionalEmptyBody(t *testing.T) {
	// An absent body is fine and skips validation entirely.
	var body signupBody
	err := DecodeJSONOptional(jsonRequest(""), &body)
	require.NoError(t, err)
	assert.Equal(t, signupBody{}, body)
}

func TestDecodeJSONOptionalPresentBody(t *testing.T) {
	var body signupBody
	err := DecodeJSONOptional(jsonRequest(`{"email":"jack@example.com","password":"pw"}`), &body)
	require.NoError(t, err)
	assert.Equal(t, "jack@example.com", body.Email)

	// A body that is present but malformed still fails.
	err = DecodeJSONOptional(jsonRequest(`{"email": `), &body)
	appErr := decodeKind(t, err)
	assert.Equal(t, "JSON", appErr.Message())
}

func TestRealIP(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = "10.1.1.1:4242"
	assert.Equal(t, "10.1.1.1", RealIP(r))

	r.Header.Set("X-Real-IP", "10.2.2.2")
	assert.Equal(t, "10.2.2.2", RealIP(r))

	r.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")
	assert.Equal(t, "203.0.113.9", RealIP(r))
}
