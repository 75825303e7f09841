package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/mealpedant/api/internal/api/helpers"
	"github.com/mealpedant/api/internal/api/middleware"
	"github.com/mealpedant/api/internal/apperror"
	"github.com/mealpedant/api/internal/auth"
	"github.com/mealpedant/api/internal/meal"
)

// genericInstructions is the enumeration-safe body shared by register and
// reset: identical whether the address is known, unknown, pending or
// banned at the account level.
const genericInstructions = "Instructions have been sent to the email address provided"

type incognitoHandler struct {
	state *State
}

func (h *incognitoHandler) meta(r *http.Request) auth.ReqMeta {
	return auth.ReqMeta{
		IP:        helpers.RealIP(r),
		UserAgent: r.UserAgent(),
	}
}

type registerRequest struct {
	FullName string `json:"full_name"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Invite   string `json:"invite"`
}

func (req *registerRequest) Validate() error {
	switch {
	case req.FullName == "":
		return apperror.MissingKey("full_name")
	case req.Email == "":
		return apperror.MissingKey("email")
	case req.Password == "":
		return apperror.MissingKey("password")
	case req.Invite == "":
		return apperror.MissingKey("invite")
	}
	return nil
}

func (h *incognitoHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := helpers.DecodeJSON(r, &req); err != nil {
		helpers.RespondError(w, r, err)
		return
	}
	if err := h.state.Auth.Register(r.Context(), h.meta(r), req.FullName, req.Email, req.Password, req.Invite); err != nil {
		helpers.RespondError(w, r, err)
		return
	}
	helpers.RespondJSON(w, http.StatusOK, genericInstructions)
}

func (h *incognitoHandler) Verify(w http.ResponseWriter, r *http.Request) {
	if err := h.state.Auth.Verify(r.Context(), chi.URLParam(r, "secret")); err != nil {
		helpers.RespondError(w, r, err)
		return
	}
	helpers.RespondJSON(w, http.StatusOK, "Account verified, please sign in to continue")
}

type resetRequest struct {
	Email string `json:"email"`
}

func (req *resetRequest) Validate() error {
	if req.Email == "" {
		return apperror.MissingKey("email")
	}
	return nil
}

func (h *incognitoHandler) ResetRequest(w http.ResponseWriter, r *http.Request) {
	var req resetRequest
	if err := helpers.DecodeJSON(r, &req); err != nil {
		helpers.RespondError(w, r, err)
		return
	}
	if err := h.state.Auth.ResetRequest(r.Context(), h.meta(r), req.Email); err != nil {
		helpers.RespondError(w, r, err)
		return
	}
	helpers.RespondJSON(w, http.StatusOK, genericInstructions)
}

func (h *incognitoHandler) ResetInspect(w http.ResponseWriter, r *http.Request) {
	active, backupCodes, err := h.state.Auth.ResetInspect(r.Context(), chi.URLParam(r, "secret"))
	if err != nil {
		helpers.RespondError(w, r, err)
		return
	}
	helpers.RespondJSON(w, http.StatusOK, map[string]bool{
		"two_fa_active": active,
		"two_fa_backup": backupCodes,
	})
}

type resetConsumeRequest struct {
	Password string `json:"password"`
	Token    string `json:"token,omitempty"`
}

func (req *resetConsumeRequest) Validate() error {
	if req.Password == "" {
		return apperror.MissingKey("password")
	}
	return nil
}

func (h *incognitoHandler) ResetConsume(w http.ResponseWriter, r *http.Request) {
	var req resetConsumeRequest
	if err := helpers.DecodeJSON(r, &req); err != nil {
		helpers.RespondError(w, r, err)
		return
	}
	if err := h.state.Auth.ResetConsume(r.Context(), chi.URLParam(r, "secret"), req.Password, req.Token); err != nil {
		helpers.RespondError(w, r, err)
		return
	}
	helpers.RespondJSON(w, http.StatusOK, "Password reset complete - please sign in")
}

type signinRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Token    string `json:"token,omitempty"`
	Remember bool   `json:"remember"`
}

func (req *signinRequest) Validate() error {
	switch {
	case req.Email == "":
		return apperror.MissingKey("email")
	case req.Password == "":
		return apperror.MissingKey("password")
	}
	return nil
}

func (h *incognitoHandler) Signin(w http.ResponseWriter, r *http.Request) {
	var req signinRequest
	if err := helpers.DecodeJSON(r, &req); err != nil {
		helpers.RespondError(w, r, err)
		return
	}

	currentULID, _ := middleware.SessionULID(r.Context())
	result, err := h.state.Auth.Signin(r.Context(), h.meta(r),
		req.Email, req.Password, req.Token, req.Remember, currentULID)
	if err != nil {
		helpers.RespondError(w, r, err)
		return
	}

	if result.TwoFARequired {
		helpers.RespondJSON(w, http.StatusAccepted, map[string]bool{
			"two_fa_backup": result.TwoFABackup,
		})
		return
	}

	if err := h.state.Cookies.Set(w, result.SessionULID, result.TTL); err != nil {
		helpers.RespondError(w, r, apperror.Internal(err))
		return
	}
	helpers.RespondJSON(w, http.StatusOK, nil)
}

func (h *incognitoHandler) Online(w http.ResponseWriter, r *http.Request) {
	helpers.RespondJSON(w, http.StatusOK, map[string]any{
		"uptime":      int(time.Since(h.state.StartedAt).Seconds()),
		"api_version": Version,
	})
}

func (h *incognitoHandler) Meals(w http.ResponseWriter, r *http.Request) {
	info, err := h.state.Cache.GetAll(r.Context(), meal.AudienceJack)
	if err != nil {
		helpers.RespondError(w, r, err)
		return
	}
	helpers.RespondJSON(w, http.StatusOK, info)
}

func (h *incognitoHandler) Hash(w http.ResponseWriter, r *http.Request) {
	hash, err := h.state.Cache.GetHash(r.Context(), meal.AudienceJack)
	if err != nil {
		helpers.RespondError(w, r, err)
		return
	}
	helpers.RespondJSON(w, http.StatusOK, hash)
}
