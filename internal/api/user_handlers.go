package api

import (
	"net/http"

	"github.com/mealpedant/api/internal/api/helpers"
	"github.com/mealpedant/api/internal/api/middleware"
	"github.com/mealpedant/api/internal/apperror"
	"github.com/mealpedant/api/internal/user"
)

type userHandler struct {
	state *State
}

// userSummary is the authenticated self-view.
type userSummary struct {
	FullName            string `json:"full_name"`
	Email               string `json:"email"`
	Admin               bool   `json:"admin"`
	TwoFAActive         bool   `json:"two_fa_active"`
	TwoFAAlwaysRequired bool   `json:"two_fa_always_required"`
	TwoFABackupCount    int    `json:"two_fa_backup_count"`
}

func summarise(u *user.User) userSummary {
	return userSummary{
		FullName:            u.FullName,
		Email:               u.Email,
		Admin:               u.Admin,
		TwoFAActive:         u.TwoFAEnabled(),
		TwoFAAlwaysRequired: u.TwoFAAlwaysRequired,
		TwoFABackupCount:    u.TwoFABackupCount,
	}
}

func (h *userHandler) Me(w http.ResponseWriter, r *http.Request) {
	u, _ := middleware.User(r.Context())
	helpers.RespondJSON(w, http.StatusOK, summarise(u))
}

func (h *userHandler) Signout(w http.ResponseWriter, r *http.Request) {
	ulid, _ := middleware.SessionULID(r.Context())
	if err := h.state.Auth.Signout(r.Context(), ulid); err != nil {
		helpers.RespondError(w, r, err)
		return
	}
	h.state.Cookies.Clear(w)
	helpers.RespondJSON(w, http.StatusOK, nil)
}

type changePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
	Token           string `json:"token,omitempty"`
}

func (req *changePasswordRequest) Validate() error {
	switch {
	case req.CurrentPassword == "":
		return apperror.MissingKey("current_password")
	case req.NewPassword == "":
		return apperror.MissingKey("new_password")
	}
	return nil
}

func (h *userHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	var req changePasswordRequest
	if err := helpers.DecodeJSON(r, &req); err != nil {
		helpers.RespondError(w, r, err)
		return
	}
	u, _ := middleware.User(r.Context())
	if err := h.state.Auth.ChangePassword(r.Context(), u, req.CurrentPassword, req.Token, req.NewPassword); err != nil {
		helpers.RespondError(w, r, err)
		return
	}
	helpers.RespondJSON(w, http.StatusOK, nil)
}

// --- two factor ------------------------------------------------------------

func (h *userHandler) SetupTwoFAStart(w http.ResponseWriter, r *http.Request) {
	u, _ := middleware.User(r.Context())
	setup, err := h.state.Auth.SetupTwoFAStart(r.Context(), u)
	if err != nil {
		helpers.RespondError(w, r, err)
		return
	}
	helpers.RespondJSON(w, http.StatusOK, setup)
}

type tokenRequest struct {
	Token string `json:"token"`
}

func (req *tokenRequest) Validate() error {
	if req.Token == "" {
		return apperror.MissingKey("token")
	}
	return nil
}

func (h *userHandler) SetupTwoFAConfirm(w http.ResponseWriter, r *http.Request) {
	var req tokenRequest
	if err := helpers.DecodeJSON(r, &req); err != nil {
		helpers.RespondError(w, r, err)
		return
	}
	u, _ := middleware.User(r.Context())
	if err := h.state.Auth.SetupTwoFAConfirm(r.Context(), u, req.Token); err != nil {
		helpers.RespondError(w, r, err)
		return
	}
	helpers.RespondJSON(w, http.StatusOK, nil)
}

func (h *userHandler) SetupTwoFACancel(w http.ResponseWriter, r *http.Request) {
	u, _ := middleware.User(r.Context())
	if err := h.state.Auth.SetupTwoFACancel(r.Context(), u); err != nil {
		helpers.RespondError(w, r, err)
		return
	}
	helpers.RespondJSON(w, http.StatusOK, nil)
}

type alwaysRequiredRequest struct {
	AlwaysRequired bool   `json:"always_required"`
	Password       string `json:"password,omitempty"`
	Token          string `json:"token,omitempty"`
}

func (h *userHandler) SetTwoFAAlwaysRequired(w http.ResponseWriter, r *http.Request) {
	var req alwaysRequiredRequest
	if err := helpers.DecodeJSON(r, &req); err != nil {
		helpers.RespondError(w, r, err)
		return
	}
	u, _ := middleware.User(r.Context())
	if err := h.state.Auth.SetTwoFAAlwaysRequired(r.Context(), u, req.AlwaysRequired, req.Password, req.Token); err != nil {
		helpers.RespondError(w, r, err)
		return
	}
	helpers.RespondJSON(w, http.StatusOK, nil)
}

type passwordTokenRequest struct {
	Password string `json:"password"`
	Token    string `json:"token,omitempty"`
}

func (req *passwordTokenRequest) Validate() error {
	if req.Password == "" {
		return apperror.MissingKey("password")
	}
	return nil
}

func (h *userHandler) DisableTwoFA(w http.ResponseWriter, r *http.Request) {
	var req passwordTokenRequest
	if err := helpers.DecodeJSON(r, &req); err != nil {
		helpers.RespondError(w, r, err)
		return
	}
	u, _ := middleware.User(r.Context())
	if err := h.state.Auth.DisableTwoFA(r.Context(), u, req.Password, req.Token); err != nil {
		helpers.RespondError(w, r, err)
		return
	}
	helpers.RespondJSON(w, http.StatusOK, nil)
}

func (h *userHandler) GenerateBackupCodes(w http.ResponseWriter, r *http.Request) {
	u, _ := middleware.User(r.Context())
	codes, err := h.state.Auth.GenerateBackupCodes(r.Context(), u)
	if err != nil {
		helpers.RespondError(w, r, err)
		return
	}
	helpers.RespondJSON(w, http.StatusOK, map[string][]string{"backups": codes})
}

func (h *userHandler) RotateBackupCodes(w http.ResponseWriter, r *http.Request) {
	u, _ := middleware.User(r.Context())
	codes, err := h.state.Auth.RotateBackupCodes(r.Context(), u)
	if err != nil {
		helpers.RespondError(w, r, err)
		return
	}
	helpers.RespondJSON(w, http.StatusOK, map[string][]string{"backups": codes})
}

func (h *userHandler) ClearBackupCodes(w http.ResponseWriter, r *http.Request) {
	var req passwordTokenRequest
	if err := helpers.DecodeJSON(r, &req); err != nil {
		helpers.RespondError(w, r, err)
		return
	}
	u, _ := middleware.User(r.Context())
	if err := h.state.Auth.ClearBackupCodes(r.Context(), u, req.Password, req.Token); err != nil {
		helpers.RespondError(w, r, err)
		return
	}
	helpers.RespondJSON(w, http.StatusOK, nil)
}
