package api

import (
	"net/http"
	"runtime"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/mealpedant/api/internal/api/helpers"
	"github.com/mealpedant/api/internal/apperror"
	"github.com/mealpedant/api/internal/backup"
	"github.com/mealpedant/api/internal/user"
)

type adminHandler struct {
	state *State
}

type adminUserRow struct {
	ID               int64     `json:"id"`
	FullName         string    `json:"full_name"`
	Email            string    `json:"email"`
	Active           bool      `json:"active"`
	Admin            bool      `json:"admin"`
	LoginAttempts    int       `json:"login_attempts"`
	TwoFAActive      bool      `json:"two_fa_active"`
	TwoFABackupCount int       `json:"two_fa_backup_count"`
	CreatedAt        time.Time `json:"created_at"`
}

func (h *adminHandler) Users(w http.ResponseWriter, r *http.Request) {
	all, err := h.state.Users.All(r.Context())
	if err != nil {
		helpers.RespondError(w, r, apperror.Database(err))
		return
	}
	rows := make([]adminUserRow, 0, len(all))
	for i := range all {
		u := &all[i]
		rows = append(rows, adminUserRow{
			ID:               u.ID,
			FullName:         u.FullName,
			Email:            u.Email,
			Active:           u.Active,
			Admin:            u.Admin,
			LoginAttempts:    u.LoginAttempts,
			TwoFAActive:      u.TwoFAEnabled(),
			TwoFABackupCount: u.TwoFABackupCount,
			CreatedAt:        u.CreatedAt,
		})
	}
	helpers.RespondJSON(w, http.StatusOK, rows)
}

func (h *adminHandler) Memory(w http.ResponseWriter, r *http.Request) {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	helpers.RespondJSON(w, http.StatusOK, map[string]any{
		"uptime":          int(time.Since(h.state.StartedAt).Seconds()),
		"virt":            ms.Sys,
		"rss":             ms.HeapAlloc,
		"goroutine_count": runtime.NumGoroutine(),
	})
}

func (h *adminHandler) Limits(w http.ResponseWriter, r *http.Request) {
	counters, err := h.state.Limiter.List(r.Context())
	if err != nil {
		helpers.RespondError(w, r, apperror.Internal(err))
		return
	}
	helpers.RespondJSON(w, http.StatusOK, counters)
}

type limitDeleteRequest struct {
	IP    string `json:"ip,omitempty"`
	Email string `json:"email,omitempty"`
}

func (req *limitDeleteRequest) Validate() error {
	if req.IP == "" && req.Email == "" {
		return apperror.MissingKey("ip")
	}
	return nil
}

func (h *adminHandler) DeleteLimit(w http.ResponseWriter, r *http.Request) {
	var req limitDeleteRequest
	if err := helpers.DecodeJSON(r, &req); err != nil {
		helpers.RespondError(w, r, err)
		return
	}
	var err error
	if req.IP != "" {
		err = h.state.Limiter.DeleteIP(r.Context(), req.IP)
	} else {
		err = h.state.Limiter.DeleteEmail(r.Context(), req.Email)
	}
	if err != nil {
		helpers.RespondError(w, r, apperror.Internal(err))
		return
	}
	helpers.RespondJSON(w, http.StatusOK, nil)
}

func (h *adminHandler) pathUser(w http.ResponseWriter, r *http.Request) (*user.User, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "userID"), 10, 64)
	if err != nil {
		helpers.RespondError(w, r, apperror.InvalidValue("invalid userID"))
		return nil, false
	}
	u, err := h.state.Users.GetByID(r.Context(), id)
	if err != nil {
		helpers.RespondError(w, r, apperror.Database(err))
		return nil, false
	}
	if u == nil {
		helpers.RespondError(w, r, apperror.InvalidValue("unknown user"))
		return nil, false
	}
	return u, true
}

type sessionRow struct {
	ULID    string `json:"ulid"`
	Seconds int    `json:"ttl"`
}

func (h *adminHandler) Sessions(w http.ResponseWriter, r *http.Request) {
	u, ok := h.pathUser(w, r)
	if !ok {
		return
	}
	ids, err := h.state.Sessions.List(r.Context(), u.ID)
	if err != nil {
		helpers.RespondError(w, r, apperror.Internal(err))
		return
	}
	rows := make([]sessionRow, 0, len(ids))
	for _, id := range ids {
		ttl, err := h.state.Sessions.TTL(r.Context(), id)
		if err != nil {
			helpers.RespondError(w, r, apperror.Internal(err))
			return
		}
		rows = append(rows, sessionRow{ULID: id, Seconds: int(ttl.Seconds())})
	}
	helpers.RespondJSON(w, http.StatusOK, rows)
}

func (h *adminHandler) DeleteSessions(w http.ResponseWriter, r *http.Request) {
	u, ok := h.pathUser(w, r)
	if !ok {
		return
	}
	if err := h.state.Sessions.DeleteAll(r.Context(), u.ID); err != nil {
		helpers.RespondError(w, r, apperror.Internal(err))
		return
	}
	helpers.RespondJSON(w, http.StatusOK, nil)
}

func (h *adminHandler) Backups(w http.ResponseWriter, r *http.Request) {
	archives, err := h.state.Backups.List()
	if err != nil {
		helpers.RespondError(w, r, err)
		return
	}
	helpers.RespondJSON(w, http.StatusOK, archives)
}

type backupRequest struct {
	WithPhotos bool `json:"with_photos"`
}

// RunBackup triggers a run on demand. The body is optional; without one
// the cheaper SQL-only kind runs.
func (h *adminHandler) RunBackup(w http.ResponseWriter, r *http.Request) {
	var req backupRequest
	if err := helpers.DecodeJSONOptional(r, &req); err != nil {
		helpers.RespondError(w, r, err)
		return
	}
	kind := backup.KindSQL
	if req.WithPhotos {
		kind = backup.KindFull
	}
	name, err := h.state.Backups.Run(r.Context(), kind)
	if err != nil {
		helpers.RespondError(w, r, err)
		return
	}
	helpers.RespondJSON(w, http.StatusOK, map[string]string{"file_name": name})
}

func (h *adminHandler) DeleteBackup(w http.ResponseWriter, r *http.Request) {
	if err := h.state.Backups.Delete(chi.URLParam(r, "name")); err != nil {
		helpers.RespondError(w, r, err)
		return
	}
	helpers.RespondJSON(w, http.StatusOK, nil)
}
