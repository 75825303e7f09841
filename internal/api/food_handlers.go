package api

import (
	"net/http"

	"github.com/mealpedant/api/internal/api/helpers"
	"github.com/mealpedant/api/internal/meal"
)

type foodHandler struct {
	state *State
}

func (h *foodHandler) All(w http.ResponseWriter, r *http.Request) {
	info, err := h.state.Cache.GetAll(r.Context(), meal.AudienceBoth)
	if err != nil {
		helpers.RespondError(w, r, err)
		return
	}
	helpers.RespondJSON(w, http.StatusOK, info)
}

func (h *foodHandler) Hash(w http.ResponseWriter, r *http.Request) {
	hash, err := h.state.Cache.GetHash(r.Context(), meal.AudienceBoth)
	if err != nil {
		helpers.RespondError(w, r, err)
		return
	}
	helpers.RespondJSON(w, http.StatusOK, hash)
}

func (h *foodHandler) FlushCache(w http.ResponseWriter, r *http.Request) {
	if err := h.state.Cache.Invalidate(r.Context()); err != nil {
		helpers.RespondError(w, r, err)
		return
	}
	helpers.RespondJSON(w, http.StatusOK, nil)
}
