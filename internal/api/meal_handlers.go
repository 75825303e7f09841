package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/mealpedant/api/internal/api/helpers"
	"github.com/mealpedant/api/internal/apperror"
	"github.com/mealpedant/api/internal/meal"
)

type mealHandler struct {
	state *State
}

type mealRequest struct {
	Date           string `json:"date"`
	Person         string `json:"person"`
	Category       string `json:"category"`
	Description    string `json:"description"`
	Restaurant     bool   `json:"restaurant"`
	Takeaway       bool   `json:"takeaway"`
	Vegetarian     bool   `json:"vegetarian"`
	PhotoOriginal  string `json:"photo_original,omitempty"`
	PhotoConverted string `json:"photo_converted,omitempty"`
}

func (req *mealRequest) Validate() error {
	switch {
	case req.Date == "":
		return apperror.MissingKey("date")
	case req.Person == "":
		return apperror.MissingKey("person")
	case req.Category == "":
		return apperror.MissingKey("category")
	case req.Description == "":
		return apperror.MissingKey("description")
	}
	return nil
}

func (req *mealRequest) toMeal() *meal.Meal {
	return &meal.Meal{
		Date:           req.Date,
		Person:         req.Person,
		Category:       req.Category,
		Description:    req.Description,
		Restaurant:     req.Restaurant,
		Takeaway:       req.Takeaway,
		Vegetarian:     req.Vegetarian,
		PhotoOriginal:  req.PhotoOriginal,
		PhotoConverted: req.PhotoConverted,
	}
}

func (h *mealHandler) Get(w http.ResponseWriter, r *http.Request) {
	date := chi.URLParam(r, "date")
	person := chi.URLParam(r, "person")
	if _, err := meal.ParseDate(date); err != nil {
		helpers.RespondError(w, r, err)
		return
	}
	if !meal.ValidPerson(person) {
		helpers.RespondError(w, r, apperror.InvalidValue("unknown person"))
		return
	}

	m, err := h.state.Meals.Get(r.Context(), date, person)
	if err != nil {
		helpers.RespondError(w, r, err)
		return
	}
	if m == nil {
		helpers.RespondError(w, r, apperror.InvalidValue("unknown meal"))
		return
	}
	helpers.RespondJSON(w, http.StatusOK, m)
}

func (h *mealHandler) Insert(w http.ResponseWriter, r *http.Request) {
	h.mutate(w, r, func(req *mealRequest) error {
		return h.state.Meals.Insert(r.Context(), req.toMeal())
	})
}

func (h *mealHandler) Update(w http.ResponseWriter, r *http.Request) {
	h.mutate(w, r, func(req *mealRequest) error {
		return h.state.Meals.Update(r.Context(), req.toMeal())
	})
}

func (h *mealHandler) Delete(w http.ResponseWriter, r *http.Request) {
	date := chi.URLParam(r, "date")
	person := chi.URLParam(r, "person")
	if _, err := meal.ParseDate(date); err != nil {
		helpers.RespondError(w, r, err)
		return
	}
	if !meal.ValidPerson(person) {
		helpers.RespondError(w, r, apperror.InvalidValue("unknown person"))
		return
	}
	if err := h.state.Meals.Delete(r.Context(), date, person); err != nil {
		helpers.RespondError(w, r, err)
		return
	}
	if err := h.state.Cache.Invalidate(r.Context()); err != nil {
		helpers.RespondError(w, r, err)
		return
	}
	helpers.RespondJSON(w, http.StatusOK, nil)
}

// mutate runs one meal write and invalidates the caches on success; every
// write path ends in the same four-key delete.
func (h *mealHandler) mutate(w http.ResponseWriter, r *http.Request, op func(*mealRequest) error) {
	var req mealRequest
	if err := helpers.DecodeJSON(r, &req); err != nil {
		helpers.RespondError(w, r, err)
		return
	}
	if err := op(&req); err != nil {
		helpers.RespondError(w, r, err)
		return
	}
	if err := h.state.Cache.Invalidate(r.Context()); err != nil {
		helpers.RespondError(w, r, err)
		return
	}
	helpers.RespondJSON(w, http.StatusOK, nil)
}
