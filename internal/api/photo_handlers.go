package api

import (
	"errors"
	"io"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/mealpedant/api/internal/api/helpers"
	"github.com/mealpedant/api/internal/apperror"
	"github.com/mealpedant/api/internal/photo"
)

type photoHandler struct {
	state *State
}

// Upload takes the first multipart file part: its filename stem selects
// the person ("J" or "D"), its content type must be JPEG.
func (h *photoHandler) Upload(w http.ResponseWriter, r *http.Request) {
	mr, err := r.MultipartReader()
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			helpers.RespondError(w, r, apperror.BodySize())
			return
		}
		helpers.RespondError(w, r, apperror.InvalidValue("invalid multipart body"))
		return
	}

	part, err := mr.NextPart()
	if err != nil {
		helpers.RespondError(w, r, apperror.InvalidValue("invalid multipart body"))
		return
	}
	defer part.Close()

	if !photo.ValidUploadType(part.Header.Get("Content-Type")) {
		helpers.RespondError(w, r, apperror.InvalidValue("invalid image type"))
		return
	}

	stem := strings.TrimSuffix(part.FileName(), filepath.Ext(part.FileName()))
	person, err := photo.PersonFromStem(stem)
	if err != nil {
		helpers.RespondError(w, r, err)
		return
	}

	body, err := io.ReadAll(part)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			helpers.RespondError(w, r, apperror.BodySize())
			return
		}
		helpers.RespondError(w, r, apperror.Io(err))
		return
	}

	original, converted, err := h.state.Photos.Save(person, body)
	if err != nil {
		helpers.RespondError(w, r, err)
		return
	}
	helpers.RespondJSON(w, http.StatusOK, map[string]string{
		"original":  original.String(),
		"converted": converted.String(),
	})
}

type photoDeleteRequest struct {
	Original  string `json:"original"`
	Converted string `json:"converted"`
}

func (req *photoDeleteRequest) Validate() error {
	switch {
	case req.Original == "":
		return apperror.MissingKey("original")
	case req.Converted == "":
		return apperror.MissingKey("converted")
	}
	return nil
}

func (h *photoHandler) Delete(w http.ResponseWriter, r *http.Request) {
	var req photoDeleteRequest
	if err := helpers.DecodeJSON(r, &req); err != nil {
		helpers.RespondError(w, r, err)
		return
	}

	original, err := photo.ParseName(req.Original)
	if err != nil {
		helpers.RespondError(w, r, apperror.InvalidValue("unknown image"))
		return
	}
	converted, err := photo.ParseName(req.Converted)
	if err != nil {
		helpers.RespondError(w, r, apperror.InvalidValue("unknown image"))
		return
	}

	if err := h.state.Photos.Delete(original, converted); err != nil {
		helpers.RespondError(w, r, err)
		return
	}
	helpers.RespondJSON(w, http.StatusOK, nil)
}
