package photo

import (
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/mealpedant/api/internal/apperror"
	"github.com/mealpedant/api/internal/meal"
)

// MaxUploadBytes caps the photo upload body.
const MaxUploadBytes = 10 << 20

// Service owns the two photo directories and the conversion step.
type Service struct {
	originalDir  string
	convertedDir string
	converter    *Converter
	log          *slog.Logger
}

func NewService(originalDir, convertedDir string, converter *Converter, log *slog.Logger) *Service {
	return &Service{
		originalDir:  originalDir,
		convertedDir: convertedDir,
		converter:    converter,
		log:          log,
	}
}

// ValidUploadType accepts the two JPEG content types, case-insensitive.
func ValidUploadType(contentType string) bool {
	switch strings.ToLower(contentType) {
	case "image/jpeg", "image/jpg":
		return true
	}
	return false
}

// PersonFromStem maps an upload filename stem to a diarist: the stem must
// be exactly "J" or "D".
func PersonFromStem(stem string) (string, error) {
	switch stem {
	case "J":
		return meal.PersonJack, nil
	case "D":
		return meal.PersonDave, nil
	}
	return "", apperror.InvalidValue("invalid filename")
}

// Save persists the original bytes and writes the watermarked derivative,
// returning both generated names.
func (s *Service) Save(person string, body []byte) (original, converted Name, err error) {
	if len(body) == 0 {
		return Name{}, Name{}, apperror.InvalidValue("empty image")
	}

	original, converted, err = Pair(person)
	if err != nil {
		return Name{}, Name{}, err
	}

	derived, err := s.converter.Convert(body)
	if err != nil {
		return Name{}, Name{}, err
	}

	if err := os.WriteFile(s.Path(original), body, 0o644); err != nil {
		return Name{}, Name{}, apperror.Io(err)
	}
	if err := os.WriteFile(s.Path(converted), derived, 0o644); err != nil {
		// Keep the pair atomic: a half-written pair is worse than none.
		_ = os.Remove(s.Path(original))
		return Name{}, Name{}, apperror.Io(err)
	}

	s.log.Info("photo_saved", "original", original.String(), "converted", converted.String())
	return original, converted, nil
}

// Delete unlinks both files of a pair. Either file missing is a client
// error, not an I/O one.
func (s *Service) Delete(original, converted Name) error {
	if original.Variant() != Original || converted.Variant() != Converted {
		return apperror.InvalidValue("unknown image")
	}
	for _, n := range []Name{original, converted} {
		if err := os.Remove(s.Path(n)); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return apperror.InvalidValue("unknown image")
			}
			return apperror.Io(err)
		}
	}
	s.log.Info("photo_deleted", "original", original.String(), "converted", converted.String())
	return nil
}

// Path returns the on-disk location for a validated name; the variant bit
// selects the directory.
func (s *Service) Path(n Name) string {
	if n.Variant() == Converted {
		return filepath.Join(s.convertedDir, n.String())
	}
	return filepath.Join(s.originalDir, n.String())
}
