package meal

import (
	"time"

	"github.com/mealpedant/api/internal/apperror"
)

// The two diarists. Person is stored in its own table but the set is
// closed.
const (
	PersonDave = "Dave"
	PersonJack = "Jack"
)

// Audiences for the materialised feed: "both" includes Dave, "jack" is
// the public variant.
const (
	AudienceBoth = "both"
	AudienceJack = "jack"
)

// GenesisDate is the earliest legal meal date.
var GenesisDate = time.Date(2015, 5, 9, 0, 0, 0, 0, time.UTC)

const dateLayout = "2006-01-02"

// ValidPerson reports whether p names a diarist.
func ValidPerson(p string) bool {
	return p == PersonDave || p == PersonJack
}

// ParseDate validates a meal date: ISO format, not before genesis.
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return time.Time{}, apperror.InvalidValue("invalid date")
	}
	if t.Before(GenesisDate) {
		return time.Time{}, apperror.InvalidValue("invalid date")
	}
	return t, nil
}

// Meal is the write-side shape: one person's entry for one date.
type Meal struct {
	Date        string `json:"date"`
	Person      string `json:"person"`
	Category    string `json:"category"`
	Description string `json:"description"`
	Restaurant  bool   `json:"restaurant"`
	Takeaway    bool   `json:"takeaway"`
	Vegetarian  bool   `json:"vegetarian"`

	PhotoOriginal  string `json:"photo_original,omitempty"`
	PhotoConverted string `json:"photo_converted,omitempty"`
}

// FeedRow is one flattened row of the full feed, ordered (date desc,
// person) by the store.
type FeedRow struct {
	Date           string
	Person         string
	DescriptionID  int64
	Description    string
	CategoryID     int64
	Category       string
	Restaurant     bool
	Takeaway       bool
	Vegetarian     bool
	PhotoOriginal  string
	PhotoConverted string
}

// PersonMeal is one person's entry inside a DateMeal; text is referenced
// by id into the MealInfo maps.
type PersonMeal struct {
	DescriptionID  int64  `json:"description_id"`
	CategoryID     int64  `json:"category_id"`
	Restaurant     bool   `json:"restaurant"`
	Takeaway       bool   `json:"takeaway"`
	Vegetarian     bool   `json:"vegetarian"`
	PhotoOriginal  string `json:"photo_original,omitempty"`
	PhotoConverted string `json:"photo_converted,omitempty"`
}

// DateMeal groups one date's entries. The feed hash is computed over the
// ordered list of these, so field order and omission rules here are part
// of the contract.
type DateMeal struct {
	Date string      `json:"date"`
	Jack *PersonMeal `json:"J,omitempty"`
	Dave *PersonMeal `json:"D,omitempty"`
}

// MealInfo is the fully materialised feed for one audience.
type MealInfo struct {
	Descriptions map[int64]string `json:"descriptions"`
	Categories   map[int64]string `json:"categories"`
	DateMeals    []DateMeal       `json:"date_meals"`
}
