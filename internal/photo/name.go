// Package photo validates meal photograph names and runs the
// upload/convert/delete pipeline.
package photo

import (
	"strings"

	"github.com/oklog/ulid/v2"

	"github.com/mealpedant/api/internal/apperror"
	"github.com/mealpedant/api/internal/auth"
	"github.com/mealpedant/api/internal/meal"
)

// Variant distinguishes the stored original from the watermarked
// derivative served publicly.
type Variant int

const (
	Original Variant = iota
	Converted
)

const (
	stemLen = 32
	ext     = ".jpg"

	// Stem layout: 26-char lowercase ULID, one person bit, one variant
	// bit, 4 random hex characters.
	personIdx  = 26
	variantIdx = 27
	suffixIdx  = 28
)

// Name is a validated photo filename. ParseName is the only constructor,
// so holding a Name means the shape already checked out.
type Name struct {
	value   string
	variant Variant
	person  string
}

// ParseName accepts exactly a 32-character stem plus ".jpg" with valid
// ULID, person bit and variant bit. Anything else is an invalid value.
func ParseName(s string) (Name, error) {
	if len(s) != stemLen+len(ext) || !strings.HasSuffix(s, ext) {
		return Name{}, apperror.InvalidValue("invalid photo name")
	}
	stem := s[:stemLen]
	if stem != strings.ToLower(stem) {
		return Name{}, apperror.InvalidValue("invalid photo name")
	}
	if _, err := ulid.ParseStrict(strings.ToUpper(stem[:personIdx])); err != nil {
		return Name{}, apperror.InvalidValue("invalid photo name")
	}

	var person string
	switch stem[personIdx] {
	case '0':
		person = meal.PersonDave
	case '1':
		person = meal.PersonJack
	default:
		return Name{}, apperror.InvalidValue("invalid photo name")
	}

	var variant Variant
	switch stem[variantIdx] {
	case '0':
		variant = Original
	case '1':
		variant = Converted
	default:
		return Name{}, apperror.InvalidValue("invalid photo name")
	}

	if !auth.IsHexOfLen(stem[suffixIdx:], stemLen-suffixIdx) {
		return Name{}, apperror.InvalidValue("invalid photo name")
	}

	return Name{value: s, variant: variant, person: person}, nil
}

func (n Name) String() string   { return n.value }
func (n Name) Variant() Variant { return n.variant }
func (n Name) Person() string   { return n.person }

// Pair generates matching original and converted names for one upload:
// same ULID and random suffix, differing only in the variant bit.
func Pair(person string) (original, converted Name, err error) {
	if !meal.ValidPerson(person) {
		return Name{}, Name{}, apperror.InvalidValue("unknown person")
	}
	personBit := "0"
	if person == meal.PersonJack {
		personBit = "1"
	}
	id := strings.ToLower(ulid.Make().String())
	suffix, err := auth.GenHex(4)
	if err != nil {
		return Name{}, Name{}, apperror.Internal(err)
	}

	original = Name{value: id + personBit + "0" + suffix + ext, variant: Original, person: person}
	converted = Name{value: id + personBit + "1" + suffix + ext, variant: Converted, person: person}
	return original, converted, nil
}
