// Package backup produces encrypted archives of the application state and
// sweeps old ones, on a fixed nightly schedule or on demand from the admin
// surface.
package backup

import (
	"strings"
	"time"

	"github.com/mealpedant/api/internal/apperror"
	"github.com/mealpedant/api/internal/auth"
)

// Kind selects what a run archives. The full kind adds the static asset
// tree on top of logs, the Redis RDB file and the SQL dump.
type Kind string

const (
	KindFull Kind = "LOGS_PHOTOS_REDIS_SQL"
	KindSQL  Kind = "LOGS_REDIS_SQL"
)

const (
	namePrefix = "mealpedant_"
	nameSuffix = ".tar.age"
	timeLayout = "2006-01-02_15.04.05"
	hexLen     = 8
)

// Name is a parsed archive filename. ParseName is the only constructor.
type Name struct {
	Timestamp time.Time
	Kind      Kind
	Suffix    string
}

func (n Name) String() string {
	return namePrefix + n.Timestamp.Format(timeLayout) + "_" + string(n.Kind) + "_" + n.Suffix + nameSuffix
}

// GenerateName builds the filename for a run started at ts.
func GenerateName(kind Kind, ts time.Time) (Name, error) {
	suffix, err := auth.GenHex(hexLen)
	if err != nil {
		return Name{}, apperror.Internal(err)
	}
	return Name{Timestamp: ts.UTC().Truncate(time.Second), Kind: kind, Suffix: suffix}, nil
}

// ParseName validates an archive filename and splits it into components.
// Generate and parse round-trip exactly.
func ParseName(s string) (Name, error) {
	invalid := apperror.InvalidValue("unknown backup")

	trimmed, ok := strings.CutPrefix(s, namePrefix)
	if !ok {
		return Name{}, invalid
	}
	trimmed, ok = strings.CutSuffix(trimmed, nameSuffix)
	if !ok {
		return Name{}, invalid
	}

	if len(trimmed) < len(timeLayout)+1 {
		return Name{}, invalid
	}
	ts, err := time.Parse(timeLayout, trimmed[:len(timeLayout)])
	if err != nil {
		return Name{}, invalid
	}

	rest := trimmed[len(timeLayout):]
	var kind Kind
	switch {
	case strings.HasPrefix(rest, "_"+string(KindFull)+"_"):
		kind = KindFull
	case strings.HasPrefix(rest, "_"+string(KindSQL)+"_"):
		kind = KindSQL
	default:
		return Name{}, invalid
	}

	suffix := rest[len(string(kind))+2:]
	if !auth.IsHexOfLen(suffix, hexLen) {
		return Name{}, invalid
	}

	return Name{Timestamp: ts.UTC(), Kind: kind, Suffix: suffix}, nil
}
