package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
)

// argon2id parameters. The time cost is the only knob that differs between
// release and test builds; memory and parallelism stay fixed.
const (
	argonMemory  uint32 = 4096 // KiB
	argonThreads uint8  = 1
	argonSaltLen        = 16
	argonKeyLen  uint32 = 32

	// ReleaseTimeCost is deliberately extreme: two known users, no
	// interactive signup pressure.
	ReleaseTimeCost uint32 = 190
	TestTimeCost    uint32 = 1
)

var ErrMalformedHash = errors.New("malformed password hash")

// Hasher hashes and verifies passwords with argon2id, producing PHC-format
// strings.
type Hasher struct {
	time uint32
}

// NewHasher selects the release time cost in production mode and the fast
// test cost otherwise.
func NewHasher(production bool) *Hasher {
	if production {
		return &Hasher{time: ReleaseTimeCost}
	}
	return &Hasher{time: TestTimeCost}
}

// Hash returns a PHC-format argon2id string for the password.
func (h *Hasher) Hash(password string) (string, error) {
	salt := make([]byte, argonSaltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("generating salt: %w", err)
	}

	key := argon2.IDKey([]byte(password), salt, h.time, argonMemory, argonThreads, argonKeyLen)

	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version, argonMemory, h.time, argonThreads,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	), nil
}

// Verify checks password against a PHC-format hash. A mismatch returns
// (false, nil); only a malformed hash returns an error. The parameters
// embedded in the hash are honoured so release hashes verify under test.
func (h *Hasher) Verify(password, hash string) (bool, error) {
	parts := strings.Split(hash, "$")
	if len(parts) != 6 || parts[1] != "argon2id" {
		return false, ErrMalformedHash
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil {
		return false, ErrMalformedHash
	}
	var mem, timeCost uint32
	var threads uint8
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &mem, &timeCost, &threads); err != nil {
		return false, ErrMalformedHash
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return false, ErrMalformedHash
	}
	want, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil {
		return false, ErrMalformedHash
	}

	got := argon2.IDKey([]byte(password), salt, timeCost, mem, threads, uint32(len(want)))
	return subtle.ConstantTimeCompare(got, want) == 1, nil
}
