// Package session keeps cookie-backed sessions in the KV store: one hash
// per session plus a per-user set for bulk revocation.
package session

import (
	"context"
	"time"

	"github.com/mealpedant/api/internal/kv"
	"github.com/mealpedant/api/internal/user"
)

const (
	// DefaultTTL applies to ordinary signins.
	DefaultTTL = 6 * time.Hour
	// RememberTTL applies when the signin sets "remember": 6x4x7 days.
	RememberTTL = 6 * 4 * 7 * 24 * time.Hour
)

// Data is the JSON payload stored under session:<ulid>.
type Data struct {
	UserID int64  `json:"user_id"`
	Email  string `json:"email"`
}

// Store creates, resolves and revokes sessions.
type Store struct {
	kv    *kv.Client
	users *user.Store
}

func NewStore(kvc *kv.Client, users *user.Store) *Store {
	return &Store{kv: kvc, users: users}
}

// Create writes the session and its per-user set membership. The session
// must exist before the cookie is emitted to the client. The set's TTL
// only ever extends: a short signin after a long-lived one must not
// shorten the set below a still-live sibling session.
func (s *Store) Create(ctx context.Context, userID int64, email string, ttl time.Duration, ulid string) error {
	if err := s.kv.SetJSON(ctx, kv.SessionKey(ulid), Data{UserID: userID, Email: email}, ttl); err != nil {
		return err
	}
	setKey := kv.SessionSetKey(userID)
	if err := s.kv.SAdd(ctx, setKey, ulid); err != nil {
		return err
	}
	current, err := s.kv.TTL(ctx, setKey)
	if err != nil {
		return err
	}
	if ttl > current {
		return s.kv.Expire(ctx, setKey, ttl)
	}
	return nil
}

// Data resolves the raw session payload without touching the user table.
func (s *Store) Data(ctx context.Context, ulid string) (*Data, error) {
	var d Data
	ok, err := s.kv.GetJSON(ctx, kv.SessionKey(ulid), &d)
	if err != nil || !ok {
		return nil, err
	}
	return &d, nil
}

// Get resolves the session to its user. A session whose user no longer
// exists (deleted or deactivated elsewhere) is removed and nil is
// returned.
func (s *Store) Get(ctx context.Context, ulid string) (*user.User, error) {
	d, err := s.Data(ctx, ulid)
	if err != nil || d == nil {
		return nil, err
	}
	u, err := s.users.GetByID(ctx, d.UserID)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, s.Delete(ctx, ulid)
	}
	return u, nil
}

// Delete removes one session and its set membership, dropping the set
// itself once empty.
func (s *Store) Delete(ctx context.Context, ulid string) error {
	d, err := s.Data(ctx, ulid)
	if err != nil {
		return err
	}
	if d != nil {
		setKey := kv.SessionSetKey(d.UserID)
		if err := s.kv.SRem(ctx, setKey, ulid); err != nil {
			return err
		}
		n, err := s.kv.SCard(ctx, setKey)
		if err != nil {
			return err
		}
		if n == 0 {
			if err := s.kv.Del(ctx, setKey); err != nil {
				return err
			}
		}
	}
	return s.kv.Del(ctx, kv.SessionKey(ulid))
}

// DeleteAll revokes every session of the user, then the set.
func (s *Store) DeleteAll(ctx context.Context, userID int64) error {
	setKey := kv.SessionSetKey(userID)
	members, err := s.kv.SMembers(ctx, setKey)
	if err != nil {
		return err
	}
	for _, ulid := range members {
		if err := s.kv.Del(ctx, kv.SessionKey(ulid)); err != nil {
			return err
		}
	}
	return s.kv.Del(ctx, setKey)
}

// List returns the session ids of the user. Admin surface.
func (s *Store) List(ctx context.Context, userID int64) ([]string, error) {
	return s.kv.SMembers(ctx, kv.SessionSetKey(userID))
}

// TTL reports the remaining lifetime of a session.
func (s *Store) TTL(ctx context.Context, ulid string) (time.Duration, error) {
	return s.kv.TTL(ctx, kv.SessionKey(ulid))
}
