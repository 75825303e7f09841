// Package ratelimit implements the two-tier request counter shared by both
// HTTP servers. Anonymous callers are counted per IP, authenticated
// callers per session email; the two counters are independent and the
// identity scope is deliberately more generous.
package ratelimit

import (
	"context"
	"time"

	"github.com/mealpedant/api/internal/apperror"
	"github.com/mealpedant/api/internal/kv"
	"github.com/mealpedant/api/internal/session"
)

const (
	// Post-increment thresholds per scope.
	ipLimit    = 90
	ipBlock    = 180
	emailLimit = 500
	emailBlock = 1000

	windowTTL  = 60 * time.Second
	penaltyTTL = 300 * time.Second
)

// Limiter escalates per-key sliding counters held in the KV store.
type Limiter struct {
	kv       *kv.Client
	sessions *session.Store
}

func NewLimiter(kvc *kv.Client, sessions *session.Store) *Limiter {
	return &Limiter{kv: kvc, sessions: sessions}
}

// Check counts the request and reports nil when it may proceed. A present
// session ULID that resolves to a live session switches the key to the
// session's email scope. The incr/ttl/expire sequence is not transactional;
// a minor over-count near expiry is acceptable.
func (l *Limiter) Check(ctx context.Context, ip, sessionULID string) error {
	key := kv.RateLimitIPKey(ip)
	limit, block := int64(ipLimit), int64(ipBlock)

	if sessionULID != "" {
		d, err := l.sessions.Data(ctx, sessionULID)
		if err != nil {
			return apperror.Internal(err)
		}
		if d != nil {
			key = kv.RateLimitEmailKey(d.Email)
			limit, block = emailLimit, emailBlock
		}
	}

	n, err := l.kv.Incr(ctx, key)
	if err != nil {
		return apperror.Internal(err)
	}

	switch {
	case n >= block:
		if err := l.kv.Expire(ctx, key, penaltyTTL); err != nil {
			return apperror.Internal(err)
		}
		return apperror.RateLimited(int(penaltyTTL.Seconds()))
	case n == limit:
		if err := l.kv.Expire(ctx, key, windowTTL); err != nil {
			return apperror.Internal(err)
		}
		return apperror.RateLimited(int(windowTTL.Seconds()))
	case n > limit:
		ttl, err := l.kv.TTL(ctx, key)
		if err != nil {
			return apperror.Internal(err)
		}
		return apperror.RateLimited(int(ttl.Seconds()))
	default:
		if n == 1 {
			if err := l.kv.Expire(ctx, key, windowTTL); err != nil {
				return apperror.Internal(err)
			}
		}
		return nil
	}
}

// Counter is one live rate counter, for the admin surface.
type Counter struct {
	Key     string `json:"key"`
	Count   int64  `json:"count"`
	Seconds int    `json:"ttl"`
}

// List returns every live counter.
func (l *Limiter) List(ctx context.Context) ([]Counter, error) {
	keys, err := l.kv.Scan(ctx, "ratelimit:*")
	if err != nil {
		return nil, err
	}
	counters := make([]Counter, 0, len(keys))
	for _, key := range keys {
		n, ok, err := l.kv.GetInt(ctx, key)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		ttl, err := l.kv.TTL(ctx, key)
		if err != nil {
			return nil, err
		}
		counters = append(counters, Counter{Key: key, Count: n, Seconds: int(ttl.Seconds())})
	}
	return counters, nil
}

// DeleteIP drops the counter for an IP.
func (l *Limiter) DeleteIP(ctx context.Context, ip string) error {
	return l.kv.Del(ctx, kv.RateLimitIPKey(ip))
}

// DeleteEmail drops the counter for an email address.
func (l *Limiter) DeleteEmail(ctx context.Context, email string) error {
	return l.kv.Del(ctx, kv.RateLimitEmailKey(email))
}
