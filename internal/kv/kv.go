// Package kv wraps the Redis client with the typed operations the rest of
// the application uses. Values are either plain integers (rate counters)
// or JSON strings stored under the single hash field "data", which keeps
// the field layout forward-compatible.
package kv

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// dataField is the single hash field holding JSON payloads.
const dataField = "data"

// Config describes the Redis connection.
type Config struct {
	Addr     string
	Password string
	DB       int
}

// Client is a typed wrapper over go-redis. The zero value is not usable;
// construct with New or NewFromClient.
type Client struct {
	rdb goredis.UniversalClient

	// onFatal is invoked for I/O-class failures. The store is load-bearing
	// for sessions and rate limiting, so by default the process exits.
	onFatal func(error)
}

// New creates a Client that owns the underlying connection. The connection
// is verified with a PING before returning.
func New(cfg Config) (*Client, error) {
	rdb := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("kv: failed to connect: %w", err)
	}

	return &Client{
		rdb: rdb,
		onFatal: func(err error) {
			slog.Error("kv_io_failure_fatal", "error", err)
			os.Exit(1)
		},
	}, nil
}

// NewFromClient wraps an existing client; used by tests with miniredis.
// I/O failures are returned to the caller instead of exiting the process.
func NewFromClient(rdb goredis.UniversalClient) *Client {
	return &Client{rdb: rdb}
}

func (c *Client) Close() error { return c.rdb.Close() }

// check classifies err. Nil and redis.Nil pass through; network-level
// failures trip the fatal hook because no correctness guarantee survives a
// dead store.
func (c *Client) check(err error) error {
	if err == nil || errors.Is(err, goredis.Nil) {
		return err
	}
	var netErr net.Error
	if c.onFatal != nil && (errors.As(err, &netErr) || errors.Is(err, goredis.ErrClosed)) {
		c.onFatal(err)
	}
	return err
}

// GetJSON reads the JSON payload of key into v. The bool reports presence.
func (c *Client) GetJSON(ctx context.Context, key string, v any) (bool, error) {
	raw, err := c.rdb.HGet(ctx, key, dataField).Result()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return false, nil
		}
		return false, c.check(err)
	}
	if err := json.Unmarshal([]byte(raw), v); err != nil {
		return false, fmt.Errorf("kv: unmarshal %s: %w", key, err)
	}
	return true, nil
}

// SetJSON writes v as the JSON payload of key. A zero ttl persists forever.
func (c *Client) SetJSON(ctx context.Context, key string, v any, ttl time.Duration) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("kv: marshal %s: %w", key, err)
	}
	pipe := c.rdb.TxPipeline()
	pipe.HSet(ctx, key, dataField, string(raw))
	if ttl > 0 {
		pipe.Expire(ctx, key, ttl)
	}
	_, err = pipe.Exec(ctx)
	return c.check(err)
}

// GetString reads a plain string value; ok is false when absent.
func (c *Client) GetString(ctx context.Context, key string) (string, bool, error) {
	raw, err := c.rdb.Get(ctx, key).Result()
	if errors.Is(err, goredis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, c.check(err)
	}
	return raw, true, nil
}

// SetString writes a plain string value.
func (c *Client) SetString(ctx context.Context, key, value string, ttl time.Duration) error {
	return c.check(c.rdb.Set(ctx, key, value, ttl).Err())
}

// GetInt reads an integer counter; absent keys read as 0 with ok false.
func (c *Client) GetInt(ctx context.Context, key string) (int64, bool, error) {
	raw, err := c.rdb.Get(ctx, key).Result()
	if errors.Is(err, goredis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, c.check(err)
	}
	var n int64
	if _, err := fmt.Sscan(raw, &n); err != nil {
		return 0, false, fmt.Errorf("kv: non-integer value at %s: %q", key, raw)
	}
	return n, true, nil
}

// Incr increments key, creating it at 1, and returns the new value.
func (c *Client) Incr(ctx context.Context, key string) (int64, error) {
	n, err := c.rdb.Incr(ctx, key).Result()
	return n, c.check(err)
}

// Del removes the given keys in a single multi-key delete.
func (c *Client) Del(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return c.check(c.rdb.Del(ctx, keys...).Err())
}

// Exists reports whether key is present.
func (c *Client) Exists(ctx context.Context, key string) (bool, error) {
	n, err := c.rdb.Exists(ctx, key).Result()
	return n > 0, c.check(err)
}

// TTL returns the remaining lifetime of key. Keys without expiry or absent
// keys report a non-positive duration.
func (c *Client) TTL(ctx context.Context, key string) (time.Duration, error) {
	d, err := c.rdb.TTL(ctx, key).Result()
	return d, c.check(err)
}

// Expire sets the lifetime of key.
func (c *Client) Expire(ctx context.Context, key string, ttl time.Duration) error {
	return c.check(c.rdb.Expire(ctx, key, ttl).Err())
}

// SAdd adds member to the set at key.
func (c *Client) SAdd(ctx context.Context, key, member string) error {
	return c.check(c.rdb.SAdd(ctx, key, member).Err())
}

// SRem removes member from the set at key.
func (c *Client) SRem(ctx context.Context, key, member string) error {
	return c.check(c.rdb.SRem(ctx, key, member).Err())
}

// SMembers returns all members of the set at key.
func (c *Client) SMembers(ctx context.Context, key string) ([]string, error) {
	members, err := c.rdb.SMembers(ctx, key).Result()
	return members, c.check(err)
}

// SCard returns the cardinality of the set at key.
func (c *Client) SCard(ctx context.Context, key string) (int64, error) {
	n, err := c.rdb.SCard(ctx, key).Result()
	return n, c.check(err)
}

// Scan walks the keyspace non-blockingly and returns every key matching
// the glob pattern.
func (c *Client) Scan(ctx context.Context, match string) ([]string, error) {
	var (
		cursor uint64
		keys   []string
	)
	for {
		batch, next, err := c.rdb.Scan(ctx, cursor, match, 100).Result()
		if err != nil {
			return nil, c.check(err)
		}
		keys = append(keys, batch...)
		if next == 0 {
			return keys, nil
		}
		cursor = next
	}
}
