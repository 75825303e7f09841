package session

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/oklog/ulid/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mealpedant/api/internal/kv"
)

func newTestStore(t *testing.T) (*Store, *kv.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	kvc := kv.NewFromClient(rdb)
	return NewStore(kvc, nil), kvc
}

func TestCreateAndResolve(t *testing.T) {
	store, kvc := newTestStore(t)
	ctx := context.Background()
	id := ulid.Make().String()

	require.NoError(t, store.Create(ctx, 7, "jack@example.com", DefaultTTL, id))

	d, err := store.Data(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, d)
	assert.Equal(t, int64(7), d.UserID)
	assert.Equal(t, "jack@example.com", d.Email)

	// Session TTL lands inside the configured window.
	ttl, err := store.TTL(ctx, id)
	require.NoError(t, err)
	assert.LessOrEqual(t, ttl, DefaultTTL)
	assert.Greater(t, ttl, DefaultTTL-2*time.Second)

	// Membership in the per-user set exists before any cookie is cut.
	members, err := kvc.SMembers(ctx, kv.SessionSetKey(7))
	require.NoError(t, err)
	assert.Equal(t, []string{id}, members)
}

func TestCreateOnlyExtendsSetTTL(t *testing.T) {
	store, kvc := newTestStore(t)
	ctx := context.Background()

	// A short signin after a remember signin must not shorten the set
	// below the longer-lived session.
	require.NoError(t, store.Create(ctx, 7, "jack@example.com", RememberTTL, ulid.Make().String()))
	require.NoError(t, store.Create(ctx, 7, "jack@example.com", DefaultTTL, ulid.Make().String()))

	ttl, err := kvc.TTL(ctx, kv.SessionSetKey(7))
	require.NoError(t, err)
	assert.Greater(t, ttl, RememberTTL-2*time.Second)

	// The other way round the set stretches to the new session.
	require.NoError(t, store.Create(ctx, 9, "dave@example.com", DefaultTTL, ulid.Make().String()))
	require.NoError(t, store.Create(ctx, 9, "dave@example.com", RememberTTL, ulid.Make().String()))

	ttl, err = kvc.TTL(ctx, kv.SessionSetKey(9))
	require.NoError(t, err)
	assert.Greater(t, ttl, RememberTTL-2*time.Second)
}

func TestDeleteRemovesSessionAndSetEntry(t *testing.T) {
	store, kvc := newTestStore(t)
	ctx := context.Background()
	id := ulid.Make().String()

	require.NoError(t, store.Create(ctx, 7, "jack@example.com", DefaultTTL, id))
	require.NoError(t, store.Delete(ctx, id))

	d, err := store.Data(ctx, id)
	require.NoError(t, err)
	assert.Nil(t, d)

	// The set is dropped entirely once its last member goes.
	exists, err := kvc.Exists(ctx, kv.SessionSetKey(7))
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestDeleteKeepsSetWithOtherSessions(t *testing.T) {
	store, kvc := newTestStore(t)
	ctx := context.Background()
	first := ulid.Make().String()
	second := ulid.Make().String()

	require.NoError(t, store.Create(ctx, 7, "jack@example.com", DefaultTTL, first))
	require.NoError(t, store.Create(ctx, 7, "jack@example.com", RememberTTL, second))
	require.NoError(t, store.Delete(ctx, first))

	members, err := kvc.SMembers(ctx, kv.SessionSetKey(7))
	require.NoError(t, err)
	assert.Equal(t, []string{second}, members)
}

func TestDeleteAll(t *testing.T) {
	store, kvc := newTestStore(t)
	ctx := context.Background()

	ids := []string{ulid.Make().String(), ulid.Make().String(), ulid.Make().String()}
	for _, id := range ids {
		require.NoError(t, store.Create(ctx, 7, "jack@example.com", DefaultTTL, id))
	}

	require.NoError(t, store.DeleteAll(ctx, 7))

	for _, id := range ids {
		d, err := store.Data(ctx, id)
		require.NoError(t, err)
		assert.Nil(t, d)
	}
	exists, err := kvc.Exists(ctx, kv.SessionSetKey(7))
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestDeleteUnknownSessionIsNoop(t *testing.T) {
	store, _ := newTestStore(t)
	assert.NoError(t, store.Delete(context.Background(), ulid.Make().String()))
}

func TestList(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()
	id := ulid.Make().String()

	require.NoError(t, store.Create(ctx, 9, "dave@example.com", DefaultTTL, id))
	ids, err := store.List(ctx, 9)
	require.NoError(t, err)
	assert.Equal(t, []string{id}, ids)
}
