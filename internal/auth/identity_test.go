package auth

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedisIdentityStoreTest(t *testing.T) (*RedisIdentityStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewRedisIdentityStore(rdb, ""), mr
}

func TestMemoryIdentityStore(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryIdentityStore(Identity{Principal: "alice", Roles: []string{"user"}})

	id, err := store.FindIdentity(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, []string{"user"}, id.Roles)

	id.Roles[0] = "root"
	again, err := store.FindIdentity(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, []string{"user"}, again.Roles, "returned identities must not alias store state")

	_, err = store.FindIdentity(ctx, "bob")
	assert.ErrorIs(t, err, ErrIdentityNotFound)

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	_, err = store.FindIdentity(cancelled, "alice")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRedisIdentityStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	store, _ := newRedisIdentityStoreTest(t)

	updated := time.UnixMilli(1700000000123)
	require.NoError(t, store.Put(ctx, Identity{
		Principal: "alice",
		Roles:     []string{"user", "admin"},
		UpdatedAt: updated,
	}))

	id, err := store.FindIdentity(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "alice", id.Principal)
	assert.Equal(t, []string{"user", "admin"}, id.Roles)
	assert.True(t, updated.Equal(id.UpdatedAt))
	assert.False(t, id.Disabled)

	require.NoError(t, store.Put(ctx, Identity{Principal: "alice", Disabled: true}))
	id, err = store.FindIdentity(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, id.Disabled)
	assert.Empty(t, id.Roles)

	require.NoError(t, store.Delete(ctx, "alice"))
	_, err = store.FindIdentity(ctx, "alice")
	assert.ErrorIs(t, err, ErrIdentityNotFound)
}

func TestRedisIdentityStoreMalformedRecord(t *testing.T) {
	store, mr := newRedisIdentityStoreTest(t)
	mr.HSet(DefaultIdentityPrefix+"alice", "updated_at", "yesterday")

	_, err := store.FindIdentity(context.Background(), "alice")
	assert.Error(t, err)
}

func TestRedisIdentityStoreUnavailable(t *testing.T) {
	store, mr := newRedisIdentityStoreTest(t)
	mr.Close()

	_, err := store.FindIdentity(context.Background(), "alice")
	assert.ErrorIs(t, err, ErrIdentityStoreUnavailable)
}

type countingStore struct {
	IdentityStore
	calls int
}

func (s *countingStore) FindIdentity(ctx context.Context, principal string) (*Identity, error) {
	s.calls++
	return s.IdentityStore.FindIdentity(ctx, principal)
}

func TestCachedIdentityStore(t *testing.T) {
	ctx := context.Background()
	backing := &countingStore{IdentityStore: NewMemoryIdentityStore(Identity{Principal: "alice"})}
	cached := NewCachedIdentityStore(backing, 8, time.Minute)

	for i := 0; i < 3; i++ {
		_, err := cached.FindIdentity(ctx, "alice")
		require.NoError(t, err)
	}
	assert.Equal(t, 1, backing.calls)
	assert.Equal(t, 1, cached.Len())

	_, err := cached.FindIdentity(ctx, "bob")
	assert.ErrorIs(t, err, ErrIdentityNotFound)
	_, err = cached.FindIdentity(ctx, "bob")
	assert.ErrorIs(t, err, ErrIdentityNotFound)
	assert.Equal(t, 3, backing.calls, "misses are not cached")

	cached.Invalidate("alice")
	_, err = cached.FindIdentity(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, 4, backing.calls)
}

func TestRedisIdentityStoreFindStamp(t *testing.T) {
	ctx := context.Background()
	store, _ := newRedisIdentityStoreTest(t)

	_, err := store.FindStamp(ctx, "alice")
	assert.ErrorIs(t, err, ErrIdentityNotFound)

	updated := time.UnixMilli(1700000000123)
	require.NoError(t, store.Put(ctx, Identity{Principal: "alice", UpdatedAt: updated, Disabled: true}))
	stamp, err := store.FindStamp(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, updated.Equal(stamp.UpdatedAt))
	assert.True(t, stamp.Disabled)
}

func TestCachedRedisStoreSeesIdentityChanges(t *testing.T) {
	ctx := context.Background()
	store, mr := newRedisIdentityStoreTest(t)
	m := newHSManager(t)
	cached := NewCachedIdentityStore(store, 8, time.Minute)
	a := NewAuthenticator(m, cached, nil)

	require.NoError(t, store.Put(ctx, Identity{Principal: "alice", Roles: []string{"user"}, UpdatedAt: time.Now().Add(-time.Hour)}))
	token, err := m.Issue("alice", nil)
	require.NoError(t, err)

	state, err := a.Authenticate(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, []string{"ROLE_user"}, state.Capabilities())
	assert.Equal(t, 1, cached.Len())

	t.Run("disabled", func(t *testing.T) {
		mr.HSet(DefaultIdentityPrefix+"alice", "disabled", "1")
		_, err := a.Authenticate(ctx, token)
		assert.ErrorIs(t, err, ErrInvalidCredential)

		mr.HSet(DefaultIdentityPrefix+"alice", "disabled", "0")
		_, err = a.Authenticate(ctx, token)
		assert.NoError(t, err)
	})

	t.Run("modified after issuance", func(t *testing.T) {
		require.NoError(t, store.Put(ctx, Identity{Principal: "alice", Roles: []string{"admin"}, UpdatedAt: time.Now().Add(time.Hour)}))
		_, err := a.Authenticate(ctx, token)
		assert.ErrorIs(t, err, ErrInvalidCredential)
	})

	t.Run("deleted", func(t *testing.T) {
		require.NoError(t, store.Delete(ctx, "alice"))
		_, err := a.Authenticate(ctx, token)
		assert.ErrorIs(t, err, ErrInvalidCredential)
		assert.Zero(t, cached.Len())
	})
}

func TestCachedStoreReloadsOnStampMismatch(t *testing.T) {
	ctx := context.Background()
	backing := &stampedStore{countingStore: countingStore{IdentityStore: NewMemoryIdentityStore(Identity{Principal: "alice"})}}
	cached := NewCachedIdentityStore(backing, 8, time.Minute)

	_, err := cached.FindIdentity(ctx, "alice")
	require.NoError(t, err)
	_, err = cached.FindIdentity(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, 1, backing.calls, "matching stamp serves the cached record")

	backing.stamp.Disabled = true
	_, err = cached.FindIdentity(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, 2, backing.calls, "changed stamp reloads the record")

	backing.stampErr = ErrIdentityStoreUnavailable
	_, err = cached.FindIdentity(ctx, "alice")
	assert.ErrorIs(t, err, ErrIdentityStoreUnavailable)
}

type stampedStore struct {
	countingStore
	stamp    IdentityStamp
	stampErr error
}

func (s *stampedStore) FindStamp(context.Context, string) (IdentityStamp, error) {
	return s.stamp, s.stampErr
}
