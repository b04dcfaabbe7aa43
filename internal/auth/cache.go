package auth

import (
	"context"
	"errors"
	"slices"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// CachedIdentityStore fronts another IdentityStore with a bounded, expiring
// LRU. Only successful lookups are cached, so a newly created identity is
// visible immediately. When the backing store is a StampReader every hit is
// confirmed against the current stamp, and a disabled or modified identity
// is reloaded before it can authenticate. Otherwise a modified identity is
// visible after at most ttl.
type CachedIdentityStore struct {
	next   IdentityStore
	stamps StampReader
	cache  *expirable.LRU[string, Identity]
}

// NewCachedIdentityStore wraps next with a cache of size entries living ttl.
func NewCachedIdentityStore(next IdentityStore, size int, ttl time.Duration) *CachedIdentityStore {
	if size <= 0 {
		size = 1024
	}
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	stamps, _ := next.(StampReader)
	return &CachedIdentityStore{
		next:   next,
		stamps: stamps,
		cache:  expirable.NewLRU[string, Identity](size, nil, ttl),
	}
}

// FindIdentity implements IdentityStore.
func (s *CachedIdentityStore) FindIdentity(ctx context.Context, principal string) (*Identity, error) {
	if id, ok := s.cache.Get(principal); ok {
		current, err := s.confirm(ctx, id)
		if err != nil {
			return nil, err
		}
		if current {
			id.Roles = slices.Clone(id.Roles)
			return &id, nil
		}
	}

	id, err := s.next.FindIdentity(ctx, principal)
	if err != nil {
		return nil, err
	}
	cached := *id
	cached.Roles = slices.Clone(id.Roles)
	s.cache.Add(principal, cached)
	return id, nil
}

// confirm reports whether a cached identity still matches the backing
// store. A stale entry is dropped.
func (s *CachedIdentityStore) confirm(ctx context.Context, id Identity) (bool, error) {
	if s.stamps == nil {
		return true, nil
	}
	stamp, err := s.stamps.FindStamp(ctx, id.Principal)
	switch {
	case errors.Is(err, ErrIdentityNotFound):
	case err != nil:
		return false, err
	case stamp.Disabled == id.Disabled && stamp.UpdatedAt.Equal(id.UpdatedAt):
		return true, nil
	}
	s.cache.Remove(id.Principal)
	return false, nil
}

// Invalidate drops principal from the cache.
func (s *CachedIdentityStore) Invalidate(principal string) {
	s.cache.Remove(principal)
}

// Len returns the number of cached identities.
func (s *CachedIdentityStore) Len() int {
	return s.cache.Len()
}
