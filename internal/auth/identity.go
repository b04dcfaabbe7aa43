package auth

import (
	"context"
	"slices"
	"sync"
	"time"
)

// Identity is the server-side record a credential's principal resolves to.
type Identity struct {
	Principal string
	Roles     []string
	// UpdatedAt marks the last change to the identity. Credentials issued
	// before it are stale.
	UpdatedAt time.Time
	Disabled  bool
}

// IdentityStore looks principals up. Implementations return
// ErrIdentityNotFound for unknown principals.
type IdentityStore interface {
	FindIdentity(ctx context.Context, principal string) (*Identity, error)
}

// IdentityStamp holds the fields of an Identity that invalidate credentials.
type IdentityStamp struct {
	UpdatedAt time.Time
	Disabled  bool
}

// StampReader is implemented by identity stores that can read a stamp
// without loading the full record.
type StampReader interface {
	FindStamp(ctx context.Context, principal string) (IdentityStamp, error)
}

// MemoryIdentityStore is an IdentityStore backed by a map.
type MemoryIdentityStore struct {
	mu         sync.RWMutex
	identities map[string]Identity
}

// NewMemoryIdentityStore returns a store seeded with identities.
func NewMemoryIdentityStore(identities ...Identity) *MemoryIdentityStore {
	s := &MemoryIdentityStore{identities: make(map[string]Identity, len(identities))}
	for _, id := range identities {
		s.Put(id)
	}
	return s
}

// Put inserts or replaces an identity.
func (s *MemoryIdentityStore) Put(id Identity) {
	id.Roles = slices.Clone(id.Roles)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.identities[id.Principal] = id
}

// Delete removes principal from the store.
func (s *MemoryIdentityStore) Delete(principal string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.identities, principal)
}

// FindIdentity implements IdentityStore.
func (s *MemoryIdentityStore) FindIdentity(ctx context.Context, principal string) (*Identity, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	id, ok := s.identities[principal]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrIdentityNotFound
	}
	id.Roles = slices.Clone(id.Roles)
	return &id, nil
}
