package auth

import "errors"

var (
	// ErrMissingCredential is returned when no credential could be resolved.
	ErrMissingCredential = errors.New("missing credential")
	// ErrInvalidCredential is returned when a credential fails parsing,
	// signature verification, identity resolution, or freshness checks.
	ErrInvalidCredential = errors.New("invalid credential")
	// ErrIdentityNotFound is returned by an IdentityStore for unknown principals.
	ErrIdentityNotFound = errors.New("identity not found")
	// ErrIdentityStoreUnavailable wraps backend failures of an IdentityStore.
	ErrIdentityStoreUnavailable = errors.New("identity store unavailable")
)
