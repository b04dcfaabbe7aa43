package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// TokenParser verifies a credential string and returns its claims.
// *TokenManager implements it.
type TokenParser interface {
	Parse(token string) (*Claims, error)
}

// Authenticator turns a credential string into a *State.
type Authenticator struct {
	tokens     TokenParser
	identities IdentityStore
	logger     *zap.Logger
}

// NewAuthenticator returns an Authenticator verifying credentials with tokens
// and resolving principals through identities.
func NewAuthenticator(tokens TokenParser, identities IdentityStore, logger *zap.Logger) *Authenticator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Authenticator{
		tokens:     tokens,
		identities: identities,
		logger:     logger.Named("auth"),
	}
}

// Authenticate verifies credential and returns the authenticated state.
//
// Failures wrap ErrInvalidCredential: a credential that does not parse or
// verify, a principal with no identity, a disabled identity, or a credential
// issued before the identity last changed. Identity store outages wrap
// both ErrInvalidCredential and ErrIdentityStoreUnavailable.
//
// Capabilities come from the credential's roles, falling back to the
// identity's roles when the credential carries none.
func (a *Authenticator) Authenticate(ctx context.Context, credential string) (*State, error) {
	claims, err := a.tokens.Parse(credential)
	if err != nil {
		if !errors.Is(err, ErrInvalidCredential) {
			err = fmt.Errorf("%w: %w", ErrInvalidCredential, err)
		}
		return nil, err
	}
	principal := claims.Subject

	identity, err := a.identities.FindIdentity(ctx, principal)
	if err != nil {
		if errors.Is(err, ErrIdentityNotFound) {
			return nil, fmt.Errorf("%w: unknown principal %q", ErrInvalidCredential, principal)
		}
		a.logger.Warn("identity lookup failed", zap.String("principal", principal), zap.Error(err))
		return nil, fmt.Errorf("%w: %w", ErrInvalidCredential, err)
	}

	issuedAt := claims.IssuedAt.Time
	if err := checkIdentity(principal, issuedAt, identity); err != nil {
		return nil, err
	}

	roles := claims.Roles
	if len(roles) == 0 {
		roles = identity.Roles
	}
	return NewState(identity.Principal, roles, issuedAt), nil
}

// checkIdentity is the freshness check: the identity must match, be enabled,
// and not have changed after the credential was issued. Issued-at is
// truncated to the second, so a credential issued in the same second as a
// change, with iat earlier than UpdatedAt, is treated as stale.
func checkIdentity(principal string, issuedAt time.Time, identity *Identity) error {
	if identity.Principal != principal {
		return fmt.Errorf("%w: principal mismatch", ErrInvalidCredential)
	}
	if identity.Disabled {
		return fmt.Errorf("%w: identity %q is disabled", ErrInvalidCredential, principal)
	}
	if !identity.UpdatedAt.IsZero() && issuedAt.Before(identity.UpdatedAt) {
		return fmt.Errorf("%w: credential predates identity change", ErrInvalidCredential)
	}
	return nil
}
