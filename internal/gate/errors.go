package gate

import (
	"errors"
	"fmt"

	"github.com/Tyrowin/chatgate/internal/auth"
)

var (
	// ErrMissingCredential rejects an OPEN without a resolvable credential
	// while anonymous access is disabled.
	ErrMissingCredential = auth.ErrMissingCredential
	// ErrInvalidCredential rejects an OPEN whose credential fails verification.
	ErrInvalidCredential = auth.ErrInvalidCredential
	// ErrUnauthenticated rejects SUBSCRIBE/PUBLISH before authentication.
	ErrUnauthenticated = errors.New("unauthenticated")
	// ErrMissingDestination rejects SUBSCRIBE/PUBLISH without a destination.
	ErrMissingDestination = errors.New("missing destination")
	// ErrProcessingFailure rejects a PUBLISH whose payload could not be processed.
	ErrProcessingFailure = errors.New("message processing failed")
	// ErrAlreadyAuthenticated rejects a repeated OPEN on an authenticated session.
	ErrAlreadyAuthenticated = errors.New("session already authenticated")
	// ErrForbidden rejects a destination the principal may not use.
	ErrForbidden = errors.New("destination forbidden")
	// ErrRouteFailure rejects a PUBLISH the publisher could not accept.
	ErrRouteFailure = errors.New("message routing failed")
	// ErrSessionClosed rejects frames arriving after CLOSE.
	ErrSessionClosed = errors.New("session closed")
)

// Error is a gate rejection of one frame.
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s rejected: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Fatal reports whether the connection must be torn down. Every OPEN
// rejection is fatal except a repeated OPEN on an authenticated session;
// SUBSCRIBE/PUBLISH rejections leave the session usable.
func (e *Error) Fatal() bool {
	if errors.Is(e.Err, ErrSessionClosed) {
		return true
	}
	return e.Kind == KindOpen && !errors.Is(e.Err, ErrAlreadyAuthenticated)
}

// IsFatal reports whether err is a fatal gate rejection.
func IsFatal(err error) bool {
	var gateErr *Error
	return errors.As(err, &gateErr) && gateErr.Fatal()
}
