// Package auth resolves bearer credentials from inbound frames, verifies
// them, and produces the immutable authenticated identity a session carries
// for the rest of its lifetime.
//
// The package is split the same way the request path is:
//
//   - TokenResolver finds the credential on a frame's native headers.
//   - TokenManager issues and parses signed JWT credentials.
//   - IdentityStore implementations look principals up (memory, Redis, cached).
//   - Authenticator ties the three together and returns a *State.
package auth
