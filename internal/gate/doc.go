// Package gate implements the authenticated publish/subscribe gate that sits
// on every inbound frame of every session.
//
// A Session starts UNAUTHENTICATED. An OPEN frame resolves and verifies a
// bearer credential and attaches the resulting auth.State to the Session,
// moving it to AUTHENTICATED for the rest of the connection. SUBSCRIBE and
// PUBLISH frames are checked against that state, PUBLISH payloads have their
// sender overwritten with the verified principal, are processed, and are
// handed to the publisher for fan-out. CLOSE releases the session; every
// other frame is passed downstream unchanged.
//
// The authenticated identity lives on the Session, never in package or
// process state. A Gate holds no per-session data, so one Gate serves every
// connection concurrently; each Session must be driven by a single goroutine.
package gate
