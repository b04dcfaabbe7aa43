// Package server implements the WebSocket transport and HTTP surface of the
// chat gate.
//
// Each connection is a Client bound to one gate session. The client's read
// pump decodes frames and runs them through the gate strictly in arrival
// order; its write pump drains the session's outbound queue. The Hub owns the
// set of live clients and their goroutines, and App wires the gate to its
// authenticator, identity store, router and optional Redis relay from a
// Config.
package server
