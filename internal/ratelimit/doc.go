// Package ratelimit implements keyed token-bucket admission control.
//
// Two independent scopes protect the engine: one keyed by connection id
// for inbound envelopes, one keyed by client address for handshakes.
// Denial is a normal outcome, never an error.
package ratelimit
