// Package router turns inbound envelopes into state changes and
// outbound traffic. It owns the per-kind dispatch, the message-scope
// rate limit check, and the disconnect cascade that keeps the
// connection registry and room directory consistent.
package router
