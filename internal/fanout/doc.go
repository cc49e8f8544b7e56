// Package fanout delivers outbound envelopes to audiences: one room,
// one identity, one connection, or every live connection. Delivery is
// best-effort per connection; a full or dead connection is skipped and
// logged rather than stalling the broadcast.
package fanout
