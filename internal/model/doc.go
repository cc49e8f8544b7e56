// Package model defines the shared value types of the chat engine.
//
// Conventions:
//   - IDs: string for room ids, uuid.UUID for stored message ids
//   - Inbound envelopes carry a "kind", outbound envelopes a "type"
//   - Timestamps on the wire: HH:MM:SS, server-assigned
//   - Types are plain values with no behavior beyond validation helpers
package model
