package model

import (
	"time"

	"github.com/google/uuid"
)

// -----------------------------------------------------------------------------
// Identities
// -----------------------------------------------------------------------------

// Identity is the authenticated (or guest) principal behind a connection.
// Multiple live connections may share one identity; room membership is
// tracked per identity, not per connection.
type Identity struct {
	UserID   string // Stable user id, or "guest_<prefix>" for guests
	Username string // Display name
	Guest    bool   // True when no valid credential was presented
}

// Key returns the membership key for this identity.
func (i Identity) Key() string {
	return i.UserID
}

// GuestIdentity derives a connection-scoped guest identity from a
// connection id. Guests have no stable user record, so the id prefix
// doubles as the membership key.
func GuestIdentity(connID string) Identity {
	prefix := connID
	if len(prefix) > 8 {
		prefix = prefix[:8]
	}
	return Identity{
		UserID:   "guest_" + prefix,
		Username: "guest-" + prefix,
		Guest:    true,
	}
}

// -----------------------------------------------------------------------------
// Rooms
// -----------------------------------------------------------------------------

// RoomKind distinguishes persistent group rooms from derived
// two-party direct-message rooms.
type RoomKind string

const (
	RoomGroup  RoomKind = "GROUP"
	RoomDirect RoomKind = "DIRECT"
)

// -----------------------------------------------------------------------------
// Stored messages
// -----------------------------------------------------------------------------

// Message is the transient input to the message store.
type Message struct {
	RoomID  string
	Sender  string
	Content string
	Type    string // "message" or "file"
}

// StoredMessage is a persisted chat message as returned by the store.
type StoredMessage struct {
	ID        uuid.UUID
	RoomID    string
	Sender    string
	Content   string
	Type      string
	CreatedAt time.Time
}

// -----------------------------------------------------------------------------
// Read receipts
// -----------------------------------------------------------------------------

// Receipt records that one user has acknowledged one message.
// At most one receipt exists per (message id, user id) pair.
type Receipt struct {
	MessageID string
	RoomID    string
	UserID    string
	ReadAt    time.Time
}
