package model

import (
	"fmt"
	"time"
)

// Kind identifies an inbound envelope. The set is closed: Parse rejects
// anything else and the router dispatches with an exhaustive switch.
type Kind string

const (
	KindJoin       Kind = "join"
	KindLeave      Kind = "leave"
	KindText       Kind = "text"
	KindFile       Kind = "file"
	KindTyping     Kind = "typing"
	KindCreateRoom Kind = "createRoom"
	KindDirect     Kind = "createDirect"
	KindDeleteRoom Kind = "deleteRoom"
	KindMarkRead   Kind = "markRead"
	KindGetHistory Kind = "getHistory"
)

// ParseKind validates a wire kind string.
func ParseKind(s string) (Kind, error) {
	switch k := Kind(s); k {
	case KindJoin, KindLeave, KindText, KindFile, KindTyping,
		KindCreateRoom, KindDirect, KindDeleteRoom, KindMarkRead, KindGetHistory:
		return k, nil
	}
	return "", fmt.Errorf("unknown envelope kind %q", s)
}

// Inbound is the wire format of a client-to-server envelope.
// Fields beyond kind and sender are kind-specific.
type Inbound struct {
	Kind    string `json:"kind"`
	Sender  string `json:"sender"`
	RoomID  string `json:"roomId,omitempty"`
	Content string `json:"content,omitempty"`

	// User identity fields (direct rooms, read receipts).
	UserID     string `json:"userId,omitempty"`
	FriendID   string `json:"friendId,omitempty"`
	FriendName string `json:"friendName,omitempty"`

	// Room creation fields.
	RoomName    string `json:"roomName,omitempty"`
	Description string `json:"description,omitempty"`
	MaxMembers  int    `json:"maxMembers,omitempty"`

	// Read receipt target.
	MessageID string `json:"messageId,omitempty"`
}

// Outbound envelope types that never arrive inbound.
const (
	TypeSystem        = "system"
	TypeError         = "error"
	TypeSuccess       = "success"
	TypeUserList      = "userlist"
	TypeRoomList      = "roomlist"
	TypeRoomDeleted   = "roomDeleted"
	TypeReadUpdate    = "readUpdate"
	TypeDirectCreated = "directMessageCreated"
	TypeMessage       = "message"
	TypeFile          = "file"
	TypeTyping        = "typing"
)

// SystemSender is the sender name on server-originated envelopes.
const SystemSender = "system"

// Outbound is the wire format of a server-to-client envelope.
type Outbound struct {
	Sender    string `json:"sender"`
	Content   string `json:"content"`
	Timestamp string `json:"timestamp"`
	Type      string `json:"type"`
	RoomID    string `json:"roomId,omitempty"`
	MessageID string `json:"messageId,omitempty"`
}

// WireTime formats a server timestamp for the wire.
func WireTime(t time.Time) string {
	return t.Format("15:04:05")
}

// SystemNotice builds a system envelope for a room.
func SystemNotice(roomID, content string, now time.Time) Outbound {
	return Outbound{
		Sender:    SystemSender,
		Content:   content,
		Timestamp: WireTime(now),
		Type:      TypeSystem,
		RoomID:    roomID,
	}
}

// ErrorNotice builds a per-sender error envelope.
func ErrorNotice(content string, now time.Time) Outbound {
	return Outbound{
		Sender:    SystemSender,
		Content:   content,
		Timestamp: WireTime(now),
		Type:      TypeError,
	}
}
