package store

import (
	"context"

	"github.com/beamhq/beam-realtime/internal/model"
)

// MessageStore is the persistence collaborator for chat messages.
type MessageStore interface {
	// Append persists one message and returns it with its assigned id
	// and server timestamp.
	Append(ctx context.Context, msg model.Message) (model.StoredMessage, error)

	// FetchRecent returns up to limit messages for a room, newest first.
	FetchRecent(ctx context.Context, roomID string, limit int) ([]model.StoredMessage, error)
}
