package store

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/beamhq/beam-realtime/internal/model"
)

const insertMessageSQL = `
INSERT INTO chat_messages (id, room_id, sender, content, message_type, created_at)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING created_at`

const fetchRecentSQL = `
SELECT id, room_id, sender, content, message_type, created_at
FROM chat_messages
WHERE room_id = $1
ORDER BY created_at DESC
LIMIT $2`

// Schema statements run one at a time: pgx's extended protocol does
// not accept multi-statement strings.
var schemaSQL = []string{
	`CREATE TABLE IF NOT EXISTS chat_messages (
    id           UUID PRIMARY KEY,
    room_id      TEXT NOT NULL,
    sender       TEXT NOT NULL,
    content      TEXT NOT NULL,
    message_type TEXT NOT NULL,
    created_at   TIMESTAMPTZ NOT NULL
)`,
	`CREATE INDEX IF NOT EXISTS idx_chat_messages_room_time
    ON chat_messages (room_id, created_at DESC)`,
}

// Postgres is the pgx-backed MessageStore.
type Postgres struct {
	db     *pgxpool.Pool
	logger *slog.Logger
}

// NewPostgres creates a Postgres message store.
func NewPostgres(db *pgxpool.Pool, logger *slog.Logger) *Postgres {
	if logger == nil {
		logger = slog.Default()
	}
	return &Postgres{db: db, logger: logger}
}

// EnsureSchema creates the chat_messages table if it does not exist.
func (p *Postgres) EnsureSchema(ctx context.Context) error {
	for _, stmt := range schemaSQL {
		if _, err := p.db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure chat_messages schema: %w", err)
		}
	}
	return nil
}

// Append persists one message.
func (p *Postgres) Append(ctx context.Context, msg model.Message) (model.StoredMessage, error) {
	stored := model.StoredMessage{
		ID:        uuid.New(),
		RoomID:    msg.RoomID,
		Sender:    msg.Sender,
		Content:   msg.Content,
		Type:      msg.Type,
		CreatedAt: time.Now().UTC(),
	}

	row := p.db.QueryRow(ctx, insertMessageSQL,
		stored.ID, stored.RoomID, stored.Sender, stored.Content, stored.Type, stored.CreatedAt)
	if err := row.Scan(&stored.CreatedAt); err != nil {
		return model.StoredMessage{}, fmt.Errorf("insert message: %w", err)
	}

	return stored, nil
}

// FetchRecent returns up to limit messages for a room, newest first.
func (p *Postgres) FetchRecent(ctx context.Context, roomID string, limit int) ([]model.StoredMessage, error) {
	rows, err := p.db.Query(ctx, fetchRecentSQL, roomID, limit)
	if err != nil {
		return nil, fmt.Errorf("query recent messages: %w", err)
	}
	defer rows.Close()

	messages := make([]model.StoredMessage, 0, limit)
	for rows.Next() {
		var m model.StoredMessage
		if err := rows.Scan(&m.ID, &m.RoomID, &m.Sender, &m.Content, &m.Type, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message row: %w", err)
		}
		messages = append(messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate message rows: %w", err)
	}

	return messages, nil
}
