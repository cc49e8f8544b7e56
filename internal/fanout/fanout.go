package fanout

import (
	"log/slog"

	"github.com/beamhq/beam-realtime/internal/model"
	"github.com/beamhq/beam-realtime/internal/registry"
	"github.com/beamhq/beam-realtime/internal/room"
)

// Fanout resolves audiences against the connection registry and room
// directory and pushes envelopes best-effort.
type Fanout struct {
	registry *registry.Registry
	rooms    *room.Directory
	logger   *slog.Logger
}

// New creates a Fanout over the given registry and room directory.
func New(reg *registry.Registry, rooms *room.Directory, logger *slog.Logger) *Fanout {
	if logger == nil {
		logger = slog.Default()
	}
	return &Fanout{
		registry: reg,
		rooms:    rooms,
		logger:   logger,
	}
}

// ToRoom delivers an envelope to every live connection of every room
// member. Membership is snapshotted once; connections that join or
// leave mid-broadcast see the pre-broadcast view. Each connection
// receives at most one copy.
func (f *Fanout) ToRoom(roomID string, env model.Outbound) {
	members, ok := f.rooms.Members(roomID)
	if !ok {
		return
	}

	seen := make(map[string]struct{})
	for _, key := range members {
		for _, conn := range f.registry.ConnectionsFor(key) {
			if _, dup := seen[conn.ID]; dup {
				continue
			}
			seen[conn.ID] = struct{}{}
			f.push(conn, env)
		}
	}
}

// ToAll delivers an envelope to every live connection.
func (f *Fanout) ToAll(env model.Outbound) {
	for _, conn := range f.registry.All() {
		f.push(conn, env)
	}
}

// ToIdentity delivers an envelope to every connection of one identity.
func (f *Fanout) ToIdentity(identityKey string, env model.Outbound) {
	for _, conn := range f.registry.ConnectionsFor(identityKey) {
		f.push(conn, env)
	}
}

// ToConn delivers an envelope to a single connection.
func (f *Fanout) ToConn(connID string, env model.Outbound) {
	conn, ok := f.registry.Lookup(connID)
	if !ok {
		return
	}
	f.push(conn, env)
}

func (f *Fanout) push(conn registry.Conn, env model.Outbound) {
	if !conn.Push(env) {
		f.logger.Warn("dropped envelope for slow connection",
			"conn_id", conn.ID,
			"user", conn.Identity.Username,
			"type", env.Type,
		)
	}
}
