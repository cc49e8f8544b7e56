package registry

import (
	"log/slog"
	"sync"
	"time"

	"github.com/beamhq/beam-realtime/internal/model"
)

// Sender delivers an outbound envelope to one live connection.
// Push is bounded and best-effort: it returns false instead of blocking
// when the connection cannot accept the envelope.
type Sender interface {
	Push(env model.Outbound) bool
}

// Conn is a snapshot of one live connection.
type Conn struct {
	ID        string
	Identity  model.Identity
	RoomID    string // "" when in the lobby
	CreatedAt time.Time

	sender Sender
}

// Push delivers an envelope to the connection, best-effort.
func (c Conn) Push(env model.Outbound) bool {
	if c.sender == nil {
		return false
	}
	return c.sender.Push(env)
}

// Registry is the concurrency-safe table of live connections.
type Registry struct {
	mu     sync.RWMutex
	conns  map[string]*Conn
	logger *slog.Logger
}

// New creates an empty Registry.
func New(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		conns:  make(map[string]*Conn),
		logger: logger,
	}
}

// Register adds a connection under the given identity.
func (r *Registry) Register(id string, identity model.Identity, sender Sender) Conn {
	conn := &Conn{
		ID:        id,
		Identity:  identity,
		CreatedAt: time.Now(),
		sender:    sender,
	}

	r.mu.Lock()
	r.conns[id] = conn
	total := len(r.conns)
	r.mu.Unlock()

	r.logger.Info("connection registered",
		"conn_id", id,
		"user", identity.Username,
		"guest", identity.Guest,
		"total", total,
	)
	return *conn
}

// Unregister removes a connection and returns its final state.
// Unknown ids are a no-op: disconnect and cleanup paths may race.
func (r *Registry) Unregister(id string) (Conn, bool) {
	r.mu.Lock()
	conn, ok := r.conns[id]
	if ok {
		delete(r.conns, id)
	}
	total := len(r.conns)
	r.mu.Unlock()

	if !ok {
		return Conn{}, false
	}

	r.logger.Info("connection unregistered",
		"conn_id", id,
		"user", conn.Identity.Username,
		"total", total,
	)
	return *conn, true
}

// Lookup returns a snapshot of a connection.
func (r *Registry) Lookup(id string) (Conn, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conn, ok := r.conns[id]
	if !ok {
		return Conn{}, false
	}
	return *conn, true
}

// SetRoom updates the room a connection occupies ("" for the lobby).
// Returns false if the connection is gone.
func (r *Registry) SetRoom(id, roomID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	conn, ok := r.conns[id]
	if !ok {
		return false
	}
	conn.RoomID = roomID
	return true
}

// ConnectionsFor returns all live connections for one identity key.
// One identity may hold several connections (multiple tabs/devices).
func (r *Registry) ConnectionsFor(identityKey string) []Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []Conn
	for _, conn := range r.conns {
		if conn.Identity.Key() == identityKey {
			result = append(result, *conn)
		}
	}
	return result
}

// All returns a snapshot of every live connection.
func (r *Registry) All() []Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]Conn, 0, len(r.conns))
	for _, conn := range r.conns {
		result = append(result, *conn)
	}
	return result
}

// Count returns the number of live connections.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}
