package room

import (
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/beamhq/beam-realtime/internal/model"
)

var (
	// ErrRoomNotFound means the target room does not exist.
	ErrRoomNotFound = errors.New("room not found")
	// ErrRoomFull means the member count has reached the room limit.
	ErrRoomFull = errors.New("room is full")
	// ErrDuplicateName means an active room already uses the display name.
	ErrDuplicateName = errors.New("room name already in use")
	// ErrNotOwner means the requester did not create the room.
	ErrNotOwner = errors.New("only the room creator can delete it")
	// ErrProtectedRoom means the room is a seeded default and never deletable.
	ErrProtectedRoom = errors.New("default rooms cannot be deleted")
	// ErrEmptyName means the submitted display name was blank.
	ErrEmptyName = errors.New("room name is required")
)

// Room is a snapshot of one room and its membership.
type Room struct {
	ID          string
	Name        string
	Description string
	Kind        model.RoomKind
	Creator     string // identity key; empty for seeded defaults and direct rooms
	MaxMembers  int
	CreatedAt   time.Time
	Members     []string // identity keys
}

// MemberCount returns the number of identities in the room.
func (r Room) MemberCount() int {
	return len(r.Members)
}

// roomState is the mutable record behind a Room snapshot.
type roomState struct {
	id          string
	name        string
	description string
	kind        model.RoomKind
	creator     string
	maxMembers  int
	createdAt   time.Time
	members     map[string]struct{}
}

func (s *roomState) snapshot() Room {
	members := make([]string, 0, len(s.members))
	for m := range s.members {
		members = append(members, m)
	}
	return Room{
		ID:          s.id,
		Name:        s.name,
		Description: s.description,
		Kind:        s.kind,
		Creator:     s.creator,
		MaxMembers:  s.maxMembers,
		CreatedAt:   s.createdAt,
		Members:     members,
	}
}

// seededDefault describes one protected room created at startup.
type seededDefault struct {
	id, name, description string
}

// Seeded default rooms. These always exist and can never be deleted.
var defaultRooms = []seededDefault{
	{"general", "General", "Open chat for everyone"},
	{"tech", "Tech Talk", "Engineering discussion"},
	{"casual", "Casual Lounge", "Off-topic conversation"},
}

// Directory is the concurrency-safe room catalog.
type Directory struct {
	mu         sync.RWMutex
	rooms      map[string]*roomState
	protected  map[string]struct{}
	defaultMax int
	logger     *slog.Logger
}

// NewDirectory creates a Directory seeded with the default rooms.
func NewDirectory(defaultMaxMembers int, logger *slog.Logger) *Directory {
	if logger == nil {
		logger = slog.Default()
	}
	if defaultMaxMembers < 2 {
		defaultMaxMembers = 100
	}

	d := &Directory{
		rooms:      make(map[string]*roomState),
		protected:  make(map[string]struct{}),
		defaultMax: defaultMaxMembers,
		logger:     logger,
	}

	now := time.Now()
	for _, def := range defaultRooms {
		d.rooms[def.id] = &roomState{
			id:          def.id,
			name:        def.name,
			description: def.description,
			kind:        model.RoomGroup,
			maxMembers:  defaultMaxMembers,
			createdAt:   now,
			members:     make(map[string]struct{}),
		}
		d.protected[def.id] = struct{}{}
	}

	return d
}

// DirectID derives the canonical direct-room id for two identities.
// Symmetric: DirectID(a, b) == DirectID(b, a).
func DirectID(a, b string) string {
	if a > b {
		a, b = b, a
	}
	return "dm_" + a + "_" + b
}

// Create adds a group room. The display name must be unique among active
// rooms (exact, case-sensitive match). The creator is not auto-joined.
func (d *Directory) Create(creator, name, description string, maxMembers int) (Room, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Room{}, ErrEmptyName
	}
	if maxMembers < 2 {
		maxMembers = d.defaultMax
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	for _, r := range d.rooms {
		if r.name == name {
			return Room{}, ErrDuplicateName
		}
	}

	state := &roomState{
		id:          "group_" + uuid.NewString(),
		name:        name,
		description: description,
		kind:        model.RoomGroup,
		creator:     creator,
		maxMembers:  maxMembers,
		createdAt:   time.Now(),
		members:     make(map[string]struct{}),
	}
	d.rooms[state.id] = state

	d.logger.Info("room created",
		"room_id", state.id,
		"name", name,
		"creator", creator,
		"max_members", maxMembers,
	)
	return state.snapshot(), nil
}

// GetOrCreateDirect returns the direct room for an unordered pair of
// identities, creating it with exactly the two participants if absent.
// The created flag reports whether this call created the room.
func (d *Directory) GetOrCreateDirect(a, b model.Identity) (Room, bool) {
	id := DirectID(a.Key(), b.Key())

	d.mu.Lock()
	defer d.mu.Unlock()

	if state, ok := d.rooms[id]; ok {
		return state.snapshot(), false
	}

	state := &roomState{
		id:         id,
		name:       "DM: " + a.Username + " ↔ " + b.Username,
		kind:       model.RoomDirect,
		maxMembers: 2,
		createdAt:  time.Now(),
		members: map[string]struct{}{
			a.Key(): {},
			b.Key(): {},
		},
	}
	d.rooms[id] = state

	d.logger.Info("direct room created", "room_id", id)
	return state.snapshot(), true
}

// Get returns a room snapshot.
func (d *Directory) Get(roomID string) (Room, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	state, ok := d.rooms[roomID]
	if !ok {
		return Room{}, false
	}
	return state.snapshot(), true
}

// Join adds an identity to a room. Joining a room you are already in is
// a no-op; a full room rejects new identities with ErrRoomFull.
func (d *Directory) Join(roomID, identityKey string) (Room, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	state, ok := d.rooms[roomID]
	if !ok {
		return Room{}, ErrRoomNotFound
	}

	if _, member := state.members[identityKey]; !member {
		if len(state.members) >= state.maxMembers {
			return Room{}, ErrRoomFull
		}
		state.members[identityKey] = struct{}{}
	}

	return state.snapshot(), nil
}

// Leave removes an identity from a room. Unknown rooms and non-members
// are a no-op.
func (d *Directory) Leave(roomID, identityKey string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	state, ok := d.rooms[roomID]
	if !ok {
		return
	}
	delete(state.members, identityKey)
}

// Members returns a snapshot of a room's membership.
func (d *Directory) Members(roomID string) ([]string, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	state, ok := d.rooms[roomID]
	if !ok {
		return nil, false
	}
	members := make([]string, 0, len(state.members))
	for m := range state.members {
		members = append(members, m)
	}
	return members, true
}

// Delete removes a room. Only the creator may delete, and seeded default
// rooms are protected regardless of requester. Direct rooms have no
// creator and are therefore permanent. Returns the final membership so
// callers can evict and notify occupants.
func (d *Directory) Delete(roomID, requester string) ([]string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	state, ok := d.rooms[roomID]
	if !ok {
		return nil, ErrRoomNotFound
	}
	if _, prot := d.protected[roomID]; prot {
		return nil, ErrProtectedRoom
	}
	if state.creator == "" || state.creator != requester {
		return nil, ErrNotOwner
	}

	members := make([]string, 0, len(state.members))
	for m := range state.members {
		members = append(members, m)
	}
	delete(d.rooms, roomID)

	d.logger.Info("room deleted", "room_id", roomID, "name", state.name, "requester", requester)
	return members, nil
}

// List returns snapshots of every active room.
func (d *Directory) List() []Room {
	d.mu.RLock()
	defer d.mu.RUnlock()

	result := make([]Room, 0, len(d.rooms))
	for _, state := range d.rooms {
		result = append(result, state.snapshot())
	}
	return result
}
