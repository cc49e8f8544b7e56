package router

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/beamhq/beam-realtime/internal/fanout"
	"github.com/beamhq/beam-realtime/internal/model"
	"github.com/beamhq/beam-realtime/internal/ratelimit"
	"github.com/beamhq/beam-realtime/internal/receipt"
	"github.com/beamhq/beam-realtime/internal/registry"
	"github.com/beamhq/beam-realtime/internal/room"
	"github.com/beamhq/beam-realtime/internal/store"
)

const rateLimitedMsg = "Rate limit exceeded. Please slow down."

// Router dispatches inbound envelopes for live connections.
type Router struct {
	registry     *registry.Registry
	rooms        *room.Directory
	limiter      *ratelimit.Keyed
	store        store.MessageStore
	receipts     *receipt.Tracker
	fanout       *fanout.Fanout
	historyLimit int
	logger       *slog.Logger
	now          func() time.Time
}

// New wires a Router. The limiter is the message-scope bucket set,
// keyed by connection id.
func New(
	reg *registry.Registry,
	rooms *room.Directory,
	limiter *ratelimit.Keyed,
	msgStore store.MessageStore,
	receipts *receipt.Tracker,
	fan *fanout.Fanout,
	historyLimit int,
	logger *slog.Logger,
) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	if historyLimit < 1 {
		historyLimit = 50
	}
	return &Router{
		registry:     reg,
		rooms:        rooms,
		limiter:      limiter,
		store:        msgStore,
		receipts:     receipts,
		fanout:       fan,
		historyLimit: historyLimit,
		logger:       logger,
		now:          time.Now,
	}
}

// Connected runs once after a connection registers: the new client
// gets the current room list.
func (r *Router) Connected(connID string) {
	r.fanout.ToConn(connID, r.roomListEnvelope())
}

// Handle processes one raw inbound frame from a connection. The rate
// limit is charged before parsing, so malformed frames still consume a
// token. A denied frame produces only an error envelope.
func (r *Router) Handle(ctx context.Context, connID string, raw []byte) {
	conn, ok := r.registry.Lookup(connID)
	if !ok {
		return
	}

	if !r.limiter.Allow(connID) {
		r.logger.Warn("message rate limit exceeded",
			"conn_id", connID,
			"user", conn.Identity.Username,
		)
		r.fanout.ToConn(connID, model.ErrorNotice(rateLimitedMsg, r.now()))
		return
	}

	var in model.Inbound
	if err := json.Unmarshal(raw, &in); err != nil {
		r.logger.Warn("malformed frame", "conn_id", connID, "error", err)
		r.fanout.ToConn(connID, model.ErrorNotice("Invalid message format.", r.now()))
		return
	}

	kind, err := model.ParseKind(in.Kind)
	if err != nil {
		r.logger.Warn("unknown envelope kind", "conn_id", connID, "kind", in.Kind)
		r.fanout.ToConn(connID, model.ErrorNotice("Unknown message kind.", r.now()))
		return
	}

	switch kind {
	case model.KindJoin:
		r.handleJoin(ctx, conn, in)
	case model.KindLeave:
		r.handleLeave(conn)
	case model.KindText:
		r.handleChat(ctx, conn, in, model.TypeMessage)
	case model.KindFile:
		r.handleChat(ctx, conn, in, model.TypeFile)
	case model.KindTyping:
		r.handleTyping(conn)
	case model.KindCreateRoom:
		r.handleCreateRoom(ctx, conn, in)
	case model.KindDirect:
		r.handleCreateDirect(ctx, conn, in)
	case model.KindDeleteRoom:
		r.handleDeleteRoom(conn, in)
	case model.KindMarkRead:
		r.handleMarkRead(conn, in)
	case model.KindGetHistory:
		r.handleGetHistory(ctx, conn, in)
	}
}

// Disconnect runs the teardown cascade for a closed connection. The
// identity only leaves its room when this was its last connection
// there; other tabs keep the membership alive.
func (r *Router) Disconnect(connID string) {
	conn, ok := r.registry.Unregister(connID)
	if !ok {
		return
	}

	if conn.RoomID != "" && !r.identityStillInRoom(conn.Identity.Key(), conn.RoomID) {
		r.rooms.Leave(conn.RoomID, conn.Identity.Key())
		r.fanout.ToRoom(conn.RoomID, model.SystemNotice(conn.RoomID,
			conn.Identity.Username+" left the room", r.now()))
		r.broadcastUserList(conn.RoomID)
	}

	r.limiter.Remove(connID)
}

func (r *Router) handleJoin(ctx context.Context, conn registry.Conn, in model.Inbound) {
	roomID := in.RoomID
	if roomID == "" {
		r.fanout.ToConn(conn.ID, model.ErrorNotice("Room id is required.", r.now()))
		return
	}
	if conn.RoomID == roomID {
		return
	}

	if _, ok := r.rooms.Get(roomID); !ok {
		r.fanout.ToConn(conn.ID, model.ErrorNotice("Room not found.", r.now()))
		return
	}

	r.leaveCurrentRoom(conn)

	if _, err := r.rooms.Join(roomID, conn.Identity.Key()); err != nil {
		r.fanout.ToConn(conn.ID, model.ErrorNotice(errorMessage(err), r.now()))
		return
	}
	r.registry.SetRoom(conn.ID, roomID)

	r.fanout.ToRoom(roomID, model.SystemNotice(roomID,
		conn.Identity.Username+" joined the room", r.now()))
	r.broadcastUserList(roomID)
	r.replayHistory(ctx, conn, roomID)
}

func (r *Router) handleLeave(conn registry.Conn) {
	r.leaveCurrentRoom(conn)
}

// leaveCurrentRoom detaches the connection from its room. Directory
// membership only drops when no other connection of the identity is
// still in the room.
func (r *Router) leaveCurrentRoom(conn registry.Conn) {
	if conn.RoomID == "" {
		return
	}
	roomID := conn.RoomID
	r.registry.SetRoom(conn.ID, "")

	if r.identityStillInRoom(conn.Identity.Key(), roomID) {
		return
	}
	r.rooms.Leave(roomID, conn.Identity.Key())
	r.fanout.ToRoom(roomID, model.SystemNotice(roomID,
		conn.Identity.Username+" left the room", r.now()))
	r.broadcastUserList(roomID)
}

func (r *Router) handleChat(ctx context.Context, conn registry.Conn, in model.Inbound, wireType string) {
	if conn.RoomID == "" {
		r.fanout.ToConn(conn.ID, model.ErrorNotice("Join a room before sending messages.", r.now()))
		return
	}
	if in.Content == "" {
		r.fanout.ToConn(conn.ID, model.ErrorNotice("Message content is required.", r.now()))
		return
	}

	stored, err := r.store.Append(ctx, model.Message{
		RoomID:  conn.RoomID,
		Sender:  conn.Identity.Username,
		Content: in.Content,
		Type:    wireType,
	})
	if err != nil {
		r.logger.Error("message persist failed",
			"room_id", conn.RoomID,
			"sender", conn.Identity.Username,
			"error", err,
		)
		r.fanout.ToConn(conn.ID, model.ErrorNotice("Message could not be delivered.", r.now()))
		return
	}

	r.fanout.ToRoom(conn.RoomID, model.Outbound{
		Sender:    stored.Sender,
		Content:   stored.Content,
		Timestamp: model.WireTime(stored.CreatedAt),
		Type:      wireType,
		RoomID:    stored.RoomID,
		MessageID: stored.ID.String(),
	})
	r.noteDeliveries(conn, stored.RoomID)
}

// noteDeliveries bumps unread counts for every room member except the
// sender.
func (r *Router) noteDeliveries(sender registry.Conn, roomID string) {
	members, ok := r.rooms.Members(roomID)
	if !ok {
		return
	}
	for _, key := range members {
		if key == sender.Identity.Key() {
			continue
		}
		r.receipts.NoteDelivery(roomID, key)
	}
}

// handleTyping broadcasts a typing indicator. Group rooms hear it
// room-wide; in a direct room only the counterpart is told, the typist
// never sees their own indicator.
func (r *Router) handleTyping(conn registry.Conn) {
	if conn.RoomID == "" {
		return
	}
	env := model.Outbound{
		Sender:    conn.Identity.Username,
		Timestamp: model.WireTime(r.now()),
		Type:      model.TypeTyping,
		RoomID:    conn.RoomID,
	}

	if rm, ok := r.rooms.Get(conn.RoomID); ok && rm.Kind == model.RoomDirect {
		for _, member := range rm.Members {
			if member != conn.Identity.Key() {
				r.fanout.ToIdentity(member, env)
			}
		}
		return
	}
	r.fanout.ToRoom(conn.RoomID, env)
}

func (r *Router) handleCreateRoom(ctx context.Context, conn registry.Conn, in model.Inbound) {
	created, err := r.rooms.Create(conn.Identity.Key(), in.RoomName, in.Description, in.MaxMembers)
	if err != nil {
		r.fanout.ToConn(conn.ID, model.ErrorNotice(errorMessage(err), r.now()))
		return
	}

	r.leaveCurrentRoom(conn)
	if _, err := r.rooms.Join(created.ID, conn.Identity.Key()); err != nil {
		r.fanout.ToConn(conn.ID, model.ErrorNotice(errorMessage(err), r.now()))
		return
	}
	r.registry.SetRoom(conn.ID, created.ID)

	r.fanout.ToConn(conn.ID, model.Outbound{
		Sender:    model.SystemSender,
		Content:   "Room created: " + created.Name,
		Timestamp: model.WireTime(r.now()),
		Type:      model.TypeSuccess,
		RoomID:    created.ID,
	})
	r.fanout.ToAll(r.roomListEnvelope())
	r.replayHistory(ctx, conn, created.ID)
}

func (r *Router) handleCreateDirect(ctx context.Context, conn registry.Conn, in model.Inbound) {
	if in.FriendID == "" {
		r.fanout.ToConn(conn.ID, model.ErrorNotice("Friend id is required.", r.now()))
		return
	}
	if in.FriendID == conn.Identity.Key() {
		r.fanout.ToConn(conn.ID, model.ErrorNotice("Cannot open a direct room with yourself.", r.now()))
		return
	}

	friend := model.Identity{UserID: in.FriendID, Username: in.FriendName}
	if friend.Username == "" {
		friend.Username = friend.UserID
	}

	dm, created := r.rooms.GetOrCreateDirect(conn.Identity, friend)

	r.leaveCurrentRoom(conn)
	if _, err := r.rooms.Join(dm.ID, conn.Identity.Key()); err != nil {
		r.fanout.ToConn(conn.ID, model.ErrorNotice(errorMessage(err), r.now()))
		return
	}
	r.registry.SetRoom(conn.ID, dm.ID)

	notice := model.Outbound{
		Sender:    model.SystemSender,
		Content:   dm.Name,
		Timestamp: model.WireTime(r.now()),
		Type:      model.TypeDirectCreated,
		RoomID:    dm.ID,
	}
	r.fanout.ToConn(conn.ID, notice)
	r.fanout.ToIdentity(friend.Key(), notice)
	if created {
		r.fanout.ToAll(r.roomListEnvelope())
	}
	r.replayHistory(ctx, conn, dm.ID)
}

func (r *Router) handleDeleteRoom(conn registry.Conn, in model.Inbound) {
	roomID := in.RoomID
	if roomID == "" {
		roomID = conn.RoomID
	}

	deleted, ok := r.rooms.Get(roomID)
	if !ok {
		r.fanout.ToConn(conn.ID, model.ErrorNotice("Room not found.", r.now()))
		return
	}

	members, err := r.rooms.Delete(roomID, conn.Identity.Key())
	if err != nil {
		r.fanout.ToConn(conn.ID, model.ErrorNotice(errorMessage(err), r.now()))
		return
	}

	// Evict occupants to the lobby and tell them why.
	notice := model.Outbound{
		Sender:    model.SystemSender,
		Content:   "Room deleted: " + deleted.Name,
		Timestamp: model.WireTime(r.now()),
		Type:      model.TypeRoomDeleted,
		RoomID:    roomID,
	}
	for _, key := range members {
		r.fanout.ToIdentity(key, notice)
	}
	for _, c := range r.registry.All() {
		if c.RoomID == roomID {
			r.registry.SetRoom(c.ID, "")
		}
	}

	r.fanout.ToConn(conn.ID, model.Outbound{
		Sender:    model.SystemSender,
		Content:   "Room deleted: " + deleted.Name,
		Timestamp: model.WireTime(r.now()),
		Type:      model.TypeSuccess,
		RoomID:    roomID,
	})
	r.fanout.ToAll(r.roomListEnvelope())
}

// handleMarkRead records a read receipt. Guests have no durable user
// record, so their reads are never tracked, matching the getHistory
// path.
func (r *Router) handleMarkRead(conn registry.Conn, in model.Inbound) {
	if conn.Identity.Guest {
		return
	}
	if in.MessageID == "" {
		r.fanout.ToConn(conn.ID, model.ErrorNotice("Message id is required.", r.now()))
		return
	}
	roomID := in.RoomID
	if roomID == "" {
		roomID = conn.RoomID
	}
	r.receipts.MarkRead(in.MessageID, roomID, conn.Identity.Key(), conn.Identity.Username)
}

func (r *Router) handleGetHistory(ctx context.Context, conn registry.Conn, in model.Inbound) {
	roomID := in.RoomID
	if roomID == "" {
		roomID = conn.RoomID
	}
	if roomID == "" {
		r.fanout.ToConn(conn.ID, model.ErrorNotice("Room id is required.", r.now()))
		return
	}

	messages, err := r.store.FetchRecent(ctx, roomID, r.historyLimit)
	if err != nil {
		r.logger.Error("history fetch failed", "room_id", roomID, "error", err)
		r.fanout.ToConn(conn.ID, model.ErrorNotice("History is unavailable.", r.now()))
		return
	}

	r.sendHistory(conn, messages)

	// Fetching history counts as reading it, but only for identities
	// that outlive the connection.
	if !conn.Identity.Guest {
		r.receipts.MarkRoomRead(roomID, conn.Identity.Key(), conn.Identity.Username, messages)
	}
}

// replayHistory sends recent room history to one connection. Fetch
// failures are logged and skipped so a join still succeeds when the
// store is down.
func (r *Router) replayHistory(ctx context.Context, conn registry.Conn, roomID string) {
	messages, err := r.store.FetchRecent(ctx, roomID, r.historyLimit)
	if err != nil {
		r.logger.Error("history replay failed", "room_id", roomID, "error", err)
		return
	}
	r.sendHistory(conn, messages)
}

// sendHistory replays stored messages to one connection, oldest first.
// The store returns newest first.
func (r *Router) sendHistory(conn registry.Conn, messages []model.StoredMessage) {
	for i := len(messages) - 1; i >= 0; i-- {
		msg := messages[i]
		r.fanout.ToConn(conn.ID, model.Outbound{
			Sender:    msg.Sender,
			Content:   msg.Content,
			Timestamp: model.WireTime(msg.CreatedAt),
			Type:      msg.Type,
			RoomID:    msg.RoomID,
			MessageID: msg.ID.String(),
		})
	}
}

// identityStillInRoom reports whether any live connection of the
// identity still occupies the room.
func (r *Router) identityStillInRoom(identityKey, roomID string) bool {
	for _, c := range r.registry.ConnectionsFor(identityKey) {
		if c.RoomID == roomID {
			return true
		}
	}
	return false
}

// roomSummary is the room list wire shape.
type roomSummary struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Kind        string `json:"kind"`
	MemberCount int    `json:"memberCount"`
	MaxMembers  int    `json:"maxMembers"`
}

func (r *Router) roomListEnvelope() model.Outbound {
	rooms := r.rooms.List()
	summaries := make([]roomSummary, 0, len(rooms))
	for _, rm := range rooms {
		summaries = append(summaries, roomSummary{
			ID:          rm.ID,
			Name:        rm.Name,
			Description: rm.Description,
			Kind:        string(rm.Kind),
			MemberCount: rm.MemberCount(),
			MaxMembers:  rm.MaxMembers,
		})
	}
	payload, err := json.Marshal(summaries)
	if err != nil {
		r.logger.Error("room list marshal failed", "error", err)
		payload = []byte("[]")
	}
	return model.Outbound{
		Sender:    model.SystemSender,
		Content:   string(payload),
		Timestamp: model.WireTime(r.now()),
		Type:      model.TypeRoomList,
	}
}

// broadcastUserList publishes the occupant usernames of a room to the
// room itself. Members without a live connection appear under their
// identity key.
func (r *Router) broadcastUserList(roomID string) {
	members, ok := r.rooms.Members(roomID)
	if !ok {
		return
	}
	names := make([]string, 0, len(members))
	for _, key := range members {
		name := key
		if conns := r.registry.ConnectionsFor(key); len(conns) > 0 {
			name = conns[0].Identity.Username
		}
		names = append(names, name)
	}
	payload, err := json.Marshal(names)
	if err != nil {
		r.logger.Error("user list marshal failed", "room_id", roomID, "error", err)
		return
	}
	r.fanout.ToRoom(roomID, model.Outbound{
		Sender:    model.SystemSender,
		Content:   string(payload),
		Timestamp: model.WireTime(r.now()),
		Type:      model.TypeUserList,
		RoomID:    roomID,
	})
}

// errorMessage maps directory errors to client-facing text.
func errorMessage(err error) string {
	switch {
	case errors.Is(err, room.ErrRoomNotFound):
		return "Room not found."
	case errors.Is(err, room.ErrRoomFull):
		return "Room is full."
	case errors.Is(err, room.ErrDuplicateName):
		return "A room with that name already exists."
	case errors.Is(err, room.ErrNotOwner):
		return "Only the room creator can delete it."
	case errors.Is(err, room.ErrProtectedRoom):
		return "Default rooms cannot be deleted."
	case errors.Is(err, room.ErrEmptyName):
		return "Room name is required."
	}
	return "Request failed."
}
