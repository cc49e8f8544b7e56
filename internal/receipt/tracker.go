package receipt

import (
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/beamhq/beam-realtime/internal/model"
	"github.com/beamhq/beam-realtime/internal/room"
)

// Publisher announces read updates to an audience.
type Publisher interface {
	ToRoom(roomID string, env model.Outbound)
	ToIdentity(identityKey string, env model.Outbound)
}

type receiptKey struct {
	messageID string
	userID    string
}

type unreadKey struct {
	roomID string
	userID string
}

// Tracker records which users have read which messages.
type Tracker struct {
	mu       sync.Mutex
	receipts map[receiptKey]model.Receipt
	counts   map[string]int // messageID -> distinct readers
	unread   map[unreadKey]int

	rooms  *room.Directory
	pub    Publisher
	logger *slog.Logger
	now    func() time.Time
}

// NewTracker creates a Tracker that announces updates via pub.
func NewTracker(rooms *room.Directory, pub Publisher, logger *slog.Logger) *Tracker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Tracker{
		receipts: make(map[receiptKey]model.Receipt),
		counts:   make(map[string]int),
		unread:   make(map[unreadKey]int),
		rooms:    rooms,
		pub:      pub,
		logger:   logger,
		now:      time.Now,
	}
}

// NoteDelivery bumps the unread count for one room member. Called when
// a message is stored and fanned out to members who have not read it.
func (t *Tracker) NoteDelivery(roomID, userID string) {
	t.mu.Lock()
	t.unread[unreadKey{roomID, userID}]++
	t.mu.Unlock()
}

// MarkRead records that a user has read a message. Repeat marks for the
// same (message, user) pair are ignored; only the first creates a
// receipt, bumps the read count, clears the user's unread counter for
// the room, and announces the update.
func (t *Tracker) MarkRead(messageID, roomID, userID, username string) (model.Receipt, bool) {
	key := receiptKey{messageID, userID}

	t.mu.Lock()
	if existing, ok := t.receipts[key]; ok {
		t.mu.Unlock()
		return existing, false
	}
	rec := model.Receipt{
		MessageID: messageID,
		RoomID:    roomID,
		UserID:    userID,
		ReadAt:    t.now(),
	}
	t.receipts[key] = rec
	t.counts[messageID]++
	count := t.counts[messageID]
	delete(t.unread, unreadKey{roomID, userID})
	t.mu.Unlock()

	t.announce(roomID, messageID, userID, username, count)
	return rec, true
}

// MarkRoomRead marks every message in the batch as read by one user,
// skipping the user's own messages. Returns how many new receipts were
// created.
func (t *Tracker) MarkRoomRead(roomID, userID, username string, messages []model.StoredMessage) int {
	created := 0
	for _, msg := range messages {
		if msg.Sender == username || msg.Sender == userID {
			continue
		}
		if _, ok := t.MarkRead(msg.ID.String(), roomID, userID, username); ok {
			created++
		}
	}
	return created
}

// ReadCount returns the number of distinct users who read a message.
func (t *Tracker) ReadCount(messageID string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.counts[messageID]
}

// UnreadCount returns a user's unread count for a room.
func (t *Tracker) UnreadCount(roomID, userID string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.unread[unreadKey{roomID, userID}]
}

// announce publishes a read update. Group rooms hear it room-wide;
// direct rooms notify only the counterpart.
func (t *Tracker) announce(roomID, messageID, userID, username string, count int) {
	if t.pub == nil {
		return
	}

	env := model.Outbound{
		Sender:    username,
		Content:   strconv.Itoa(count),
		Timestamp: model.WireTime(t.now()),
		Type:      model.TypeReadUpdate,
		RoomID:    roomID,
		MessageID: messageID,
	}

	r, ok := t.rooms.Get(roomID)
	if ok && r.Kind == model.RoomDirect {
		for _, member := range r.Members {
			if member != userID {
				t.pub.ToIdentity(member, env)
			}
		}
		return
	}
	t.pub.ToRoom(roomID, env)
}
