package registry

import (
	"log/slog"
	"sync"
	"testing"

	"github.com/beamhq/beam-realtime/internal/model"
)

// chanSender collects pushed envelopes for assertions.
type chanSender struct {
	mu   sync.Mutex
	got  []model.Outbound
	full bool
}

func (s *chanSender) Push(env model.Outbound) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.full {
		return false
	}
	s.got = append(s.got, env)
	return true
}

func testIdentity(userID, name string) model.Identity {
	return model.Identity{UserID: userID, Username: name}
}

func TestRegisterLookup(t *testing.T) {
	r := New(slog.Default())

	r.Register("c1", testIdentity("u1", "alice"), &chanSender{})

	conn, ok := r.Lookup("c1")
	if !ok {
		t.Fatal("Lookup(c1) not found")
	}
	if conn.Identity.UserID != "u1" {
		t.Errorf("Identity.UserID = %q, want %q", conn.Identity.UserID, "u1")
	}
	if conn.RoomID != "" {
		t.Errorf("new connection RoomID = %q, want lobby", conn.RoomID)
	}
	if r.Count() != 1 {
		t.Errorf("Count = %d, want 1", r.Count())
	}
}

func TestUnregisterIsIdempotent(t *testing.T) {
	r := New(slog.Default())
	r.Register("c1", testIdentity("u1", "alice"), &chanSender{})

	if _, ok := r.Unregister("c1"); !ok {
		t.Fatal("first Unregister should report found")
	}
	if _, ok := r.Unregister("c1"); ok {
		t.Error("second Unregister should be a no-op")
	}
	if _, ok := r.Unregister("never-existed"); ok {
		t.Error("Unregister of unknown id should be a no-op")
	}
	if r.Count() != 0 {
		t.Errorf("Count = %d, want 0", r.Count())
	}
}

func TestSetRoom(t *testing.T) {
	r := New(slog.Default())
	r.Register("c1", testIdentity("u1", "alice"), &chanSender{})

	if !r.SetRoom("c1", "general") {
		t.Fatal("SetRoom returned false for live connection")
	}
	conn, _ := r.Lookup("c1")
	if conn.RoomID != "general" {
		t.Errorf("RoomID = %q, want %q", conn.RoomID, "general")
	}

	if !r.SetRoom("c1", "") {
		t.Fatal("SetRoom to lobby returned false")
	}
	conn, _ = r.Lookup("c1")
	if conn.RoomID != "" {
		t.Errorf("RoomID = %q, want lobby", conn.RoomID)
	}

	if r.SetRoom("gone", "general") {
		t.Error("SetRoom on unknown connection should return false")
	}
}

func TestConnectionsForSharedIdentity(t *testing.T) {
	r := New(slog.Default())
	r.Register("c1", testIdentity("u1", "alice"), &chanSender{})
	r.Register("c2", testIdentity("u1", "alice"), &chanSender{})
	r.Register("c3", testIdentity("u2", "bob"), &chanSender{})

	conns := r.ConnectionsFor("u1")
	if len(conns) != 2 {
		t.Fatalf("ConnectionsFor(u1) = %d connections, want 2", len(conns))
	}
	for _, c := range conns {
		if c.Identity.UserID != "u1" {
			t.Errorf("connection %s has identity %q, want u1", c.ID, c.Identity.UserID)
		}
	}

	if got := r.ConnectionsFor("nobody"); len(got) != 0 {
		t.Errorf("ConnectionsFor(nobody) = %d connections, want 0", len(got))
	}
}

func TestPushAfterUnregisterSnapshot(t *testing.T) {
	r := New(slog.Default())
	sender := &chanSender{}
	r.Register("c1", testIdentity("u1", "alice"), sender)

	conn, _ := r.Lookup("c1")
	r.Unregister("c1")

	// A snapshot taken before unregister can still push; exclusion from
	// future fanout comes from the registry lookup, not the snapshot.
	if !conn.Push(model.Outbound{Type: model.TypeSystem}) {
		t.Error("Push on pre-unregister snapshot should still reach the sender")
	}
	if len(r.All()) != 0 {
		t.Error("All() should be empty after unregister")
	}
}

func TestConcurrentRegisterUnregister(t *testing.T) {
	r := New(slog.Default())

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			id := string(rune('a'+n%26)) + "-conn"
			r.Register(id, testIdentity("u1", "alice"), &chanSender{})
			r.SetRoom(id, "general")
			r.Lookup(id)
			r.Unregister(id)
		}(i)
	}
	wg.Wait()
}
