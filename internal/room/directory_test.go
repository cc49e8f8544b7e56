package room

import (
	"errors"
	"sync"
	"testing"

	"github.com/beamhq/beam-realtime/internal/model"
)

func testIdentity(id string) model.Identity {
	return model.Identity{UserID: id, Username: id}
}

func TestNewDirectorySeedsDefaults(t *testing.T) {
	d := NewDirectory(100, nil)

	for _, id := range []string{"general", "tech", "casual"} {
		r, ok := d.Get(id)
		if !ok {
			t.Fatalf("expected seeded room %q", id)
		}
		if r.Kind != model.RoomGroup {
			t.Errorf("room %q kind = %q, want %q", id, r.Kind, model.RoomGroup)
		}
		if r.Creator != "" {
			t.Errorf("room %q creator = %q, want empty", id, r.Creator)
		}
	}

	if got := len(d.List()); got != 3 {
		t.Errorf("List() returned %d rooms, want 3", got)
	}
}

func TestCreateAndDuplicateName(t *testing.T) {
	d := NewDirectory(100, nil)

	r, err := d.Create("alice", "Team Room", "planning", 10)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if r.Creator != "alice" {
		t.Errorf("creator = %q, want alice", r.Creator)
	}
	if r.MaxMembers != 10 {
		t.Errorf("max members = %d, want 10", r.MaxMembers)
	}
	if r.MemberCount() != 0 {
		t.Errorf("new room has %d members, want 0", r.MemberCount())
	}

	if _, err := d.Create("bob", "Team Room", "", 10); !errors.Is(err, ErrDuplicateName) {
		t.Errorf("duplicate name error = %v, want ErrDuplicateName", err)
	}
	// Exact match only: a different-cased name is a different room.
	if _, err := d.Create("bob", "team room", "", 10); err != nil {
		t.Errorf("case-variant name rejected: %v", err)
	}

	if _, err := d.Create("alice", "   ", "", 10); !errors.Is(err, ErrEmptyName) {
		t.Errorf("blank name error = %v, want ErrEmptyName", err)
	}
}

func TestJoinIsIdempotentAndEnforcesCapacity(t *testing.T) {
	d := NewDirectory(100, nil)
	r, err := d.Create("alice", "Tiny", "", 2)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	if _, err := d.Join(r.ID, "alice"); err != nil {
		t.Fatalf("Join alice: %v", err)
	}
	if _, err := d.Join(r.ID, "bob"); err != nil {
		t.Fatalf("Join bob: %v", err)
	}

	// Re-joining does not count against capacity.
	snap, err := d.Join(r.ID, "alice")
	if err != nil {
		t.Fatalf("re-Join alice: %v", err)
	}
	if snap.MemberCount() != 2 {
		t.Errorf("member count = %d, want 2", snap.MemberCount())
	}

	if _, err := d.Join(r.ID, "carol"); !errors.Is(err, ErrRoomFull) {
		t.Errorf("join full room error = %v, want ErrRoomFull", err)
	}

	if _, err := d.Join("nope", "alice"); !errors.Is(err, ErrRoomNotFound) {
		t.Errorf("join unknown room error = %v, want ErrRoomNotFound", err)
	}
}

func TestLeaveIsNoOpForNonMembers(t *testing.T) {
	d := NewDirectory(100, nil)

	d.Leave("general", "ghost")
	d.Leave("unknown-room", "ghost")

	if _, err := d.Join("general", "alice"); err != nil {
		t.Fatalf("Join: %v", err)
	}
	d.Leave("general", "alice")
	members, ok := d.Members("general")
	if !ok || len(members) != 0 {
		t.Errorf("members after leave = %v, want empty", members)
	}
}

func TestDirectIDIsSymmetric(t *testing.T) {
	if DirectID("alice", "bob") != DirectID("bob", "alice") {
		t.Error("DirectID is not symmetric")
	}
	if got := DirectID("bob", "alice"); got != "dm_alice_bob" {
		t.Errorf("DirectID = %q, want dm_alice_bob", got)
	}
}

func TestGetOrCreateDirect(t *testing.T) {
	d := NewDirectory(100, nil)
	alice := testIdentity("alice")
	bob := testIdentity("bob")

	r1, created := d.GetOrCreateDirect(alice, bob)
	if !created {
		t.Error("first call should create the room")
	}
	if r1.Kind != model.RoomDirect {
		t.Errorf("kind = %q, want %q", r1.Kind, model.RoomDirect)
	}
	if r1.MemberCount() != 2 {
		t.Errorf("member count = %d, want 2", r1.MemberCount())
	}

	// Symmetric and idempotent.
	r2, created := d.GetOrCreateDirect(bob, alice)
	if created {
		t.Error("second call should reuse the room")
	}
	if r1.ID != r2.ID {
		t.Errorf("room ids differ: %q vs %q", r1.ID, r2.ID)
	}
}

func TestDeleteRules(t *testing.T) {
	d := NewDirectory(100, nil)

	// Seeded rooms are protected for everyone.
	if _, err := d.Delete("general", "alice"); !errors.Is(err, ErrProtectedRoom) {
		t.Errorf("delete default room error = %v, want ErrProtectedRoom", err)
	}

	r, err := d.Create("alice", "Mine", "", 10)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := d.Delete(r.ID, "bob"); !errors.Is(err, ErrNotOwner) {
		t.Errorf("delete by non-owner error = %v, want ErrNotOwner", err)
	}

	if _, err := d.Join(r.ID, "bob"); err != nil {
		t.Fatalf("Join: %v", err)
	}
	members, err := d.Delete(r.ID, "alice")
	if err != nil {
		t.Fatalf("Delete by creator: %v", err)
	}
	if len(members) != 1 || members[0] != "bob" {
		t.Errorf("final members = %v, want [bob]", members)
	}
	if _, ok := d.Get(r.ID); ok {
		t.Error("room still present after delete")
	}

	// Direct rooms have no creator and can never be deleted.
	dm, _ := d.GetOrCreateDirect(testIdentity("alice"), testIdentity("bob"))
	if _, err := d.Delete(dm.ID, "alice"); !errors.Is(err, ErrNotOwner) {
		t.Errorf("delete direct room error = %v, want ErrNotOwner", err)
	}
}

func TestConcurrentDirectCreateYieldsOneRoom(t *testing.T) {
	d := NewDirectory(100, nil)
	alice := testIdentity("alice")
	bob := testIdentity("bob")

	const workers = 50
	var wg sync.WaitGroup
	var mu sync.Mutex
	createdCount := 0

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, created := d.GetOrCreateDirect(alice, bob)
			if created {
				mu.Lock()
				createdCount++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if createdCount != 1 {
		t.Errorf("room created %d times, want exactly 1", createdCount)
	}
	if got := len(d.List()); got != 4 {
		t.Errorf("room count = %d, want 4 (3 defaults + 1 direct)", got)
	}
}
