package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/beamhq/beam-realtime/internal/auth"
	"github.com/beamhq/beam-realtime/internal/config"
	"github.com/beamhq/beam-realtime/internal/fanout"
	"github.com/beamhq/beam-realtime/internal/model"
	"github.com/beamhq/beam-realtime/internal/ratelimit"
	"github.com/beamhq/beam-realtime/internal/receipt"
	"github.com/beamhq/beam-realtime/internal/registry"
	"github.com/beamhq/beam-realtime/internal/room"
	"github.com/beamhq/beam-realtime/internal/router"
)

const testSecret = "test-secret"

// stubStore is an in-memory message store for transport tests.
type stubStore struct {
	mu     sync.Mutex
	byRoom map[string][]model.StoredMessage
}

func newStubStore() *stubStore {
	return &stubStore{byRoom: make(map[string][]model.StoredMessage)}
}

func (s *stubStore) Append(_ context.Context, msg model.Message) (model.StoredMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored := model.StoredMessage{
		ID:        uuid.New(),
		RoomID:    msg.RoomID,
		Sender:    msg.Sender,
		Content:   msg.Content,
		Type:      msg.Type,
		CreatedAt: time.Now(),
	}
	s.byRoom[msg.RoomID] = append(s.byRoom[msg.RoomID], stored)
	return stored, nil
}

func (s *stubStore) FetchRecent(_ context.Context, roomID string, limit int) ([]model.StoredMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	all := s.byRoom[roomID]
	var result []model.StoredMessage
	for i := len(all) - 1; i >= 0 && len(result) < limit; i-- {
		result = append(result, all[i])
	}
	return result, nil
}

func testHTTPConfig() config.HTTPConfig {
	return config.HTTPConfig{
		Addr:            "127.0.0.1:0",
		ReadTimeout:     5 * time.Second,
		WriteTimeout:    5 * time.Second,
		MaxMessageBytes: 4096,
		SendBufferSize:  32,
		PingInterval:    54 * time.Second,
		ShutdownTimeout: time.Second,
	}
}

func newTestServer(t *testing.T, requestLimit ratelimit.Config) *httptest.Server {
	t.Helper()
	if requestLimit.Capacity == 0 {
		requestLimit = ratelimit.Config{Capacity: 100, RefillTokens: 100, RefillInterval: time.Minute}
	}

	reg := registry.New(nil)
	rooms := room.NewDirectory(100, nil)
	fan := fanout.New(reg, rooms, nil)
	st := newStubStore()
	receipts := receipt.NewTracker(rooms, fan, nil)
	msgLimiter := ratelimit.NewKeyed(ratelimit.Config{
		Capacity: 50, RefillTokens: 50, RefillInterval: 10 * time.Second,
	})
	rt := router.New(reg, rooms, msgLimiter, st, receipts, fan, 50, nil)

	srv := New(
		testHTTPConfig(),
		"test",
		auth.NewVerifier(testSecret),
		reg,
		rooms,
		rt,
		ratelimit.NewKeyed(requestLimit),
		nil,
		nil,
	)
	ts := httptest.NewServer(srv.Routes())
	t.Cleanup(ts.Close)
	return ts
}

func wsURL(ts *httptest.Server, path string) string {
	return "ws" + strings.TrimPrefix(ts.URL, "http") + path
}

func readEnvelope(t *testing.T, conn *websocket.Conn) model.Outbound {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	var env model.Outbound
	if err := conn.ReadJSON(&env); err != nil {
		t.Fatalf("read envelope: %v", err)
	}
	return env
}

func signToken(t *testing.T, secret, userID, username string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id":  userID,
		"username": username,
		"exp":      time.Now().Add(time.Hour).Unix(),
	})
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

func TestGuestHandshakeJoinAndChat(t *testing.T) {
	ts := newTestServer(t, ratelimit.Config{})

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(ts, "/ws"), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	// First envelope is the room list.
	env := readEnvelope(t, conn)
	if env.Type != model.TypeRoomList {
		t.Fatalf("first envelope type = %q, want roomlist", env.Type)
	}

	if err := conn.WriteJSON(model.Inbound{Kind: "join", RoomID: "general"}); err != nil {
		t.Fatalf("write join: %v", err)
	}

	env = readEnvelope(t, conn)
	if env.Type != model.TypeSystem || !strings.HasSuffix(env.Content, "joined the room") {
		t.Fatalf("join notice = %+v", env)
	}
	if !strings.HasPrefix(env.Content, "guest-") {
		t.Errorf("guest name in %q should start with guest-", env.Content)
	}

	// Userlist follows.
	if env = readEnvelope(t, conn); env.Type != model.TypeUserList {
		t.Fatalf("expected userlist, got %+v", env)
	}

	if err := conn.WriteJSON(model.Inbound{Kind: "text", Content: "hello"}); err != nil {
		t.Fatalf("write text: %v", err)
	}
	env = readEnvelope(t, conn)
	if env.Type != model.TypeMessage || env.Content != "hello" || env.MessageID == "" {
		t.Fatalf("chat echo = %+v", env)
	}
}

func TestAuthenticatedHandshakeUsesTokenIdentity(t *testing.T) {
	ts := newTestServer(t, ratelimit.Config{})

	url := wsURL(ts, "/ws") + "?token=" + signToken(t, testSecret, "u42", "alice")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	readEnvelope(t, conn) // roomlist

	if err := conn.WriteJSON(model.Inbound{Kind: "join", RoomID: "general"}); err != nil {
		t.Fatalf("write join: %v", err)
	}
	env := readEnvelope(t, conn)
	if env.Content != "alice joined the room" {
		t.Errorf("join notice = %q", env.Content)
	}
}

func TestInvalidTokenClosesWithPolicyViolation(t *testing.T) {
	ts := newTestServer(t, ratelimit.Config{})

	url := wsURL(ts, "/ws") + "?token=" + signToken(t, "wrong-secret", "u42", "alice")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	_, _, err = conn.ReadMessage()
	if !websocket.IsCloseError(err, websocket.ClosePolicyViolation) {
		t.Errorf("close error = %v, want policy violation", err)
	}
}

func TestSubprotocolTokenAccepted(t *testing.T) {
	ts := newTestServer(t, ratelimit.Config{})

	token := signToken(t, testSecret, "u7", "bob")
	dialer := websocket.Dialer{Subprotocols: []string{token}}
	conn, resp, err := dialer.Dial(wsURL(ts, "/ws"), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	if got := resp.Header.Get("Sec-WebSocket-Protocol"); got != token {
		t.Errorf("subprotocol echo = %q, want the token", got)
	}
	if env := readEnvelope(t, conn); env.Type != model.TypeRoomList {
		t.Errorf("first envelope type = %q", env.Type)
	}
}

func TestHandshakeRateLimit(t *testing.T) {
	ts := newTestServer(t, ratelimit.Config{
		Capacity: 1, RefillTokens: 1, RefillInterval: 30 * time.Second,
	})

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(ts, "/ws"), nil)
	if err != nil {
		t.Fatalf("first dial: %v", err)
	}
	defer conn.Close()

	_, resp, err := websocket.DefaultDialer.Dial(wsURL(ts, "/ws"), nil)
	if err == nil {
		t.Fatal("second dial should be rejected")
	}
	if resp == nil || resp.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("status = %v, want 429", resp)
	}
	if got := resp.Header.Get("X-RateLimit-Remaining"); got != "0" {
		t.Errorf("X-RateLimit-Remaining = %q, want 0", got)
	}
	// Retry timing comes from the configured refill window.
	if got := resp.Header.Get("X-RateLimit-Retry-After"); got != "30" {
		t.Errorf("X-RateLimit-Retry-After = %q, want 30", got)
	}
}

func TestHealthEndpoint(t *testing.T) {
	ts := newTestServer(t, ratelimit.Config{})

	resp, err := http.Get(ts.URL + "/health")
	if err != nil {
		t.Fatalf("get health: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	var body healthResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Status != "ok" {
		t.Errorf("status = %q, want ok", body.Status)
	}
	if body.Rooms != 3 {
		t.Errorf("rooms = %d, want 3 defaults", body.Rooms)
	}
}

func TestTwoClientsSeeEachOther(t *testing.T) {
	ts := newTestServer(t, ratelimit.Config{})

	dial := func(name string) *websocket.Conn {
		url := wsURL(ts, "/ws") + "?token=" + signToken(t, testSecret, name, name)
		conn, _, err := websocket.DefaultDialer.Dial(url, nil)
		if err != nil {
			t.Fatalf("dial %s: %v", name, err)
		}
		t.Cleanup(func() { conn.Close() })
		readEnvelope(t, conn) // roomlist
		if err := conn.WriteJSON(model.Inbound{Kind: "join", RoomID: "tech"}); err != nil {
			t.Fatalf("join %s: %v", name, err)
		}
		return conn
	}

	alice := dial("alice")
	readEnvelope(t, alice) // own join notice
	readEnvelope(t, alice) // userlist

	bob := dial("bob")
	readEnvelope(t, bob) // bob's join notice
	readEnvelope(t, bob) // userlist

	// Alice sees bob arrive.
	env := readEnvelope(t, alice)
	if env.Type != model.TypeSystem || env.Content != "bob joined the room" {
		t.Fatalf("alice saw %+v", env)
	}
	readEnvelope(t, alice) // updated userlist

	if err := bob.WriteJSON(model.Inbound{Kind: "text", Content: "ping"}); err != nil {
		t.Fatalf("bob write: %v", err)
	}
	env = readEnvelope(t, alice)
	if env.Type != model.TypeMessage || env.Sender != "bob" || env.Content != "ping" {
		t.Fatalf("alice received %+v", env)
	}
}
