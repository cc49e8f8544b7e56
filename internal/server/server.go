package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/beamhq/beam-realtime/internal/auth"
	"github.com/beamhq/beam-realtime/internal/config"
	"github.com/beamhq/beam-realtime/internal/model"
	"github.com/beamhq/beam-realtime/internal/ratelimit"
	"github.com/beamhq/beam-realtime/internal/registry"
	"github.com/beamhq/beam-realtime/internal/room"
	"github.com/beamhq/beam-realtime/internal/router"
)

// Pinger reports backing-store liveness for the health endpoint.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server is the HTTP/WebSocket edge.
type Server struct {
	cfg      config.HTTPConfig
	instance string
	verifier *auth.Verifier
	registry *registry.Registry
	rooms    *room.Directory
	router   *router.Router
	requests *ratelimit.Keyed
	db       Pinger
	logger   *slog.Logger
	started  time.Time
	upgrader websocket.Upgrader
}

// New wires the edge. requests is the request-scope bucket set, keyed
// by client address. db may be nil when no store is attached.
func New(
	cfg config.HTTPConfig,
	instance string,
	verifier *auth.Verifier,
	reg *registry.Registry,
	rooms *room.Directory,
	rt *router.Router,
	requests *ratelimit.Keyed,
	db Pinger,
	logger *slog.Logger,
) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		cfg:      cfg,
		instance: instance,
		verifier: verifier,
		registry: reg,
		rooms:    rooms,
		router:   rt,
		requests: requests,
		db:       db,
		logger:   logger,
		started:  time.Now(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

// Routes returns the HTTP mux for this server.
func (s *Server) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWS)
	mux.HandleFunc("/health", s.handleHealth)
	return mux
}

// handleWS admits one WebSocket connection. The handshake is rate
// limited per client address before any upgrade work happens; denied
// requests get a plain 429 with the bucket state in headers.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	addr := clientAddr(r)
	if !s.requests.Allow(addr) {
		remaining := s.requests.Remaining(addr)
		retryAfter := int64(s.requests.RefillInterval() / time.Second)
		w.Header().Set("X-RateLimit-Remaining", strconv.FormatInt(remaining, 10))
		w.Header().Set("X-RateLimit-Retry-After", strconv.FormatInt(retryAfter, 10))
		s.logger.Warn("handshake rate limit exceeded", "addr", addr)
		http.Error(w, "too many requests", http.StatusTooManyRequests)
		return
	}

	token, responseHeader := bearerToken(r)
	conn, err := s.upgrader.Upgrade(w, r, responseHeader)
	if err != nil {
		s.logger.Warn("upgrade failed", "addr", addr, "error", err)
		return
	}

	connID := uuid.NewString()
	identity, ok := s.resolveIdentity(conn, connID, token)
	if !ok {
		return
	}

	cl := newClient(connID, conn, s.router, s.cfg, s.logger)
	s.registry.Register(connID, identity, cl)

	go cl.writePump()
	s.router.Connected(connID)
	cl.readPump(r.Context())
}

// resolveIdentity maps the handshake token to an identity. A missing
// or literal "guest" token yields an ephemeral guest; anything else
// must verify, and a bad token closes the socket with a policy
// violation before any registration happens.
func (s *Server) resolveIdentity(conn *websocket.Conn, connID, token string) (model.Identity, bool) {
	if token == "" || token == auth.GuestMarker {
		return model.GuestIdentity(connID), true
	}

	identity, err := s.verifier.Verify(token)
	if err != nil {
		s.logger.Warn("token rejected", "conn_id", connID, "error", err)
		deadline := time.Now().Add(time.Second)
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "invalid token"),
			deadline)
		conn.Close()
		return model.Identity{}, false
	}
	return identity, true
}

// bearerToken extracts the auth token from the handshake: the token
// query parameter first, then the first WebSocket subprotocol. When the
// subprotocol carries the token it must be echoed back in the upgrade
// response for browsers to accept the handshake.
func bearerToken(r *http.Request) (string, http.Header) {
	if token := r.URL.Query().Get("token"); token != "" {
		return token, nil
	}

	proto := r.Header.Get("Sec-WebSocket-Protocol")
	if proto == "" {
		return "", nil
	}
	first := strings.TrimSpace(strings.Split(proto, ",")[0])
	header := http.Header{}
	header.Set("Sec-WebSocket-Protocol", first)
	return first, header
}

// clientAddr identifies the caller for rate limiting. Proxied setups
// put the real client first in X-Forwarded-For.
func clientAddr(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		return strings.TrimSpace(strings.Split(fwd, ",")[0])
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

type healthResponse struct {
	Status      string `json:"status"`
	Instance    string `json:"instance"`
	Connections int    `json:"connections"`
	Rooms       int    `json:"rooms"`
	UptimeSecs  int64  `json:"uptime_seconds"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{
		Status:      "ok",
		Instance:    s.instance,
		Connections: s.registry.Count(),
		Rooms:       len(s.rooms.List()),
		UptimeSecs:  int64(time.Since(s.started).Seconds()),
	}

	code := http.StatusOK
	if s.db != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.db.Ping(ctx); err != nil {
			s.logger.Warn("health check store ping failed", "error", err)
			resp.Status = "degraded"
			code = http.StatusServiceUnavailable
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(resp)
}
