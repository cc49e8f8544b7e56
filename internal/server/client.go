package server

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/beamhq/beam-realtime/internal/config"
	"github.com/beamhq/beam-realtime/internal/model"
	"github.com/beamhq/beam-realtime/internal/router"
)

// client pumps one WebSocket connection. Outbound envelopes go through
// a buffered channel so a slow reader never blocks a broadcast; when
// the buffer is full Push reports failure and the envelope is dropped.
type client struct {
	id     string
	conn   *websocket.Conn
	send   chan model.Outbound
	router *router.Router
	cfg    config.HTTPConfig
	logger *slog.Logger

	closeOnce sync.Once
	done      chan struct{}
}

func newClient(id string, conn *websocket.Conn, rt *router.Router, cfg config.HTTPConfig, logger *slog.Logger) *client {
	return &client{
		id:     id,
		conn:   conn,
		send:   make(chan model.Outbound, cfg.SendBufferSize),
		router: rt,
		cfg:    cfg,
		logger: logger,
		done:   make(chan struct{}),
	}
}

// Push queues an envelope for delivery, best-effort.
func (c *client) Push(env model.Outbound) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- env:
		return true
	default:
		return false
	}
}

func (c *client) close() {
	c.closeOnce.Do(func() {
		close(c.done)
		c.conn.Close()
	})
}

// pongWait is how long we tolerate silence before declaring the peer
// gone. Pings go out more often than that so a healthy peer always
// resets the deadline in time.
func (c *client) pongWait() time.Duration {
	return c.cfg.PingInterval * 10 / 9
}

// readPump drives inbound frames through the router, one at a time.
// Frames from a single connection are handled sequentially so a
// client's own messages keep their order.
func (c *client) readPump(ctx context.Context) {
	defer func() {
		c.router.Disconnect(c.id)
		c.close()
	}()

	c.conn.SetReadLimit(c.cfg.MaxMessageBytes)
	c.conn.SetReadDeadline(time.Now().Add(c.pongWait()))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(c.pongWait()))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.logger.Debug("read failed", "conn_id", c.id, "error", err)
			}
			return
		}
		c.router.Handle(ctx, c.id, data)
	}
}

// writePump serializes all writes to the socket: queued envelopes and
// keepalive pings.
func (c *client) writePump() {
	ticker := time.NewTicker(c.cfg.PingInterval)
	defer func() {
		ticker.Stop()
		c.close()
	}()

	for {
		select {
		case env := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
			if err := c.conn.WriteJSON(env); err != nil {
				c.logger.Debug("write failed", "conn_id", c.id, "error", err)
				return
			}
		case <-ticker.C:
			deadline := time.Now().Add(c.cfg.WriteTimeout)
			if err := c.conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				return
			}
		case <-c.done:
			return
		}
	}
}
