package signaling

import (
	"errors"
	"log/slog"
	"net"
	"time"

	"github.com/gorilla/websocket"

	"github.com/duocall/duocall/internal/ratelimit"
)

const (
	wsWriteWait = 1 * time.Second

	// sendQueueLen bounds per-connection outbound buffering. A client that
	// cannot drain this many messages is dropped rather than allowed to
	// stall the coordination loop.
	sendQueueLen = 32
)

// client is one WebSocket connection attached to the hub. The read pump is
// the only reader of conn; the write pump is the only writer. All other state
// (room membership, display name) lives in the hub's registry.
type client struct {
	id   string
	hub  *Hub
	conn *websocket.Conn
	log  *slog.Logger

	// send is written by the hub and drained by the write pump. Closed by
	// the hub once the client is unregistered.
	send chan []byte

	limiter *ratelimit.TokenBucket
}

func (c *client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(c.hub.maxMessageBytes)
	_ = c.conn.SetReadDeadline(time.Now().Add(c.hub.idleTimeout))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(c.hub.idleTimeout))
	})

	for {
		msgType, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) && !isTimeout(err) {
				c.log.Debug("websocket read failed", "connId", c.id, "err", err)
			}
			return
		}
		if msgType != websocket.TextMessage {
			writeClose(c.conn, websocket.CloseUnsupportedData, "expected text message")
			return
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(c.hub.idleTimeout))

		if !c.limiter.Allow(1) {
			writeClose(c.conn, websocket.ClosePolicyViolation, "rate limit exceeded")
			return
		}

		select {
		case c.hub.inbound <- inboundEvent{client: c, data: data}:
		case <-c.hub.done:
			return
		}
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(c.hub.pingInterval)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				writeClose(c.conn, websocket.CloseNormalClosure, "")
				return
			}
			_ = c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func writeClose(conn *websocket.Conn, code int, reason string) {
	_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), time.Now().Add(wsWriteWait))
}

func isTimeout(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
