package signaling

import (
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/duocall/duocall/internal/config"
	"github.com/duocall/duocall/internal/origin"
	"github.com/duocall/duocall/internal/ratelimit"
)

// Server upgrades HTTP requests to signaling WebSocket connections and
// attaches them to the hub.
type Server struct {
	cfg      config.Config
	hub      *Hub
	log      *slog.Logger
	upgrader websocket.Upgrader
}

func NewServer(cfg config.Config, hub *Hub, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{cfg: cfg, hub: hub, log: logger}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     s.checkOrigin,
	}
	return s
}

// checkOrigin applies the same policy as the HTTP surface: explicit
// allowlist when configured, otherwise same-host only. Requests without an
// Origin header (non-browser clients) are accepted.
func (s *Server) checkOrigin(r *http.Request) bool {
	originHeader := r.Header.Get("Origin")
	if originHeader == "" {
		return true
	}
	normalized, host, ok := origin.NormalizeHeader(originHeader)
	if !ok {
		return false
	}
	return origin.IsAllowed(normalized, host, r.Host, s.cfg.AllowedOrigins)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error response.
		s.log.Debug("websocket upgrade rejected", "remote", r.RemoteAddr, "err", err)
		return
	}

	rate := int64(s.cfg.MaxSignalingMessagesPerSecond)
	c := &client{
		id:      uuid.NewString(),
		hub:     s.hub,
		conn:    conn,
		log:     s.log,
		send:    make(chan []byte, sendQueueLen),
		limiter: ratelimit.NewTokenBucket(ratelimit.RealClock{}, rate, rate),
	}

	select {
	case s.hub.register <- c:
	case <-s.hub.done:
		_ = conn.Close()
		return
	}

	go c.writePump()
	go c.readPump()
}
