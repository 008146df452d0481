package signaling

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/duocall/duocall/internal/metrics"
	"github.com/duocall/duocall/internal/room"
)

type inboundEvent struct {
	client *client
	data   []byte
}

// Hub is the single owner of room state. All joins, leaves, and relay
// forwards are serialized through its run loop, so the registry is never
// mutated concurrently and notifications are ordered per connection.
type Hub struct {
	registry *room.Registry
	metrics  *metrics.Metrics
	log      *slog.Logger

	maxMessageBytes int64
	idleTimeout     time.Duration
	pingInterval    time.Duration

	register   chan *client
	unregister chan *client
	inbound    chan inboundEvent
	done       chan struct{}

	// clients is owned by the run loop.
	clients map[string]*client
}

// HubOptions carries the per-connection limits the hub applies.
type HubOptions struct {
	MaxMessageBytes int64
	IdleTimeout     time.Duration
	PingInterval    time.Duration
}

func NewHub(registry *room.Registry, m *metrics.Metrics, logger *slog.Logger, opts HubOptions) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		registry:        registry,
		metrics:         m,
		log:             logger,
		maxMessageBytes: opts.MaxMessageBytes,
		idleTimeout:     opts.IdleTimeout,
		pingInterval:    opts.PingInterval,
		register:        make(chan *client),
		unregister:      make(chan *client),
		inbound:         make(chan inboundEvent),
		done:            make(chan struct{}),
		clients:         make(map[string]*client),
	}
}

// Run dispatches events until ctx is cancelled. It must be running before
// any connection is accepted.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			close(h.done)
			for _, c := range h.clients {
				h.drop(c)
			}
			return
		case c := <-h.register:
			h.clients[c.id] = c
			h.log.Debug("connection registered", "connId", c.id)
		case c := <-h.unregister:
			h.handleDisconnect(c)
		case ev := <-h.inbound:
			h.dispatch(ev.client, ev.data)
		}
	}
}

func (h *Hub) dispatch(c *client, data []byte) {
	msg, err := decodeInbound(data)
	if err != nil {
		h.send(c, encodeError(err.Error()))
		return
	}

	switch msg.Type {
	case TypeJoin:
		h.handleJoin(c, msg)
	case TypeOffer:
		h.handleForwardSDP(c, TypeOffer, msg, metrics.EventRelayOffer)
	case TypeAnswer:
		h.handleForwardSDP(c, TypeAnswer, msg, metrics.EventRelayAnswer)
	case TypeCandidate:
		h.handleForwardCandidate(c, msg)
	case TypeLeave:
		h.handleLeave(c)
	}
}

func (h *Hub) handleJoin(c *client, msg inboundMessage) {
	peers, err := h.registry.Join(msg.RoomID, c.id, msg.DisplayName)
	switch {
	case errors.Is(err, room.ErrInvalidRoomID):
		h.metrics.Inc(metrics.EventJoinInvalidRoom)
		h.send(c, encodeError("invalid room id"))
		return
	case errors.Is(err, room.ErrRoomFull):
		h.metrics.Inc(metrics.EventJoinRoomFull)
		h.send(c, encodeRoomFull(msg.RoomID))
		return
	case errors.Is(err, room.ErrAlreadyJoined):
		h.send(c, encodeError("already in a room"))
		return
	case err != nil:
		h.send(c, encodeError("join failed"))
		return
	}

	h.metrics.Inc(metrics.EventJoin)
	if len(peers) == 0 {
		h.metrics.Inc(metrics.EventRoomCreated)
	}
	h.log.Info("joined room", "connId", c.id, "roomId", msg.RoomID, "peers", len(peers))

	h.send(c, encodeJoined(msg.RoomID, peers))

	self := room.Member{ConnID: c.id, DisplayName: msg.DisplayName}
	for _, peer := range peers {
		if pc, ok := h.clients[peer.ConnID]; ok {
			h.send(pc, encodePeerJoined(self))
		}
	}
}

func (h *Hub) handleForwardSDP(c *client, msgType string, msg inboundMessage, event string) {
	peers, err := h.registry.Peers(msg.RoomID, c.id)
	if err != nil {
		h.metrics.Inc(metrics.EventRelayNotMember)
		h.send(c, encodeError("not a member of this room"))
		return
	}

	h.metrics.Inc(event)
	payload := encodeForwardedSDP(msgType, c.id, msg.SDP)
	for _, peer := range peers {
		if pc, ok := h.clients[peer.ConnID]; ok {
			h.send(pc, payload)
		}
	}
}

func (h *Hub) handleForwardCandidate(c *client, msg inboundMessage) {
	peers, err := h.registry.Peers(msg.RoomID, c.id)
	if err != nil {
		h.metrics.Inc(metrics.EventRelayNotMember)
		h.send(c, encodeError("not a member of this room"))
		return
	}

	h.metrics.Inc(metrics.EventRelayCandidate)
	payload := encodeForwardedCandidate(c.id, msg.Candidate)
	for _, peer := range peers {
		if pc, ok := h.clients[peer.ConnID]; ok {
			h.send(pc, payload)
		}
	}
}

// handleLeave removes the membership but keeps the connection open; a later
// join starts a fresh logical participant on the same transport.
func (h *Hub) handleLeave(c *client) {
	h.leaveRoom(c)
}

func (h *Hub) handleDisconnect(c *client) {
	if _, ok := h.clients[c.id]; !ok {
		return
	}
	h.leaveRoom(c)
	h.drop(c)
	h.metrics.Inc(metrics.EventDisconnect)
	h.log.Debug("connection unregistered", "connId", c.id)
}

func (h *Hub) leaveRoom(c *client) {
	roomID, remaining, left := h.registry.Leave(c.id)
	if !left {
		return
	}
	h.metrics.Inc(metrics.EventPeerLeft)
	h.log.Info("left room", "connId", c.id, "roomId", roomID, "remaining", len(remaining))

	payload := encodePeerLeft(c.id)
	for _, peer := range remaining {
		if pc, ok := h.clients[peer.ConnID]; ok {
			h.send(pc, payload)
		}
	}
}

func (h *Hub) drop(c *client) {
	delete(h.clients, c.id)
	close(c.send)
}

// send enqueues without blocking the run loop. A full queue means the client
// is too slow to matter; the message is dropped and counted.
func (h *Hub) send(c *client, msg []byte) {
	select {
	case c.send <- msg:
	default:
		h.metrics.Inc(metrics.EventSendQueueFull)
		h.log.Warn("send queue full, dropping message", "connId", c.id)
	}
}
