package metrics

import "sync"

// Event names recorded by the signaling service.
const (
	EventRoomCreated        = "room_created"
	EventJoin               = "join"
	EventJoinRoomFull       = "join_room_full"
	EventJoinInvalidRoom    = "join_invalid_room"
	EventRelayOffer         = "relay_offer"
	EventRelayAnswer        = "relay_answer"
	EventRelayCandidate     = "relay_candidate"
	EventRelayNotMember     = "relay_not_member"
	EventPeerLeft           = "peer_left"
	EventDisconnect         = "disconnect"
	EventSendQueueFull      = "send_queue_full"
	EventCredentialRefresh  = "credential_refresh"
	EventCredentialFallback = "credential_fallback"
	EventRecordingUploaded  = "recording_uploaded"
)

// Metrics is a minimal concurrency-safe counter registry. It keeps room and
// relay accounting testable without pulling in a metrics backend; counters are
// exported in Prometheus text format by PrometheusHandler.
type Metrics struct {
	mu sync.Mutex
	m  map[string]uint64
}

func New() *Metrics {
	return &Metrics{m: make(map[string]uint64)}
}

func (m *Metrics) Inc(name string) {
	m.mu.Lock()
	m.m[name]++
	m.mu.Unlock()
}

func (m *Metrics) Get(name string) uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.m[name]
}

// Snapshot returns a copy of all counters.
func (m *Metrics) Snapshot() map[string]uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]uint64, len(m.m))
	for k, v := range m.m {
		out[k] = v
	}
	return out
}
