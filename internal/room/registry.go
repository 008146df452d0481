// Package room owns the mapping of room IDs to their members.
//
// Rooms hold at most two members. A room is created implicitly on the first
// successful join of an unknown ID and deleted when its last member leaves;
// an empty room is never retained.
package room

import (
	"errors"
	"sync"
)

// MaxMembers is the room capacity. The service brokers sessions between
// exactly two participants.
const MaxMembers = 2

// maxRoomIDLength bounds room IDs so a client cannot grow registry keys
// without limit.
const maxRoomIDLength = 64

var (
	ErrInvalidRoomID = errors.New("room: invalid room id")
	ErrRoomFull      = errors.New("room: room is full")
	ErrAlreadyJoined = errors.New("room: connection already in a room")
	ErrNotMember     = errors.New("room: connection is not a member of the room")
)

// Member is a single joined connection.
type Member struct {
	ConnID      string `json:"connectionId"`
	DisplayName string `json:"displayName"`
}

// Registry tracks room membership behind a single process-wide lock.
//
// All operations are short and non-blocking; per-room locking is not worth it
// for rooms of two.
type Registry struct {
	mu     sync.Mutex
	rooms  map[string][]Member // insertion order
	byConn map[string]string   // connID -> roomID
}

func NewRegistry() *Registry {
	return &Registry{
		rooms:  make(map[string][]Member),
		byConn: make(map[string]string),
	}
}

// Join adds connID to roomID and returns the members that were already
// present, in insertion order. The registry is unchanged on any error.
//
// A connection holds at most one membership at a time; joining a second room
// requires leaving first.
func (r *Registry) Join(roomID, connID, displayName string) ([]Member, error) {
	if !ValidRoomID(roomID) {
		return nil, ErrInvalidRoomID
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, joined := r.byConn[connID]; joined {
		return nil, ErrAlreadyJoined
	}

	members := r.rooms[roomID]
	if len(members) >= MaxMembers {
		return nil, ErrRoomFull
	}

	existing := append([]Member(nil), members...)
	r.rooms[roomID] = append(members, Member{ConnID: connID, DisplayName: displayName})
	r.byConn[connID] = roomID
	return existing, nil
}

// Leave removes connID from whatever room it belongs to.
//
// It reports the room left and the members remaining in it so the caller can
// notify them. Leaving while not a member is a no-op, not an error, which
// makes disconnect cleanup idempotent with an explicit leave.
func (r *Registry) Leave(connID string) (roomID string, remaining []Member, left bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	roomID, ok := r.byConn[connID]
	if !ok {
		return "", nil, false
	}
	delete(r.byConn, connID)

	members := r.rooms[roomID]
	kept := members[:0]
	for _, m := range members {
		if m.ConnID != connID {
			kept = append(kept, m)
		}
	}
	if len(kept) == 0 {
		delete(r.rooms, roomID)
		return roomID, nil, true
	}
	r.rooms[roomID] = kept
	return roomID, append([]Member(nil), kept...), true
}

// Members returns a snapshot of the room's members in insertion order.
// An unknown room yields an empty slice.
func (r *Registry) Members(roomID string) []Member {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Member(nil), r.rooms[roomID]...)
}

// Peers returns the members of roomID other than senderConnID.
//
// The sender must be a current member of the room; negotiation messages
// cannot be addressed to rooms the sender never joined. An empty result is
// valid: the peer may have already left.
func (r *Registry) Peers(roomID, senderConnID string) ([]Member, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if roomID == "" || r.byConn[senderConnID] != roomID {
		return nil, ErrNotMember
	}

	var peers []Member
	for _, m := range r.rooms[roomID] {
		if m.ConnID != senderConnID {
			peers = append(peers, m)
		}
	}
	return peers, nil
}

// RoomCount returns the number of live rooms.
func (r *Registry) RoomCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.rooms)
}

// ValidRoomID reports whether id is a well-formed room identifier: non-empty,
// at most 64 bytes, printable ASCII with no spaces.
func ValidRoomID(id string) bool {
	if id == "" || len(id) > maxRoomIDLength {
		return false
	}
	for i := 0; i < len(id); i++ {
		c := id[i]
		if c <= ' ' || c >= 0x7f {
			return false
		}
	}
	return true
}
