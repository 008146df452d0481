package signaling

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/duocall/duocall/internal/room"
)

// Inbound message types.
const (
	TypeJoin      = "join"
	TypeOffer     = "offer"
	TypeAnswer    = "answer"
	TypeCandidate = "candidate"
	TypeLeave     = "leave"
)

// Outbound message types.
const (
	TypeJoined     = "joined"
	TypePeerJoined = "peer_joined"
	TypePeerLeft   = "peer_left"
	TypeRoomFull   = "room_full"
	TypeError      = "error"
)

// DefaultDisplayName is used when a join request omits the display name.
const DefaultDisplayName = "Guest"

var errUnknownType = errors.New("unknown message type")

// inboundMessage is the decoded form of a client message. Exactly the fields
// relevant to Type are populated; everything else is zero.
type inboundMessage struct {
	Type        string
	RoomID      string
	DisplayName string
	// SDP carries the raw session description for offer/answer; Candidate
	// carries the raw candidate object. Both are opaque here and forwarded
	// verbatim.
	SDP       json.RawMessage
	Candidate json.RawMessage
}

type inboundEnvelope struct {
	Type        string          `json:"type"`
	RoomID      string          `json:"roomId"`
	DisplayName string          `json:"displayName"`
	SDP         json.RawMessage `json:"sdp"`
	Candidate   json.RawMessage `json:"candidate"`
}

// decodeInbound parses and validates one client message. Unknown types and
// missing required fields are rejected so malformed input surfaces as a
// protocol error rather than partial state.
func decodeInbound(data []byte) (inboundMessage, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()

	var env inboundEnvelope
	if err := dec.Decode(&env); err != nil {
		return inboundMessage{}, fmt.Errorf("malformed message: %w", err)
	}

	msg := inboundMessage{
		Type:        env.Type,
		RoomID:      strings.TrimSpace(env.RoomID),
		DisplayName: strings.TrimSpace(env.DisplayName),
		SDP:         env.SDP,
		Candidate:   env.Candidate,
	}

	switch env.Type {
	case TypeJoin:
		if msg.RoomID == "" {
			return inboundMessage{}, errors.New("join requires roomId")
		}
		if msg.DisplayName == "" {
			msg.DisplayName = DefaultDisplayName
		}
	case TypeOffer, TypeAnswer:
		if msg.RoomID == "" {
			return inboundMessage{}, fmt.Errorf("%s requires roomId", env.Type)
		}
		if len(env.SDP) == 0 || string(env.SDP) == "null" {
			return inboundMessage{}, fmt.Errorf("%s requires sdp", env.Type)
		}
	case TypeCandidate:
		if msg.RoomID == "" {
			return inboundMessage{}, errors.New("candidate requires roomId")
		}
		if len(env.Candidate) == 0 || string(env.Candidate) == "null" {
			return inboundMessage{}, errors.New("candidate requires candidate")
		}
	case TypeLeave:
		// roomId is accepted but ignored: the registry already knows which
		// room the connection belongs to.
	case "":
		return inboundMessage{}, errors.New("missing message type")
	default:
		return inboundMessage{}, fmt.Errorf("%w: %q", errUnknownType, env.Type)
	}

	return msg, nil
}

// Outbound messages are one struct per type so that encoding is explicit:
// joined always carries a peers array (possibly empty, never null), and
// forwarded negotiation payloads carry only the sender tag plus the payload.

type joinedMessage struct {
	Type   string        `json:"type"`
	RoomID string        `json:"roomId"`
	Peers  []room.Member `json:"peers"`
}

type peerJoinedMessage struct {
	Type        string `json:"type"`
	ConnID      string `json:"connectionId"`
	DisplayName string `json:"displayName"`
}

type peerLeftMessage struct {
	Type   string `json:"type"`
	ConnID string `json:"connectionId"`
}

type roomFullMessage struct {
	Type   string `json:"type"`
	RoomID string `json:"roomId"`
}

type forwardedSDPMessage struct {
	Type string          `json:"type"`
	From string          `json:"from"`
	SDP  json.RawMessage `json:"sdp"`
}

type forwardedCandidateMessage struct {
	Type      string          `json:"type"`
	From      string          `json:"from"`
	Candidate json.RawMessage `json:"candidate"`
}

type errorMessage struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

func encodeJoined(roomID string, peers []room.Member) []byte {
	if peers == nil {
		peers = []room.Member{}
	}
	return mustEncode(joinedMessage{Type: TypeJoined, RoomID: roomID, Peers: peers})
}

func encodePeerJoined(member room.Member) []byte {
	return mustEncode(peerJoinedMessage{Type: TypePeerJoined, ConnID: member.ConnID, DisplayName: member.DisplayName})
}

func encodePeerLeft(connID string) []byte {
	return mustEncode(peerLeftMessage{Type: TypePeerLeft, ConnID: connID})
}

func encodeRoomFull(roomID string) []byte {
	return mustEncode(roomFullMessage{Type: TypeRoomFull, RoomID: roomID})
}

func encodeForwardedSDP(msgType, from string, sdp json.RawMessage) []byte {
	return mustEncode(forwardedSDPMessage{Type: msgType, From: from, SDP: sdp})
}

func encodeForwardedCandidate(from string, candidate json.RawMessage) []byte {
	return mustEncode(forwardedCandidateMessage{Type: TypeCandidate, From: from, Candidate: candidate})
}

func encodeError(message string) []byte {
	return mustEncode(errorMessage{Type: TypeError, Message: message})
}

func mustEncode(v any) []byte {
	b, err := json.Marshal(v)
	if err != nil {
		// All outbound types marshal by construction.
		panic(err)
	}
	return b
}
