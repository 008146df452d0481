// Package signaling implements the WebSocket session-event protocol used by
// browser clients: join/leave room coordination plus offer/answer/candidate
// forwarding between the two members of a room.
package signaling
