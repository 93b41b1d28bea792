package websocket

import (
	"encoding/json"
)

type FrameType string

const (
	TypeJoin      FrameType = "join"
	TypeChallenge FrameType = "challenge"
	TypeMove      FrameType = "move"
	TypeResign    FrameType = "resign"
	TypeHeartbeat FrameType = "heartbeat"

	TypeState     FrameType = "state"
	TypeStateSync FrameType = "state_sync"
	TypeError     FrameType = "error"
)

// Frame is one protocol message in either direction.
type Frame struct {
	Type    FrameType       `json:"type"`
	MatchID string          `json:"matchId,omitempty"`
	UserID  string          `json:"userId,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`

	// Critical frames are never dropped by the outbound queue.
	Critical bool `json:"-"`
}

type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// SyncPayload is carried by state_sync frames. Overflow markers carry only
// Reason; reconnect pushes carry the full snapshot in State.
type SyncPayload struct {
	Reason string          `json:"reason"`
	State  json.RawMessage `json:"state,omitempty"`
}

const (
	SyncReasonOverflow  = "overflow"
	SyncReasonReconnect = "reconnect"
	SyncReasonRequested = "requested"
)

// NewFrame marshals v into the frame payload.
func NewFrame(t FrameType, matchID, userID string, v any) Frame {
	f := Frame{Type: t, MatchID: matchID, UserID: userID}
	if v != nil {
		raw, err := json.Marshal(v)
		if err == nil {
			f.Payload = raw
		}
	}
	f.Critical = t == TypeStateSync || t == TypeError
	return f
}

func ErrorFrame(matchID, userID, code, message string) Frame {
	return NewFrame(TypeError, matchID, userID, ErrorPayload{Code: code, Message: message})
}

func overflowMarker() Frame {
	return NewFrame(TypeStateSync, "", "", SyncPayload{Reason: SyncReasonOverflow})
}
