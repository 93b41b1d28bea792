package session

import (
	"encoding/json"
	"time"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// How a match reached its terminal status.
const (
	ReasonGameOver       = "game_over"
	ReasonResign         = "resign"
	ReasonForfeit        = "forfeit"
	ReasonPairingTimeout = "pairing_timeout"
	ReasonCancelled      = "cancelled"
)

// MatchState is the authoritative state of one match. Only the owning
// session goroutine mutates it; everything else sees copies.
type MatchState struct {
	MatchID        string          `json:"matchId"`
	GameType       string          `json:"gameType"`
	ParticipantA   string          `json:"participantA"`
	ParticipantB   string          `json:"participantB"`
	Status         Status          `json:"status"`
	Board          json.RawMessage `json:"board,omitempty"`
	TurnHolder     string          `json:"turnHolder,omitempty"`
	CreatedAt      time.Time       `json:"createdAt"`
	LastActivityAt time.Time       `json:"lastActivityAt"`
	WinnerID       *string         `json:"winnerId"`
	Seq            uint64          `json:"seq"`
	Moves          int             `json:"moves"`
	LastMove       json.RawMessage `json:"lastMove,omitempty"`
	Reason         string          `json:"reason,omitempty"`

	// Cause is set when a timer ended the match.
	Cause error `json:"-"`
}

// Participants returns both user ids, A first.
func (m MatchState) Participants() []string {
	return []string{m.ParticipantA, m.ParticipantB}
}

// Winner returns the winner id, "" for a draw or a running match.
func (m MatchState) Winner() string {
	if m.WinnerID == nil {
		return ""
	}
	return *m.WinnerID
}

func (m MatchState) clone() MatchState {
	c := m
	if m.WinnerID != nil {
		w := *m.WinnerID
		c.WinnerID = &w
	}
	c.Board = append(json.RawMessage(nil), m.Board...)
	c.LastMove = append(json.RawMessage(nil), m.LastMove...)
	return c
}
