package matchmaker

import "time"

// JoinRequest enters the caller into the pairing pool of one game type. The
// player id comes from the authenticated connection.
type JoinRequest struct {
	UserID   string `json:"-"`
	GameType string `json:"gameType" binding:"required,alphanum"`
}

// JoinResponse reports whether the caller is still waiting or was paired.
type JoinResponse struct {
	Queued   bool     `json:"queued"`
	MatchID  string   `json:"matchId,omitempty"`
	Players  []string `json:"players,omitempty"`
	GameType string   `json:"gameType"`
}

// CancelRequest leaves the pool and, with a match id, asks to cancel that
// match.
type CancelRequest struct {
	MatchID string `json:"matchId"`
}

// Pairing is two players taken from the same pool.
type Pairing struct {
	MatchID   string
	GameType  string
	Players   []string
	CreatedAt time.Time
}
