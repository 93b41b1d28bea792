package storage

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

type Outcome string

const (
	OutcomeWin  Outcome = "win"
	OutcomeLoss Outcome = "loss"
	OutcomeDraw Outcome = "draw"
)

var ErrUnavailable = errors.New("store unavailable")

// MatchRecord is the finalized row of one match. WinnerID is empty for draws
// and cancelled matches.
type MatchRecord struct {
	MatchID      string          `json:"matchId"`
	GameType     string          `json:"gameType"`
	ParticipantA string          `json:"participantA"`
	ParticipantB string          `json:"participantB"`
	WinnerID     string          `json:"winnerId,omitempty"`
	Status       string          `json:"status"`
	Reason       string          `json:"reason"`
	FinalPayload json.RawMessage `json:"finalPayload,omitempty"`
	CreatedAt    time.Time       `json:"createdAt"`
	EndedAt      time.Time       `json:"endedAt"`
}

// RatingRecord is one user's standing in one game type. Played counts the
// rated matches folded into it and orders competing writes.
type RatingRecord struct {
	UserID       string    `json:"userId"`
	GameType     string    `json:"gameType"`
	Rating       int       `json:"rating"`
	Wins         int       `json:"wins"`
	Losses       int       `json:"losses"`
	Played       int       `json:"played"`
	LastPlayedAt time.Time `json:"lastPlayedAt"`
}

// RatingUpdate carries the absolute values a match produced for one user, so
// replaying it is harmless. A record whose Played does not exceed the stored
// one is history only.
type RatingUpdate struct {
	MatchID   string       `json:"matchId"`
	OldRating int          `json:"oldRating"`
	Outcome   Outcome      `json:"outcome"`
	Record    RatingRecord `json:"record"`
}

type LeaderboardEntry struct {
	Rank   int    `json:"rank"`
	UserID string `json:"userId"`
	Rating int    `json:"rating"`
	Wins   int    `json:"wins"`
	Losses int    `json:"losses"`
}

// Gateway is the durable store behind the rating engine and the leaderboard.
type Gateway interface {
	// CommitMatchResult is idempotent by match id.
	CommitMatchResult(ctx context.Context, rec MatchRecord) error
	// CommitRatingUpdate is idempotent by (user, game type, match).
	CommitRatingUpdate(ctx context.Context, u RatingUpdate) error
	// GetRating reports false when the user has never played the game type.
	GetRating(ctx context.Context, userID, gameType string) (RatingRecord, bool, error)
	Leaderboard(ctx context.Context, gameType string, limit int) ([]LeaderboardEntry, error)
}
