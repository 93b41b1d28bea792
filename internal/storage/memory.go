package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// MemoryGateway is the in-process Gateway used by tests and by the server
// when no database is configured.
type MemoryGateway struct {
	mu       sync.Mutex
	matches  map[string]MatchRecord
	ratings  map[string]RatingRecord
	applied  map[string]RatingUpdate
	failures int
	writes   int
}

func NewMemoryGateway() *MemoryGateway {
	return &MemoryGateway{
		matches: make(map[string]MatchRecord),
		ratings: make(map[string]RatingRecord),
		applied: make(map[string]RatingUpdate),
	}
}

func ratingKey(userID, gameType string) string {
	return userID + "|" + gameType
}

// FailNext makes the next n writes fail with ErrUnavailable.
func (m *MemoryGateway) FailNext(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures = n
}

func (m *MemoryGateway) fail() error {
	if m.failures > 0 {
		m.failures--
		return ErrUnavailable
	}
	return nil
}

func (m *MemoryGateway) CommitMatchResult(ctx context.Context, rec MatchRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail(); err != nil {
		return fmt.Errorf("insert match %s: %w", rec.MatchID, err)
	}
	if _, ok := m.matches[rec.MatchID]; !ok {
		m.matches[rec.MatchID] = rec
	}
	return nil
}

func (m *MemoryGateway) CommitRatingUpdate(ctx context.Context, u RatingUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail(); err != nil {
		return fmt.Errorf("commit rating %s: %w", u.Record.UserID, err)
	}
	hk := u.MatchID + "|" + ratingKey(u.Record.UserID, u.Record.GameType)
	if _, ok := m.applied[hk]; ok {
		return nil
	}
	m.applied[hk] = u
	m.writes++

	k := ratingKey(u.Record.UserID, u.Record.GameType)
	cur, ok := m.ratings[k]
	if ok && cur.Played >= u.Record.Played {
		return nil
	}
	m.ratings[k] = u.Record
	return nil
}

func (m *MemoryGateway) GetRating(ctx context.Context, userID, gameType string) (RatingRecord, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.ratings[ratingKey(userID, gameType)]
	if !ok {
		return RatingRecord{UserID: userID, GameType: gameType}, false, nil
	}
	return r, true, nil
}

func (m *MemoryGateway) Leaderboard(ctx context.Context, gameType string, limit int) ([]LeaderboardEntry, error) {
	m.mu.Lock()
	var recs []RatingRecord
	for _, r := range m.ratings {
		if r.GameType == gameType {
			recs = append(recs, r)
		}
	}
	m.mu.Unlock()

	sort.Slice(recs, func(i, j int) bool {
		if recs[i].Rating != recs[j].Rating {
			return recs[i].Rating > recs[j].Rating
		}
		if recs[i].Wins != recs[j].Wins {
			return recs[i].Wins > recs[j].Wins
		}
		return recs[i].UserID < recs[j].UserID
	})
	if limit > 0 && len(recs) > limit {
		recs = recs[:limit]
	}
	out := make([]LeaderboardEntry, len(recs))
	for i, r := range recs {
		out[i] = LeaderboardEntry{Rank: i + 1, UserID: r.UserID, Rating: r.Rating, Wins: r.Wins, Losses: r.Losses}
	}
	return out, nil
}

// Match returns a committed match, for tests and diagnostics.
func (m *MemoryGateway) Match(matchID string) (MatchRecord, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.matches[matchID]
	return r, ok
}

// RatingWrites counts distinct rating updates applied.
func (m *MemoryGateway) RatingWrites() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.writes
}

// Seed sets a rating directly.
func (m *MemoryGateway) Seed(r RatingRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ratings[ratingKey(r.UserID, r.GameType)] = r
}
