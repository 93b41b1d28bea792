package storage

import (
	"context"
	"database/sql"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func update(matchID, user string, rating, wins, losses int, at time.Time) RatingUpdate {
	return RatingUpdate{
		MatchID:   matchID,
		OldRating: 1200,
		Outcome:   OutcomeWin,
		Record: RatingRecord{
			UserID: user, GameType: "chess", Rating: rating, Wins: wins, Losses: losses,
			Played: wins + losses, LastPlayedAt: at,
		},
	}
}

func TestMemoryGatewayRatingIdempotent(t *testing.T) {
	g := NewMemoryGateway()
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, g.CommitRatingUpdate(ctx, update("m1", "alice", 1216, 1, 0, now)))
	require.NoError(t, g.CommitRatingUpdate(ctx, update("m1", "alice", 1216, 1, 0, now)))
	assert.Equal(t, 1, g.RatingWrites())

	r, ok, err := g.GetRating(ctx, "alice", "chess")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 1216, r.Rating)
	assert.Equal(t, 1, r.Wins)
}

func TestMemoryGatewayIgnoresOlderUpdates(t *testing.T) {
	g := NewMemoryGateway()
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, g.CommitRatingUpdate(ctx, update("m2", "alice", 1230, 2, 0, now)))
	require.NoError(t, g.CommitRatingUpdate(ctx, update("m1", "alice", 1216, 1, 0, now.Add(-time.Minute))))

	r, _, _ := g.GetRating(ctx, "alice", "chess")
	assert.Equal(t, 1230, r.Rating)
}

func TestMemoryGatewayOrdersBySameTimestamp(t *testing.T) {
	g := NewMemoryGateway()
	ctx := context.Background()
	now := time.Now()

	// a late write of the earlier match must not roll back the standing
	require.NoError(t, g.CommitRatingUpdate(ctx, update("m2", "alice", 1231, 2, 0, now)))
	require.NoError(t, g.CommitRatingUpdate(ctx, update("m1", "alice", 1216, 1, 0, now)))

	r, _, _ := g.GetRating(ctx, "alice", "chess")
	assert.Equal(t, 1231, r.Rating)
	assert.Equal(t, 2, r.Wins)
	assert.Equal(t, 2, r.Played)
	assert.Equal(t, 2, g.RatingWrites(), "both matches are in the history")
}

func TestMemoryGatewayUnknownRating(t *testing.T) {
	g := NewMemoryGateway()
	r, ok, err := g.GetRating(context.Background(), "nobody", "chess")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, "nobody", r.UserID)
}

func TestMemoryGatewayFailNext(t *testing.T) {
	g := NewMemoryGateway()
	ctx := context.Background()
	g.FailNext(1)

	err := g.CommitMatchResult(ctx, MatchRecord{MatchID: "m1"})
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.NoError(t, g.CommitMatchResult(ctx, MatchRecord{MatchID: "m1", Status: "completed"}))

	rec, ok := g.Match("m1")
	assert.True(t, ok)
	assert.Equal(t, "completed", rec.Status)
}

func TestMemoryGatewayLeaderboard(t *testing.T) {
	g := NewMemoryGateway()
	g.Seed(RatingRecord{UserID: "a", GameType: "chess", Rating: 1300, Wins: 3})
	g.Seed(RatingRecord{UserID: "b", GameType: "chess", Rating: 1400, Wins: 5})
	g.Seed(RatingRecord{UserID: "c", GameType: "chess", Rating: 1300, Wins: 4})
	g.Seed(RatingRecord{UserID: "d", GameType: "foosball", Rating: 1500})

	board, err := g.Leaderboard(context.Background(), "chess", 2)
	require.NoError(t, err)
	require.Len(t, board, 2)
	assert.Equal(t, LeaderboardEntry{Rank: 1, UserID: "b", Rating: 1400, Wins: 5}, board[0])
	assert.Equal(t, "c", board[1].UserID)
	assert.Equal(t, 2, board[1].Rank)
}

// Postgres tests need a disposable database: SCOREBOARD_TEST_DSN=postgres://...
func testDB(t *testing.T) *sql.DB {
	t.Helper()
	dsn := os.Getenv("SCOREBOARD_TEST_DSN")
	if dsn == "" {
		t.Skip("SCOREBOARD_TEST_DSN not set")
	}
	db, err := sql.Open("postgres", dsn)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, Migrate(db))
	return db
}

func TestPostgresGatewayCommit(t *testing.T) {
	db := testDB(t)
	g := NewPostgresGateway(db)
	ctx := context.Background()

	matchID := uuid.NewString()
	alice := "alice-" + matchID
	now := time.Now().UTC().Truncate(time.Millisecond)

	rec := MatchRecord{
		MatchID: matchID, GameType: "chess", ParticipantA: alice, ParticipantB: "bob-" + matchID,
		WinnerID: alice, Status: "completed", Reason: "resign",
		FinalPayload: []byte(`{"fen":"x"}`), CreatedAt: now, EndedAt: now,
	}
	require.NoError(t, g.CommitMatchResult(ctx, rec))
	require.NoError(t, g.CommitMatchResult(ctx, rec))

	require.NoError(t, g.CommitRatingUpdate(ctx, update(matchID, alice, 1216, 1, 0, now)))
	// a replay of the same match must not double count
	require.NoError(t, g.CommitRatingUpdate(ctx, update(matchID, alice, 1216, 1, 0, now)))

	r, ok, err := g.GetRating(ctx, alice, "chess")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 1216, r.Rating)
	assert.Equal(t, 1, r.Wins)

	var n int
	require.NoError(t, db.QueryRowContext(ctx,
		`SELECT count(*) FROM rating_history WHERE match_id = $1`, matchID).Scan(&n))
	assert.Equal(t, 1, n)

	board, err := g.Leaderboard(ctx, "chess", 1000)
	require.NoError(t, err)
	found := false
	for _, e := range board {
		if e.UserID == alice {
			found = true
			assert.Equal(t, 1216, e.Rating)
		}
	}
	assert.True(t, found)
}

func TestPostgresGatewayKeepsNewestStanding(t *testing.T) {
	db := testDB(t)
	g := NewPostgresGateway(db)
	ctx := context.Background()

	alice := "alice-" + uuid.NewString()
	now := time.Now().UTC().Truncate(time.Millisecond)

	require.NoError(t, g.CommitRatingUpdate(ctx, update(uuid.NewString(), alice, 1231, 2, 0, now)))
	require.NoError(t, g.CommitRatingUpdate(ctx, update(uuid.NewString(), alice, 1216, 1, 0, now)))

	r, ok, err := g.GetRating(ctx, alice, "chess")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 1231, r.Rating)
	assert.Equal(t, 2, r.Wins)
	assert.Equal(t, 2, r.Played)
}
