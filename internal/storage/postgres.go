package storage

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"
)

var DB *sql.DB

func InitPostgres(dsn string) error {
	var err error
	DB, err = sql.Open("postgres", dsn)
	if err != nil {
		return err
	}
	return DB.Ping()
}

type PostgresGateway struct {
	db *sql.DB
}

func NewPostgresGateway(db *sql.DB) *PostgresGateway {
	return &PostgresGateway{db: db}
}

func (g *PostgresGateway) CommitMatchResult(ctx context.Context, rec MatchRecord) error {
	// lib/pq sends []byte as bytea; jsonb needs text
	var payload sql.NullString
	if len(rec.FinalPayload) > 0 {
		payload = sql.NullString{String: string(rec.FinalPayload), Valid: true}
	}
	_, err := g.db.ExecContext(ctx, `
		INSERT INTO matches (match_id, game_type, participant_a, participant_b, winner_id,
		                     status, reason, final_payload, created_at, ended_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (match_id) DO NOTHING`,
		rec.MatchID, rec.GameType, rec.ParticipantA, rec.ParticipantB, nullString(rec.WinnerID),
		rec.Status, rec.Reason, payload, rec.CreatedAt, rec.EndedAt,
	)
	if err != nil {
		return fmt.Errorf("insert match %s: %w", rec.MatchID, err)
	}
	return nil
}

func (g *PostgresGateway) CommitRatingUpdate(ctx context.Context, u RatingUpdate) error {
	tx, err := g.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	r := u.Record
	res, err := tx.ExecContext(ctx, `
		INSERT INTO rating_history (match_id, user_id, game_type, old_rating, new_rating, outcome, applied_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (match_id, user_id, game_type) DO NOTHING`,
		u.MatchID, r.UserID, r.GameType, u.OldRating, r.Rating, string(u.Outcome), r.LastPlayedAt,
	)
	if err != nil {
		return fmt.Errorf("insert rating history: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		// already applied
		return tx.Commit()
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO user_elos (user_id, game_type, rating, wins, losses, played, last_played)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (user_id, game_type) DO UPDATE
		SET rating = EXCLUDED.rating,
		    wins = EXCLUDED.wins,
		    losses = EXCLUDED.losses,
		    played = EXCLUDED.played,
		    last_played = EXCLUDED.last_played
		WHERE user_elos.played < EXCLUDED.played`,
		r.UserID, r.GameType, r.Rating, r.Wins, r.Losses, r.Played, r.LastPlayedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert user_elos: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit rating %s/%s: %w", r.UserID, r.GameType, err)
	}
	return nil
}

func (g *PostgresGateway) GetRating(ctx context.Context, userID, gameType string) (RatingRecord, bool, error) {
	rec := RatingRecord{UserID: userID, GameType: gameType}
	var last sql.NullTime
	err := g.db.QueryRowContext(ctx, `
		SELECT rating, wins, losses, played, last_played
		FROM user_elos WHERE user_id = $1 AND game_type = $2`,
		userID, gameType,
	).Scan(&rec.Rating, &rec.Wins, &rec.Losses, &rec.Played, &last)
	if err == sql.ErrNoRows {
		return rec, false, nil
	}
	if err != nil {
		return rec, false, fmt.Errorf("get rating %s/%s: %w", userID, gameType, err)
	}
	if last.Valid {
		rec.LastPlayedAt = last.Time
	}
	return rec, true, nil
}

func (g *PostgresGateway) Leaderboard(ctx context.Context, gameType string, limit int) ([]LeaderboardEntry, error) {
	rows, err := g.db.QueryContext(ctx, `
		SELECT user_id, rating, wins, losses
		FROM user_elos
		WHERE game_type = $1
		ORDER BY rating DESC, wins DESC, user_id
		LIMIT $2`,
		gameType, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("leaderboard %s: %w", gameType, err)
	}
	defer rows.Close()

	out := make([]LeaderboardEntry, 0, limit)
	for rows.Next() {
		e := LeaderboardEntry{Rank: len(out) + 1}
		if err := rows.Scan(&e.UserID, &e.Rating, &e.Wins, &e.Losses); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
