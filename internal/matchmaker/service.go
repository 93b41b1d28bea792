package matchmaker

import (
	"context"
	"fmt"
	"time"

	"Scoreboard/internal/apperr"
	"Scoreboard/internal/utils"
)

// PairFunc opens a match for two pooled players and returns its id.
type PairFunc func(ctx context.Context, a, b, gameType string) (string, error)

type Service struct {
	repo      Repo
	playerTTL int // seconds, stale pool entries expire
	onPaired  PairFunc
	// Live reports whether a match is still running. Nil treats every
	// recorded pairing as finished.
	Live func(matchID string) bool
}

func NewService(repo Repo, playerTTL int, onPaired PairFunc) *Service {
	return &Service{repo: repo, playerTTL: playerTTL, onPaired: onPaired}
}

// Join enqueues the caller and pairs at once when a second player waits.
// A nil pairing with queued=true means the caller is waiting.
func (s *Service) Join(ctx context.Context, req JoinRequest) (*Pairing, bool, error) {
	if req.UserID == "" || req.GameType == "" {
		return nil, false, apperr.Protocol(apperr.CodeMalformed, "join needs a player and a game type")
	}

	if id, _ := s.repo.PlayerMatch(ctx, req.GameType, req.UserID); id != "" && s.Live != nil && s.Live(id) {
		return nil, false, apperr.Illegal(apperr.CodeBusy,
			fmt.Sprintf("player %s already in %s match %s", req.UserID, req.GameType, id))
	}

	if err := s.repo.Enqueue(ctx, req.GameType, req.UserID, s.playerTTL); err != nil {
		return nil, false, err
	}
	cnt, err := s.repo.Count(ctx, req.GameType)
	if err != nil {
		return nil, false, err
	}
	if cnt < 2 {
		return nil, true, nil
	}
	players, err := s.repo.PopPair(ctx, req.GameType)
	if err != nil {
		return nil, false, err
	}
	if len(players) < 2 {
		// lost the race to a concurrent join
		return nil, true, nil
	}

	p := &Pairing{
		GameType:  req.GameType,
		Players:   players,
		CreatedAt: time.Now(),
	}
	if s.onPaired != nil {
		id, err := s.onPaired(ctx, players[0], players[1], req.GameType)
		if err != nil {
			s.requeue(ctx, req.GameType, players)
			return nil, false, err
		}
		p.MatchID = id
	}

	if err := s.repo.SavePairing(ctx, p, s.playerTTL); err != nil {
		utils.Log.Warn("pairing not saved", "match", p.MatchID, "err", err)
	}
	utils.Log.Info("players paired", "match", p.MatchID, "game", p.GameType, "players", p.Players)

	if !contains(players, req.UserID) {
		// the caller stays queued; two earlier players were paired
		return p, true, nil
	}
	return p, false, nil
}

func (s *Service) requeue(ctx context.Context, gameType string, players []string) {
	for _, u := range players {
		if err := s.repo.Enqueue(ctx, gameType, u, s.playerTTL); err != nil {
			utils.Log.Error("requeue failed", "user", u, "game", gameType, "err", err)
		}
	}
}

// Enqueue is Join for callers that only need the error, such as the frame
// router; pairing is announced to both players by the match itself.
func (s *Service) Enqueue(ctx context.Context, userID, gameType string) error {
	_, _, err := s.Join(ctx, JoinRequest{UserID: userID, GameType: gameType})
	return err
}

func (s *Service) Cancel(ctx context.Context, userID string) error {
	return s.repo.Remove(ctx, userID)
}

func contains(list []string, v string) bool {
	for _, x := range list {
		if x == v {
			return true
		}
	}
	return false
}
