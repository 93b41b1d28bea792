// Package router validates inbound frames and dispatches them. It keeps no
// state of its own.
package router

import (
	"context"
	"encoding/json"
	"time"

	"Scoreboard/internal/apperr"
	"Scoreboard/internal/game/session"
	"Scoreboard/internal/utils"
	"Scoreboard/internal/websocket"

	"github.com/go-playground/validator/v10"
)

// Matches is the part of the match manager the router drives.
type Matches interface {
	Challenge(ctx context.Context, challenger, opponent, gameType string) (session.MatchState, error)
	Join(ctx context.Context, userID, matchID string) error
	Move(ctx context.Context, userID, matchID string, move []byte) error
	Resign(ctx context.Context, userID, matchID string) error
	Ack(userID string)
}

// Pool enqueues a player for automatic pairing.
type Pool interface {
	Enqueue(ctx context.Context, userID, gameType string) error
}

type Replier interface {
	SendToPlayer(userID string, msg websocket.Frame) bool
}

type challengePayload struct {
	OpponentID string `json:"opponentId" validate:"required"`
	GameType   string `json:"gameType" validate:"required,alphanum"`
}

type poolPayload struct {
	GameType string `json:"gameType" validate:"required,alphanum"`
}

type movePayload struct {
	Move json.RawMessage `json:"move" validate:"required"`
}

type addressed struct {
	MatchID string `validate:"required,max=64"`
}

type Router struct {
	hub      Replier
	matches  Matches
	pool     Pool
	validate *validator.Validate
	timeout  time.Duration
}

func New(hub Replier, matches Matches, pool Pool) *Router {
	return &Router{
		hub:      hub,
		matches:  matches,
		pool:     pool,
		validate: validator.New(),
		timeout:  5 * time.Second,
	}
}

// Handle processes one raw frame from userID. Failures are answered with an
// error frame to the sender only.
func (r *Router) Handle(userID string, raw []byte) {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	var f websocket.Frame
	if err := json.Unmarshal(raw, &f); err != nil {
		r.reply(userID, "", apperr.Protocol(apperr.CodeMalformed, "frame is not valid JSON"))
		return
	}
	if err := r.dispatch(ctx, userID, f); err != nil {
		r.reply(userID, f.MatchID, err)
	}
}

func (r *Router) dispatch(ctx context.Context, userID string, f websocket.Frame) error {
	if f.UserID != "" && f.UserID != userID {
		return apperr.Protocol(apperr.CodeIdentity, "userId does not match the connection")
	}

	switch f.Type {
	case websocket.TypeHeartbeat:
		r.matches.Ack(userID)
		return nil

	case websocket.TypeChallenge:
		var p challengePayload
		if err := r.decode(f.Payload, &p); err != nil {
			return err
		}
		_, err := r.matches.Challenge(ctx, userID, p.OpponentID, p.GameType)
		return err

	case websocket.TypeJoin:
		if f.MatchID != "" {
			if err := r.addressed(f); err != nil {
				return err
			}
			return r.matches.Join(ctx, userID, f.MatchID)
		}
		var p poolPayload
		if err := r.decode(f.Payload, &p); err != nil {
			return err
		}
		return r.pool.Enqueue(ctx, userID, p.GameType)

	case websocket.TypeMove:
		if err := r.addressed(f); err != nil {
			return err
		}
		var p movePayload
		if err := r.decode(f.Payload, &p); err != nil {
			return err
		}
		return r.matches.Move(ctx, userID, f.MatchID, p.Move)

	case websocket.TypeResign:
		if err := r.addressed(f); err != nil {
			return err
		}
		return r.matches.Resign(ctx, userID, f.MatchID)
	}

	return apperr.Protocol(apperr.CodeUnknownType, "unknown frame type "+string(f.Type))
}

func (r *Router) addressed(f websocket.Frame) error {
	if err := r.validate.Struct(addressed{MatchID: f.MatchID}); err != nil {
		return apperr.Protocol(apperr.CodeMalformed, string(f.Type)+" needs a matchId")
	}
	return nil
}

func (r *Router) decode(raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		raw = json.RawMessage(`{}`)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return apperr.Protocol(apperr.CodeMalformed, "payload: "+err.Error())
	}
	if err := r.validate.Struct(v); err != nil {
		return apperr.Protocol(apperr.CodeMalformed, "payload: "+err.Error())
	}
	return nil
}

func (r *Router) reply(userID, matchID string, err error) {
	code, msg := apperr.CodeOf(err)
	if code == apperr.CodeInternal {
		utils.Log.Error("frame failed", "user", userID, "match", matchID, "err", err)
	} else {
		utils.Log.Debug("frame rejected", "user", userID, "match", matchID, "code", code, "msg", msg)
	}
	r.hub.SendToPlayer(userID, websocket.ErrorFrame(matchID, userID, code, msg))
}
