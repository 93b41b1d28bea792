package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"Scoreboard/internal/apperr"
	"Scoreboard/internal/game/rules"
	"Scoreboard/internal/utils"
	"Scoreboard/internal/websocket"
)

type eventKind string

const (
	evReady          eventKind = "ready"
	evMove           eventKind = "move"
	evResign         eventKind = "resign"
	evCancel         eventKind = "cancel"
	evConnect        eventKind = "connect"
	evDisconnect     eventKind = "disconnect"
	evAck            eventKind = "ack"
	evPairingTimeout eventKind = "pairing_timeout"
	evGraceTimeout   eventKind = "grace_timeout"
)

type event struct {
	kind eventKind
	user string
	move json.RawMessage
	side rules.Side
	gen  uint64
}

type handler func(*Session, event) error

// transitions lists every (status, event) pair a match accepts. Anything
// missing, including every event on a terminal match, is an illegal
// transition.
var transitions = map[Status]map[eventKind]handler{
	StatusPending: {
		evReady:          (*Session).onPendingReady,
		evConnect:        (*Session).onPendingConnect,
		evDisconnect:     ignore,
		evAck:            ignore,
		evCancel:         (*Session).onWithdraw,
		evPairingTimeout: (*Session).onPairingTimeout,
	},
	StatusActive: {
		evReady:          (*Session).onResyncRequest,
		evMove:           (*Session).onMove,
		evResign:         (*Session).onResign,
		evCancel:         (*Session).onMutualCancel,
		evConnect:        (*Session).onReconnect,
		evDisconnect:     (*Session).onDisconnect,
		evAck:            (*Session).onAck,
		evPairingTimeout: ignore,
		evGraceTimeout:   (*Session).onGraceTimeout,
	},
	StatusCompleted: {},
	StatusCancelled: {},
}

func ignore(*Session, event) error { return nil }

func (s *Session) apply(ev event) error {
	if ev.user != "" && s.sideOf(ev.user) == rules.SideNone {
		return apperr.Illegal(apperr.CodeNotParticipant, "not a participant of this match")
	}
	h, ok := transitions[s.state.Status][ev.kind]
	if !ok {
		return apperr.Illegal(apperr.CodeWrongStatus,
			fmt.Sprintf("%s not allowed while match is %s", ev.kind, s.state.Status))
	}
	return h(s, ev)
}

// touch records a mutation.
func (s *Session) touch() {
	s.state.Seq++
	s.state.LastActivityAt = time.Now()
	s.publish()
}

func (s *Session) onPendingReady(ev event) error {
	s.ready[s.sideOf(ev.user)] = true
	s.touch()
	if s.tryActivate() {
		return nil
	}
	s.broadcast()
	return nil
}

func (s *Session) onPendingConnect(ev event) error {
	if s.tryActivate() {
		return nil
	}
	s.sync(ev.user, websocket.SyncReasonReconnect)
	return nil
}

func (s *Session) tryActivate() bool {
	a, b := s.state.ParticipantA, s.state.ParticipantB
	if !s.ready[rules.SideA] || !s.ready[rules.SideB] || !s.hub.Online(a) || !s.hub.Online(b) {
		return false
	}
	s.cancelPairing()
	s.state.Status = StatusActive
	s.state.Board = s.rules.InitialBoard()
	s.setTurn()
	s.touch()
	utils.Log.Info("match active", "match", s.id, "a", a, "b", b, "game", s.state.GameType)
	s.broadcast()
	return true
}

func (s *Session) setTurn() {
	if !s.rules.TurnBased() {
		s.state.TurnHolder = ""
		return
	}
	s.state.TurnHolder = s.userOf(s.rules.NextTurn(s.state.Board))
}

func (s *Session) onWithdraw(ev event) error {
	s.end(StatusCancelled, ReasonCancelled, rules.SideNone)
	return nil
}

func (s *Session) onPairingTimeout(ev event) error {
	if ev.gen == 0 || ev.gen != s.pairGen {
		return nil
	}
	s.pairTimer = nil
	s.state.Cause = apperr.PairingTimeout(s.id)
	s.end(StatusCancelled, ReasonPairingTimeout, rules.SideNone)
	return nil
}

func (s *Session) onMove(ev event) error {
	side := s.sideOf(ev.user)
	if s.rules.TurnBased() && s.state.TurnHolder != ev.user {
		return apperr.Illegal(apperr.CodeWrongTurn, "not your turn")
	}
	board, err := s.rules.ValidateMove(s.state.Board, side, ev.move)
	if err != nil {
		if errors.Is(err, rules.ErrIllegalMove) {
			return apperr.Illegal(apperr.CodeInvalidMove, err.Error())
		}
		return &apperr.Error{Kind: apperr.KindIllegalTransition, Code: apperr.CodeInvalidMove, Message: "move rejected", Err: err}
	}
	s.state.Board = board
	s.state.Moves++
	s.state.LastMove = append(json.RawMessage(nil), ev.move...)
	s.setTurn()

	if s.rules.IsGameOver(board) {
		s.end(StatusCompleted, ReasonGameOver, s.rules.DeclareWinner(board))
		return nil
	}
	s.touch()
	s.broadcast()
	return nil
}

func (s *Session) onResign(ev event) error {
	s.end(StatusCompleted, ReasonResign, s.sideOf(ev.user).Other())
	return nil
}

func (s *Session) onMutualCancel(ev event) error {
	if s.state.Moves > 0 {
		return apperr.Illegal(apperr.CodeWrongStatus, "match already under way")
	}
	side := s.sideOf(ev.user)
	s.cancelReq[side] = true
	if s.cancelReq[side.Other()] {
		s.end(StatusCancelled, ReasonCancelled, rules.SideNone)
		return nil
	}
	s.touch()
	s.broadcast()
	return nil
}

func (s *Session) onDisconnect(ev event) error {
	side := s.sideOf(ev.user)
	if s.hub.Online(ev.user) {
		// already replaced by a fresh connection
		return nil
	}
	s.armGrace(side)
	utils.Log.Info("participant away", "match", s.id, "user", ev.user, "grace", s.opts.DisconnectGrace)
	return nil
}

func (s *Session) onReconnect(ev event) error {
	if s.cancelGrace(s.sideOf(ev.user)) {
		utils.Log.Info("participant back", "match", s.id, "user", ev.user)
	}
	s.sync(ev.user, websocket.SyncReasonReconnect)
	return nil
}

func (s *Session) onAck(ev event) error {
	s.cancelGrace(s.sideOf(ev.user))
	return nil
}

func (s *Session) onResyncRequest(ev event) error {
	s.sync(ev.user, websocket.SyncReasonRequested)
	return nil
}

func (s *Session) onGraceTimeout(ev event) error {
	if ev.gen == 0 || ev.gen != s.graceGen[ev.side] {
		return nil
	}
	s.graceGen[ev.side] = 0
	s.graceTimer[ev.side] = nil
	s.state.Cause = apperr.ForfeitTimeout(s.id, s.userOf(ev.side))
	utils.Log.Warn("forfeit", "match", s.id, "user", s.userOf(ev.side))
	s.end(StatusCompleted, ReasonForfeit, ev.side.Other())
	return nil
}

// end moves the match to a terminal status and broadcasts it. winner is
// SideNone for draws and cancellations.
func (s *Session) end(status Status, reason string, winner rules.Side) {
	s.state.Status = status
	s.state.Reason = reason
	s.state.TurnHolder = ""
	if w := s.userOf(winner); w != "" && status == StatusCompleted {
		s.state.WinnerID = &w
	}
	s.touch()
	s.broadcast()
}
