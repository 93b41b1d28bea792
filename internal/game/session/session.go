// Package session runs one match. Every match is owned by a single goroutine
// that applies commands from its inbox in arrival order, so a match never
// needs a lock and two matches never share one.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"Scoreboard/internal/game/rules"
	"Scoreboard/internal/utils"
	"Scoreboard/internal/websocket"
)

var ErrMatchClosed = errors.New("match closed")

type Options struct {
	PairingGrace    time.Duration
	DisconnectGrace time.Duration
	// OnTerminal runs on the session goroutine once the match reaches a
	// terminal status, after the terminal state has been broadcast.
	OnTerminal func(MatchState)
}

type command struct {
	ev    event
	reply chan error
}

type Session struct {
	id    string
	rules rules.Ruleset
	hub   websocket.HubInterface
	opts  Options

	inbox chan command
	done  chan struct{}
	stop  chan struct{}

	// owned by the run goroutine
	state      MatchState
	ready      [3]bool
	cancelReq  [3]bool
	graceGen   [3]uint64
	graceTimer [3]*time.Timer
	pairGen    uint64
	pairTimer  *time.Timer
	gen        uint64

	pubMu     sync.RWMutex
	published MatchState

	stopOnce sync.Once
}

// New builds a pending match. Call Start to run it.
func New(matchID, gameType, a, b string, rs rules.Ruleset, hub websocket.HubInterface, opts Options) *Session {
	now := time.Now()
	s := &Session{
		id:    matchID,
		rules: rs,
		hub:   hub,
		opts:  opts,
		inbox: make(chan command, 64),
		done:  make(chan struct{}),
		stop:  make(chan struct{}),
		state: MatchState{
			MatchID:        matchID,
			GameType:       gameType,
			ParticipantA:   a,
			ParticipantB:   b,
			Status:         StatusPending,
			CreatedAt:      now,
			LastActivityAt: now,
		},
	}
	s.published = s.state.clone()
	return s
}

func (s *Session) ID() string { return s.id }

// Start launches the session goroutine and the pairing grace timer.
func (s *Session) Start() {
	s.armPairing()
	go s.run()
}

// Done is closed when the session goroutine has exited.
func (s *Session) Done() <-chan struct{} { return s.done }

// Snapshot returns the state as of the last applied command.
func (s *Session) Snapshot() MatchState {
	s.pubMu.RLock()
	defer s.pubMu.RUnlock()
	return s.published.clone()
}

// Stop ends the session without a terminal transition. Used on shutdown.
func (s *Session) Stop() {
	s.stopOnce.Do(func() { close(s.stop) })
	<-s.done
}

func (s *Session) Ready(ctx context.Context, userID string) error {
	return s.submit(ctx, event{kind: evReady, user: userID})
}

func (s *Session) Move(ctx context.Context, userID string, move json.RawMessage) error {
	return s.submit(ctx, event{kind: evMove, user: userID, move: move})
}

func (s *Session) Resign(ctx context.Context, userID string) error {
	return s.submit(ctx, event{kind: evResign, user: userID})
}

func (s *Session) Cancel(ctx context.Context, userID string) error {
	return s.submit(ctx, event{kind: evCancel, user: userID})
}

// Connected, Disconnected and Ack are connection notifications; they do not
// wait for the session.
func (s *Session) Connected(userID string) { s.post(event{kind: evConnect, user: userID}) }

func (s *Session) Disconnected(userID string) { s.post(event{kind: evDisconnect, user: userID}) }

func (s *Session) Ack(userID string) { s.post(event{kind: evAck, user: userID}) }

func (s *Session) submit(ctx context.Context, ev event) error {
	cmd := command{ev: ev, reply: make(chan error, 1)}
	select {
	case s.inbox <- cmd:
	case <-s.done:
		return ErrMatchClosed
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-cmd.reply:
		return err
	case <-s.done:
		return ErrMatchClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Session) post(ev event) {
	select {
	case s.inbox <- command{ev: ev}:
	case <-s.done:
	}
}

func (s *Session) run() {
	defer close(s.done)
	defer s.stopTimers()

	for {
		select {
		case <-s.stop:
			return
		case cmd := <-s.inbox:
			err := s.apply(cmd.ev)
			if err != nil && cmd.reply == nil {
				utils.Log.Debug("event rejected", "match", s.id, "event", cmd.ev.kind, "err", err)
			}
			if cmd.reply != nil {
				cmd.reply <- err
			}
			if s.state.Status.Terminal() {
				s.stopTimers()
				utils.Log.Info("match ended", "match", s.id, "status", s.state.Status,
					"reason", s.state.Reason, "winner", s.state.Winner())
				if s.opts.OnTerminal != nil {
					s.opts.OnTerminal(s.state.clone())
				}
				return
			}
		}
	}
}

func (s *Session) publish() {
	s.pubMu.Lock()
	s.published = s.state.clone()
	s.pubMu.Unlock()
}

// broadcast pushes the current state to both participants. Terminal states
// are critical frames.
func (s *Session) broadcast() {
	f := websocket.NewFrame(websocket.TypeState, s.id, "", s.state)
	f.Critical = s.state.Status.Terminal()
	s.hub.BroadcastToPlayers(s.state.Participants(), f)
}

func (s *Session) sync(userID, reason string) {
	raw, _ := json.Marshal(s.state)
	s.hub.SendToPlayer(userID, websocket.NewFrame(websocket.TypeStateSync, s.id, userID,
		websocket.SyncPayload{Reason: reason, State: raw}))
}

func (s *Session) armPairing() {
	if s.opts.PairingGrace <= 0 {
		return
	}
	s.gen++
	g := s.gen
	s.pairGen = g
	s.pairTimer = time.AfterFunc(s.opts.PairingGrace, func() {
		s.post(event{kind: evPairingTimeout, gen: g})
	})
}

func (s *Session) cancelPairing() {
	s.pairGen = 0
	if s.pairTimer != nil {
		s.pairTimer.Stop()
		s.pairTimer = nil
	}
}

func (s *Session) armGrace(side rules.Side) {
	if s.graceGen[side] != 0 {
		return
	}
	s.gen++
	g := s.gen
	s.graceGen[side] = g
	d := s.opts.DisconnectGrace
	s.graceTimer[side] = time.AfterFunc(d, func() {
		s.post(event{kind: evGraceTimeout, side: side, gen: g})
	})
}

// cancelGrace reports whether a grace timer was pending for side.
func (s *Session) cancelGrace(side rules.Side) bool {
	if s.graceGen[side] == 0 {
		return false
	}
	s.graceGen[side] = 0
	if t := s.graceTimer[side]; t != nil {
		t.Stop()
		s.graceTimer[side] = nil
	}
	return true
}

func (s *Session) stopTimers() {
	s.cancelPairing()
	s.cancelGrace(rules.SideA)
	s.cancelGrace(rules.SideB)
}

func (s *Session) sideOf(userID string) rules.Side {
	switch userID {
	case s.state.ParticipantA:
		return rules.SideA
	case s.state.ParticipantB:
		return rules.SideB
	}
	return rules.SideNone
}

func (s *Session) userOf(side rules.Side) string {
	switch side {
	case rules.SideA:
		return s.state.ParticipantA
	case rules.SideB:
		return s.state.ParticipantB
	}
	return ""
}
