package manager

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"Scoreboard/internal/apperr"
	"Scoreboard/internal/game/rules"
	"Scoreboard/internal/game/session"
	"Scoreboard/internal/rating"
	"Scoreboard/internal/utils"
	"Scoreboard/internal/websocket"

	"github.com/google/uuid"
)

// ResultSink receives every match that reaches a terminal status.
type ResultSink interface {
	Submit(ctx context.Context, res rating.MatchResult) error
}

// GameManager owns the set of live matches.
type GameManager struct {
	mu       sync.RWMutex
	sessions map[string]*session.Session    // matchID -> session
	byPlayer map[string]map[string]struct{} // userID -> live matchIDs
	pairs    map[string]string              // pair key -> matchID

	hub     websocket.HubInterface
	rules   *rules.Registry
	results ResultSink
	opts    session.Options
}

type Options struct {
	PairingGrace    time.Duration
	DisconnectGrace time.Duration
}

func NewGameManager(hub websocket.HubInterface, reg *rules.Registry, results ResultSink, opts Options) *GameManager {
	return &GameManager{
		sessions: make(map[string]*session.Session),
		byPlayer: make(map[string]map[string]struct{}),
		pairs:    make(map[string]string),
		hub:      hub,
		rules:    reg,
		results:  results,
		opts: session.Options{
			PairingGrace:    opts.PairingGrace,
			DisconnectGrace: opts.DisconnectGrace,
		},
	}
}

func pairKey(a, b, gameType string) string {
	if b < a {
		a, b = b, a
	}
	return gameType + "|" + a + "|" + b
}

// Challenge opens a pending match from challenger to opponent. The
// challenger is ready at once; the opponent joins with the match id.
func (m *GameManager) Challenge(ctx context.Context, challenger, opponent, gameType string) (session.MatchState, error) {
	st, s, err := m.create(challenger, opponent, gameType)
	if err != nil {
		return st, err
	}
	if err := s.Ready(ctx, challenger); err != nil {
		return st, err
	}
	return s.Snapshot(), nil
}

// CreatePaired opens a match for two players taken from the pairing pool;
// both are ready.
func (m *GameManager) CreatePaired(ctx context.Context, a, b, gameType string) (session.MatchState, error) {
	st, s, err := m.create(a, b, gameType)
	if err != nil {
		return st, err
	}
	for _, u := range []string{a, b} {
		if err := s.Ready(ctx, u); err != nil {
			return st, err
		}
	}
	return s.Snapshot(), nil
}

func (m *GameManager) create(a, b, gameType string) (session.MatchState, *session.Session, error) {
	if a == "" || b == "" || a == b {
		return session.MatchState{}, nil, apperr.Protocol(apperr.CodeMalformed, "a match needs two distinct players")
	}
	rs, err := m.rules.Get(gameType)
	if err != nil {
		return session.MatchState{}, nil, apperr.Protocol(apperr.CodeUnknownGame, err.Error())
	}

	m.mu.Lock()
	key := pairKey(a, b, gameType)
	if id, ok := m.pairs[key]; ok {
		m.mu.Unlock()
		return session.MatchState{}, nil, apperr.Illegal(apperr.CodeBusy,
			fmt.Sprintf("%s and %s already have a live %s match %s", a, b, gameType, id))
	}

	id := uuid.NewString()
	opts := m.opts
	opts.OnTerminal = m.finish
	s := session.New(id, gameType, a, b, rs, m.hub, opts)
	m.sessions[id] = s
	m.pairs[key] = id
	for _, u := range []string{a, b} {
		if m.byPlayer[u] == nil {
			m.byPlayer[u] = make(map[string]struct{})
		}
		m.byPlayer[u][id] = struct{}{}
	}
	m.mu.Unlock()

	s.Start()
	utils.Log.Info("match created", "match", id, "a", a, "b", b, "game", gameType)
	return s.Snapshot(), s, nil
}

// finish runs on the session goroutine: the result is queued for rating
// before the match leaves the live set.
func (m *GameManager) finish(st session.MatchState) {
	res := rating.MatchResult{
		MatchID:      st.MatchID,
		GameType:     st.GameType,
		PlayerA:      st.ParticipantA,
		PlayerB:      st.ParticipantB,
		WinnerID:     st.Winner(),
		Status:       string(st.Status),
		Reason:       st.Reason,
		FinalPayload: st.Board,
		CreatedAt:    st.CreatedAt,
		EndedAt:      st.LastActivityAt,
	}
	if st.Cause != nil {
		utils.Log.Warn("match ended by timeout", "match", st.MatchID, "err", st.Cause)
	}
	if m.results != nil {
		err := m.results.Submit(context.Background(), res)
		switch {
		case err == nil:
		case apperr.Is(err, apperr.KindPersistenceFailure):
			// queued in memory, just not durable across a restart
			utils.Log.Warn("match result not durable", "match", st.MatchID, "err", err)
		default:
			utils.Log.Error("match result not queued", "match", st.MatchID, "err", err)
		}
	}

	m.mu.Lock()
	delete(m.sessions, st.MatchID)
	delete(m.pairs, pairKey(st.ParticipantA, st.ParticipantB, st.GameType))
	for _, u := range st.Participants() {
		delete(m.byPlayer[u], st.MatchID)
		if len(m.byPlayer[u]) == 0 {
			delete(m.byPlayer, u)
		}
	}
	m.mu.Unlock()
}

func (m *GameManager) session(matchID string) (*session.Session, error) {
	m.mu.RLock()
	s, ok := m.sessions[matchID]
	m.mu.RUnlock()
	if !ok {
		return nil, apperr.Illegal(apperr.CodeMatchNotFound, fmt.Sprintf("no live match %q", matchID))
	}
	return s, nil
}

func closed(err error, matchID string) error {
	if errors.Is(err, session.ErrMatchClosed) {
		return apperr.Illegal(apperr.CodeMatchNotFound, fmt.Sprintf("match %q has ended", matchID))
	}
	return err
}

// Join marks userID ready, or asks for a full resync once the match runs.
func (m *GameManager) Join(ctx context.Context, userID, matchID string) error {
	s, err := m.session(matchID)
	if err != nil {
		return err
	}
	return closed(s.Ready(ctx, userID), matchID)
}

func (m *GameManager) Move(ctx context.Context, userID, matchID string, move []byte) error {
	s, err := m.session(matchID)
	if err != nil {
		return err
	}
	return closed(s.Move(ctx, userID, move), matchID)
}

func (m *GameManager) Resign(ctx context.Context, userID, matchID string) error {
	s, err := m.session(matchID)
	if err != nil {
		return err
	}
	return closed(s.Resign(ctx, userID), matchID)
}

func (m *GameManager) Cancel(ctx context.Context, userID, matchID string) error {
	s, err := m.session(matchID)
	if err != nil {
		return err
	}
	return closed(s.Cancel(ctx, userID), matchID)
}

func (m *GameManager) live(userID string) []*session.Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*session.Session, 0, len(m.byPlayer[userID]))
	for id := range m.byPlayer[userID] {
		if s, ok := m.sessions[id]; ok {
			out = append(out, s)
		}
	}
	return out
}

// Connected, Disconnected and Ack fan connection events out to every live
// match of userID. They are wired to the hub hooks.
func (m *GameManager) Connected(userID string) {
	for _, s := range m.live(userID) {
		s.Connected(userID)
	}
}

func (m *GameManager) Disconnected(userID string) {
	for _, s := range m.live(userID) {
		s.Disconnected(userID)
	}
}

func (m *GameManager) Ack(userID string) {
	for _, s := range m.live(userID) {
		s.Ack(userID)
	}
}

func (m *GameManager) Snapshot(matchID string) (session.MatchState, bool) {
	s, err := m.session(matchID)
	if err != nil {
		return session.MatchState{}, false
	}
	return s.Snapshot(), true
}

// MatchesOf lists the live match ids of userID.
func (m *GameManager) MatchesOf(userID string) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.byPlayer[userID]))
	for id := range m.byPlayer[userID] {
		out = append(out, id)
	}
	return out
}

func (m *GameManager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Shutdown stops every live session without ending the matches.
func (m *GameManager) Shutdown() {
	m.mu.RLock()
	all := make([]*session.Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		all = append(all, s)
	}
	m.mu.RUnlock()

	for _, s := range all {
		s.Stop()
	}
	utils.Log.Info("match sessions stopped", "count", len(all))
}
