package router

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"Scoreboard/internal/apperr"
	"Scoreboard/internal/game/session"
	"Scoreboard/internal/websocket"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type call struct {
	op, user, match, arg string
}

type fakeMatches struct {
	mu    sync.Mutex
	calls []call
	err   error
}

func (f *fakeMatches) record(c call) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, c)
	return f.err
}

func (f *fakeMatches) Challenge(_ context.Context, challenger, opponent, gameType string) (session.MatchState, error) {
	return session.MatchState{}, f.record(call{"challenge", challenger, "", opponent + "/" + gameType})
}

func (f *fakeMatches) Join(_ context.Context, userID, matchID string) error {
	return f.record(call{"join", userID, matchID, ""})
}

func (f *fakeMatches) Move(_ context.Context, userID, matchID string, move []byte) error {
	return f.record(call{"move", userID, matchID, string(move)})
}

func (f *fakeMatches) Resign(_ context.Context, userID, matchID string) error {
	return f.record(call{"resign", userID, matchID, ""})
}

func (f *fakeMatches) Ack(userID string) {
	_ = f.record(call{"ack", userID, "", ""})
}

type fakePool struct {
	queued []string
}

func (p *fakePool) Enqueue(_ context.Context, userID, gameType string) error {
	p.queued = append(p.queued, userID+"/"+gameType)
	return nil
}

type fakeReplier struct {
	frames map[string][]websocket.Frame
}

func (r *fakeReplier) SendToPlayer(id string, f websocket.Frame) bool {
	r.frames[id] = append(r.frames[id], f)
	return true
}

func setup() (*Router, *fakeMatches, *fakePool, *fakeReplier) {
	m := &fakeMatches{}
	p := &fakePool{}
	rep := &fakeReplier{frames: make(map[string][]websocket.Frame)}
	return New(rep, m, p), m, p, rep
}

func errorCode(t *testing.T, rep *fakeReplier, user string) string {
	t.Helper()
	fs := rep.frames[user]
	require.NotEmpty(t, fs, "expected an error frame")
	f := fs[len(fs)-1]
	require.Equal(t, websocket.TypeError, f.Type)
	var p websocket.ErrorPayload
	require.NoError(t, json.Unmarshal(f.Payload, &p))
	return p.Code
}

func TestRouteMove(t *testing.T) {
	r, m, _, rep := setup()
	r.Handle("alice", []byte(`{"type":"move","matchId":"m1","payload":{"move":{"uci":"e2e4"}}}`))

	require.Len(t, m.calls, 1)
	assert.Equal(t, call{"move", "alice", "m1", `{"uci":"e2e4"}`}, m.calls[0])
	assert.Empty(t, rep.frames["alice"])
}

func TestRouteResign(t *testing.T) {
	r, m, _, _ := setup()
	r.Handle("bob", []byte(`{"type":"resign","matchId":"m1"}`))
	assert.Equal(t, []call{{"resign", "bob", "m1", ""}}, m.calls)
}

func TestRouteChallenge(t *testing.T) {
	r, m, _, _ := setup()
	r.Handle("alice", []byte(`{"type":"challenge","payload":{"opponentId":"bob","gameType":"chess"}}`))
	assert.Equal(t, []call{{"challenge", "alice", "", "bob/chess"}}, m.calls)
}

func TestRouteJoin(t *testing.T) {
	r, m, p, _ := setup()

	r.Handle("bob", []byte(`{"type":"join","matchId":"m1"}`))
	assert.Equal(t, []call{{"join", "bob", "m1", ""}}, m.calls)

	r.Handle("carol", []byte(`{"type":"join","payload":{"gameType":"foosball"}}`))
	assert.Equal(t, []string{"carol/foosball"}, p.queued)
}

func TestRouteHeartbeat(t *testing.T) {
	r, m, _, rep := setup()
	r.Handle("alice", []byte(`{"type":"heartbeat"}`))
	assert.Equal(t, []call{{"ack", "alice", "", ""}}, m.calls)
	assert.Empty(t, rep.frames["alice"])
}

func TestRejectsUnknownType(t *testing.T) {
	r, m, _, rep := setup()
	r.Handle("alice", []byte(`{"type":"chat","payload":"hi"}`))
	assert.Equal(t, apperr.CodeUnknownType, errorCode(t, rep, "alice"))
	assert.Empty(t, m.calls)
}

func TestRejectsMalformed(t *testing.T) {
	cases := map[string]string{
		"not json":          `{"type":`,
		"move no match":     `{"type":"move","payload":{"move":"e2e4"}}`,
		"move no payload":   `{"type":"move","matchId":"m1"}`,
		"challenge no opp":  `{"type":"challenge","payload":{"gameType":"chess"}}`,
		"challenge bad":     `{"type":"challenge","payload":[1,2]}`,
		"join no game type": `{"type":"join","payload":{}}`,
		"resign no match":   `{"type":"resign"}`,
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			r, m, p, rep := setup()
			r.Handle("alice", []byte(raw))
			assert.Equal(t, apperr.CodeMalformed, errorCode(t, rep, "alice"))
			assert.Empty(t, m.calls)
			assert.Empty(t, p.queued)
		})
	}
}

func TestRejectsForeignIdentity(t *testing.T) {
	r, m, _, rep := setup()
	r.Handle("alice", []byte(`{"type":"resign","matchId":"m1","userId":"bob"}`))
	assert.Equal(t, apperr.CodeIdentity, errorCode(t, rep, "alice"))
	assert.Empty(t, m.calls)
	assert.Empty(t, rep.frames["bob"])
}

func TestForwardsManagerErrors(t *testing.T) {
	r, m, _, rep := setup()
	m.err = apperr.Illegal(apperr.CodeWrongTurn, "not your turn")

	r.Handle("bob", []byte(`{"type":"move","matchId":"m1","payload":{"move":"e7e5"}}`))
	assert.Equal(t, apperr.CodeWrongTurn, errorCode(t, rep, "bob"))
	assert.Equal(t, "m1", rep.frames["bob"][0].MatchID)
	assert.True(t, rep.frames["bob"][0].Critical)
}
