// Package rules holds the per-game-type capabilities the match sessions use
// to validate moves and detect the end of a game. The board itself is an
// opaque JSON document owned by the ruleset that produced it.
package rules

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
)

// Side identifies a participant slot of a match. SideNone means "either
// participant" when returned as the next turn and "draw" when returned as a
// winner.
type Side int

const (
	SideNone Side = iota
	SideA
	SideB
)

func (s Side) Other() Side {
	switch s {
	case SideA:
		return SideB
	case SideB:
		return SideA
	}
	return SideNone
}

func (s Side) String() string {
	switch s {
	case SideA:
		return "A"
	case SideB:
		return "B"
	}
	return "none"
}

var (
	ErrIllegalMove = errors.New("illegal move")
	ErrUnknownGame = errors.New("unknown game type")
)

// Ruleset is the capability injected into a match session for one game type.
type Ruleset interface {
	// InitialBoard returns the board a fresh match starts from.
	InitialBoard() json.RawMessage
	// TurnBased reports whether moves must come from the turn holder.
	TurnBased() bool
	// ValidateMove applies move for mover and returns the resulting board,
	// or an error wrapping ErrIllegalMove.
	ValidateMove(board json.RawMessage, mover Side, move json.RawMessage) (json.RawMessage, error)
	// NextTurn returns the side to move on board, SideNone for score games.
	NextTurn(board json.RawMessage) Side
	IsGameOver(board json.RawMessage) bool
	// DeclareWinner is only meaningful once IsGameOver is true.
	DeclareWinner(board json.RawMessage) Side
}

// Registry maps game type ids to their ruleset.
type Registry struct {
	mu    sync.RWMutex
	games map[string]Ruleset
}

func NewRegistry() *Registry {
	return &Registry{games: make(map[string]Ruleset)}
}

// Default returns a registry with every built-in game type.
func Default() *Registry {
	r := NewRegistry()
	r.Register("chess", Chess{})
	r.Register("foosball", Foosball{Target: DefaultFoosballTarget})
	return r
}

func (r *Registry) Register(gameType string, rs Ruleset) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.games[gameType] = rs
}

func (r *Registry) Get(gameType string) (Ruleset, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rs, ok := r.games[gameType]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownGame, gameType)
	}
	return rs, nil
}

func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.games))
	for name := range r.games {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
