package rules

import (
	"encoding/json"
	"fmt"
)

const DefaultFoosballTarget = 10

// FoosballBoard is the shared score of a foosball match.
type FoosballBoard struct {
	ScoreA int `json:"scoreA"`
	ScoreB int `json:"scoreB"`
	Target int `json:"target"`
}

// foosballMove records one goal. Scorer defaults to the submitting side;
// table sensors report goals for either side.
type foosballMove struct {
	Scorer string `json:"scorer"`
	Undo   bool   `json:"undo"`
}

// Foosball is a non-turn-based score game: first side to Target goals wins.
type Foosball struct {
	Target int
}

func (f Foosball) InitialBoard() json.RawMessage {
	target := f.Target
	if target <= 0 {
		target = DefaultFoosballTarget
	}
	raw, _ := json.Marshal(FoosballBoard{Target: target})
	return raw
}

func (Foosball) TurnBased() bool { return false }

func (Foosball) ValidateMove(board json.RawMessage, mover Side, move json.RawMessage) (json.RawMessage, error) {
	b, err := decodeFoosball(board)
	if err != nil {
		return nil, err
	}
	if b.ScoreA >= b.Target || b.ScoreB >= b.Target {
		return nil, fmt.Errorf("%w: match point already reached", ErrIllegalMove)
	}
	var mv foosballMove
	if err := json.Unmarshal(move, &mv); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrIllegalMove, err)
	}
	side := mover
	switch mv.Scorer {
	case "":
	case "A", "a":
		side = SideA
	case "B", "b":
		side = SideB
	default:
		return nil, fmt.Errorf("%w: unknown scorer %q", ErrIllegalMove, mv.Scorer)
	}
	delta := 1
	if mv.Undo {
		delta = -1
	}
	switch side {
	case SideA:
		b.ScoreA += delta
	case SideB:
		b.ScoreB += delta
	default:
		return nil, fmt.Errorf("%w: no scorer", ErrIllegalMove)
	}
	if b.ScoreA < 0 || b.ScoreB < 0 {
		return nil, fmt.Errorf("%w: nothing to undo", ErrIllegalMove)
	}
	return json.Marshal(b)
}

func (Foosball) NextTurn(json.RawMessage) Side { return SideNone }

func (Foosball) IsGameOver(board json.RawMessage) bool {
	b, err := decodeFoosball(board)
	if err != nil {
		return false
	}
	return b.ScoreA >= b.Target || b.ScoreB >= b.Target
}

func (Foosball) DeclareWinner(board json.RawMessage) Side {
	b, err := decodeFoosball(board)
	if err != nil {
		return SideNone
	}
	switch {
	case b.ScoreA >= b.Target:
		return SideA
	case b.ScoreB >= b.Target:
		return SideB
	}
	return SideNone
}

func decodeFoosball(board json.RawMessage) (FoosballBoard, error) {
	var b FoosballBoard
	if err := json.Unmarshal(board, &b); err != nil {
		return b, fmt.Errorf("decode foosball board: %w", err)
	}
	if b.Target <= 0 {
		b.Target = DefaultFoosballTarget
	}
	return b, nil
}
