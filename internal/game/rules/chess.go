package rules

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/notnil/chess"
)

// ChessBoard is the board document of a chess match. The game is replayed
// from the move list on every validation so repetition draws are detected.
type ChessBoard struct {
	FEN     string   `json:"fen"`
	Moves   []string `json:"moves"`
	Outcome string   `json:"outcome"`
	Method  string   `json:"method"`
}

type chessMove struct {
	UCI string `json:"uci"`
}

// Chess plays standard chess; side A has the white pieces.
type Chess struct{}

func (Chess) InitialBoard() json.RawMessage {
	g := chess.NewGame()
	raw, _ := json.Marshal(ChessBoard{
		FEN:     g.FEN(),
		Moves:   []string{},
		Outcome: string(chess.NoOutcome),
		Method:  chess.NoMethod.String(),
	})
	return raw
}

func (Chess) TurnBased() bool { return true }

func (Chess) ValidateMove(board json.RawMessage, mover Side, move json.RawMessage) (json.RawMessage, error) {
	b, err := decodeChess(board)
	if err != nil {
		return nil, err
	}
	var mv chessMove
	if err := json.Unmarshal(move, &mv); err != nil || strings.TrimSpace(mv.UCI) == "" {
		// bare strings are accepted too: "e2e4"
		var s string
		if json.Unmarshal(move, &s) != nil || strings.TrimSpace(s) == "" {
			return nil, fmt.Errorf("%w: expected {\"uci\": ...}", ErrIllegalMove)
		}
		mv.UCI = s
	}
	g, err := replay(b.Moves)
	if err != nil {
		return nil, err
	}
	if g.Outcome() != chess.NoOutcome {
		return nil, fmt.Errorf("%w: game is over", ErrIllegalMove)
	}
	if colorOf(mover) != g.Position().Turn() {
		return nil, fmt.Errorf("%w: not %s's turn", ErrIllegalMove, mover)
	}
	uci := strings.ToLower(strings.TrimSpace(mv.UCI))
	if err := g.MoveStr(uci); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrIllegalMove, uci, err)
	}
	next := ChessBoard{
		FEN:     g.FEN(),
		Moves:   append(append([]string{}, b.Moves...), uci),
		Outcome: string(g.Outcome()),
		Method:  g.Method().String(),
	}
	return json.Marshal(next)
}

func (Chess) NextTurn(board json.RawMessage) Side {
	b, err := decodeChess(board)
	if err != nil {
		return SideA
	}
	// the side to move is encoded in the second FEN field
	fields := strings.Fields(b.FEN)
	if len(fields) > 1 && fields[1] == "b" {
		return SideB
	}
	return SideA
}

func (Chess) IsGameOver(board json.RawMessage) bool {
	b, err := decodeChess(board)
	if err != nil {
		return false
	}
	return b.Outcome != "" && b.Outcome != string(chess.NoOutcome)
}

func (Chess) DeclareWinner(board json.RawMessage) Side {
	b, err := decodeChess(board)
	if err != nil {
		return SideNone
	}
	switch chess.Outcome(b.Outcome) {
	case chess.WhiteWon:
		return SideA
	case chess.BlackWon:
		return SideB
	}
	return SideNone
}

func decodeChess(board json.RawMessage) (ChessBoard, error) {
	var b ChessBoard
	if err := json.Unmarshal(board, &b); err != nil {
		return b, fmt.Errorf("decode chess board: %w", err)
	}
	return b, nil
}

func replay(moves []string) (*chess.Game, error) {
	g := chess.NewGame(chess.UseNotation(chess.UCINotation{}))
	for _, m := range moves {
		if err := g.MoveStr(m); err != nil {
			return nil, fmt.Errorf("replay %s: %w", m, err)
		}
	}
	return g, nil
}

func colorOf(s Side) chess.Color {
	if s == SideB {
		return chess.Black
	}
	return chess.White
}
