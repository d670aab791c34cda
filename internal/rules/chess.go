// internal/rules/chess.go
package rules

import (
	"fmt"
	"strings"

	chess "github.com/corentings/chess/v2"
)

// ChessOracle implements Oracle with standard chess rules.
type ChessOracle struct{}

// NewChessOracle returns the standard chess oracle.
func NewChessOracle() *ChessOracle {
	return &ChessOracle{}
}

// Start returns the initial position.
func (o *ChessOracle) Start() Position {
	return Position{FEN: chess.NewGame().FEN(), Moves: []string{}}
}

// Apply plays mv on top of pos. UCI is tried first, then SAN. A promotion
// letter on a move that does not promote is ignored.
func (o *ChessOracle) Apply(pos Position, mv Move) (Position, error) {
	game, err := replay(pos.Moves)
	if err != nil {
		return pos, err
	}
	raw := mv.UCI()
	if raw == "" {
		return pos, fmt.Errorf("%w: empty move", ErrIllegalMove)
	}

	err = push(game, raw)
	if err != nil && mv.Promotion != "" {
		if bare := (Move{From: mv.From, To: mv.To}).UCI(); bare != raw && !promotes(game, bare) {
			err = push(game, bare)
		}
	}
	if err != nil {
		return pos, fmt.Errorf("%w: %s", ErrIllegalMove, raw)
	}
	played := lastMove(game)
	if played == nil {
		return pos, fmt.Errorf("%w: %s", ErrIllegalMove, raw)
	}

	moves := make([]string, 0, len(pos.Moves)+1)
	moves = append(moves, pos.Moves...)
	moves = append(moves, played.String())
	return Position{FEN: game.FEN(), Moves: moves}, nil
}

// Assess reports whose turn it is and any check or terminal condition.
func (o *ChessOracle) Assess(pos Position) Assessment {
	game, err := replay(pos.Moves)
	if err != nil {
		// positions are only produced by Apply, so this is unreachable in practice
		return Assessment{Turn: White}
	}

	a := Assessment{Turn: roleOf(game.Position().Turn())}
	if last := lastMove(game); last != nil {
		a.Check = last.HasTag(chess.Check)
	}

	switch game.Outcome() {
	case chess.WhiteWon, chess.BlackWon:
		if game.Method() == chess.Checkmate {
			a.Checkmate = true
			a.Method = game.Method().String()
		}
	case chess.Draw:
		if game.Method() == chess.Stalemate {
			a.Stalemate = true
		} else {
			a.Draw = true
		}
		a.Method = game.Method().String()
	default:
		for _, m := range game.EligibleDraws() {
			if m == chess.ThreefoldRepetition || m == chess.FiftyMoveRule {
				a.Draw = true
				a.Method = m.String()
				break
			}
		}
	}
	return a
}

// push decodes raw as UCI, falling back to SAN, and pushes it onto game.
func push(game *chess.Game, raw string) error {
	if decoded, err := (chess.UCINotation{}).Decode(game.Position(), strings.ToLower(raw)); err == nil {
		return game.Move(decoded, nil)
	}
	return game.PushNotationMove(raw, chess.AlgebraicNotation{}, nil)
}

// promotes reports whether the UCI move sq ("e7e8") is a pawn reaching the
// last rank, which needs a promotion piece to be legal.
func promotes(game *chess.Game, sq string) bool {
	if len(sq) != 4 {
		return false
	}
	if sq[3] != '1' && sq[3] != '8' {
		return false
	}
	for _, m := range game.ValidMoves() {
		if m.Promo() != chess.NoPieceType && strings.HasPrefix(m.String(), sq) {
			return true
		}
	}
	return false
}

func replay(moves []string) (*chess.Game, error) {
	game := chess.NewGame()
	for _, mv := range moves {
		if err := game.PushNotationMove(mv, chess.UCINotation{}, nil); err != nil {
			return nil, fmt.Errorf("replay %q: %w", mv, err)
		}
	}
	return game, nil
}

func lastMove(game *chess.Game) *chess.Move {
	moves := game.Moves()
	if len(moves) == 0 {
		return nil
	}
	return moves[len(moves)-1]
}

func roleOf(c chess.Color) Role {
	if c == chess.Black {
		return Black
	}
	return White
}
