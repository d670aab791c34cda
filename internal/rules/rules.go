// internal/rules/rules.go
package rules

import (
	"errors"
	"strings"
)

// ErrIllegalMove is returned by Oracle.Apply when the proposed move cannot be played.
var ErrIllegalMove = errors.New("illegal move")

// Role is the seat a participant holds in a room. White always moves first.
type Role string

const (
	White Role = "w"
	Black Role = "b"
)

// Label is the human-readable side name used in game over messages.
func (r Role) Label() string {
	switch r {
	case White:
		return "White"
	case Black:
		return "Black"
	}
	return ""
}

// Opponent returns the other side.
func (r Role) Opponent() Role {
	if r == White {
		return Black
	}
	return White
}

// Position is the authoritative game state of a room. FEN is kept for broadcasting;
// Moves (UCI, from the standard start) is what the oracle replays so that
// repetition draws can be detected.
type Position struct {
	FEN   string   `json:"fen"`
	Moves []string `json:"moves"`
}

// Move is a proposed move. Either From/To (plus optional Promotion) or a
// Notation string (UCI like "e2e4" or SAN like "Nf3") must be set.
type Move struct {
	From      string `json:"from,omitempty"`
	To        string `json:"to,omitempty"`
	Promotion string `json:"promotion,omitempty"`
	Notation  string `json:"san,omitempty"`
}

// UCI returns the move in UCI form when squares are given, else the raw notation.
func (m Move) UCI() string {
	if m.From != "" && m.To != "" {
		return strings.ToLower(strings.TrimSpace(m.From) + strings.TrimSpace(m.To) + strings.TrimSpace(m.Promotion))
	}
	return strings.TrimSpace(m.Notation)
}

// Empty reports whether the move carries nothing to decode.
func (m Move) Empty() bool {
	return m.UCI() == ""
}

// Assessment describes a position after a move. At most one of Checkmate,
// Stalemate and Draw is set; Check may accompany Checkmate.
type Assessment struct {
	Turn      Role
	Check     bool
	Checkmate bool
	Stalemate bool
	Draw      bool
	// Method names how a terminal position was reached (e.g. "Checkmate", "ThreefoldRepetition").
	Method string
}

// Terminal reports whether the position ends the game.
func (a Assessment) Terminal() bool {
	return a.Checkmate || a.Stalemate || a.Draw
}

// Oracle validates moves and detects terminal conditions. Implementations must be
// pure: Apply never mutates its input Position.
type Oracle interface {
	Start() Position
	Apply(pos Position, mv Move) (Position, error)
	Assess(pos Position) Assessment
}
