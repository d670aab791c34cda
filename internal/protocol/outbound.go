// internal/protocol/outbound.go
package protocol

import (
	"github.com/jason-s-yu/chessroom/internal/models"
	"github.com/jason-s-yu/chessroom/internal/rules"
)

// Advisory texts sent to rooms.
const (
	CheckText     = "Check! Your king is under attack."
	StalemateText = "Stalemate! Game drawn."
	DrawText      = "Draw! Game over."
)

// AssignColor tells a seated connection which side it plays.
type AssignColor struct {
	Color rules.Role
}

// GameState is the authoritative position broadcast to a room.
type GameState struct {
	FEN  string     `json:"fen"`
	Turn rules.Role `json:"turn"`
}

// CheckAlert notifies a room that the side on move is in check.
type CheckAlert struct {
	Message string
}

// GameOver is sent once when a room concludes.
type GameOver struct {
	Message string `json:"message"`
	Winner  string `json:"winner"`
}

// UpdateUsers carries every currently present user id.
type UpdateUsers struct {
	Users []string
}

// ReceiveMessage delivers a chat message to its receiver.
type ReceiveMessage struct {
	Message models.Message
}

// InviteReceived tells a user another user wants to play. It goes out under the
// invitePlayer event name.
type InviteReceived struct {
	FromUser string `json:"fromUser"`
}

// Error reports a malformed request back to the sender.
type Error struct {
	Message string `json:"message"`
}

func (AssignColor) Event() string    { return EventAssignColor }
func (GameState) Event() string      { return EventGameState }
func (CheckAlert) Event() string     { return EventCheckAlert }
func (GameOver) Event() string       { return EventGameOver }
func (UpdateUsers) Event() string    { return EventUpdateUsers }
func (ReceiveMessage) Event() string { return EventReceiveMessage }
func (InviteReceived) Event() string { return EventInvitePlayer }
func (Error) Event() string          { return EventError }

func (o AssignColor) payload() any    { return o.Color }
func (o GameState) payload() any      { return o }
func (o CheckAlert) payload() any     { return o.Message }
func (o GameOver) payload() any       { return o }
func (o ReceiveMessage) payload() any { return o.Message }
func (o InviteReceived) payload() any { return o }
func (o Error) payload() any          { return o }

func (o UpdateUsers) payload() any {
	if o.Users == nil {
		return []string{}
	}
	return o.Users
}

// Checkmate builds the game over event for a mate delivered by winner.
func Checkmate(winner rules.Role) GameOver {
	return GameOver{Message: "Checkmate! " + winner.Label() + " wins.", Winner: winner.Label()}
}

// Stalemate builds the game over event for a stalemated position.
func Stalemate() GameOver {
	return GameOver{Message: StalemateText, Winner: models.WinnerDraw}
}

// Draw builds the game over event for any other drawn position.
func Draw() GameOver {
	return GameOver{Message: DrawText, Winner: models.WinnerDraw}
}
