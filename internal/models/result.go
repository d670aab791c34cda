package models

// Winner values reported when a room concludes.
const (
	WinnerWhite = "White"
	WinnerBlack = "Black"
	WinnerDraw  = "draw"
)

// GameResult is a concluded room between two authenticated users.
type GameResult struct {
	RoomID      string `json:"roomId"`
	WhiteUserID string `json:"whiteUserId"`
	BlackUserID string `json:"blackUserId"`
	Winner      string `json:"winner"`
}

// Decisive reports whether the result has a winner.
func (r GameResult) Decisive() bool {
	return r.Winner == WinnerWhite || r.Winner == WinnerBlack
}
