package models

import (
	"time"

	"github.com/google/uuid"
)

type User struct {
	ID       uuid.UUID `json:"id"`
	Email    string    `json:"email"`
	Password string    `json:"password,omitempty"`
	Username string    `json:"username"`

	MatchesPlayed int `json:"matchesPlayed"`
	MatchesWon    int `json:"matchesWon"`
	MatchesLost   int `json:"matchesLost"`

	// Glicko-2 rating
	Elo   int     `json:"elo"`
	Phi   float64 `json:"phi"`
	Sigma float64 `json:"sigma"`

	CreatedAt time.Time `json:"createdAt"`
}

// Public strips the password hash before the user leaves the server.
func (u User) Public() User {
	u.Password = ""
	return u
}

// Stats is the profile summary exposed to other users.
type Stats struct {
	MatchesPlayed int `json:"matchesPlayed"`
	MatchesWon    int `json:"matchesWon"`
	MatchesLost   int `json:"matchesLost"`
	Elo           int `json:"elo"`
}

func (u User) Stats() Stats {
	return Stats{
		MatchesPlayed: u.MatchesPlayed,
		MatchesWon:    u.MatchesWon,
		MatchesLost:   u.MatchesLost,
		Elo:           u.Elo,
	}
}
