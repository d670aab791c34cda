// internal/rating/rating.go
package rating

import (
	"math"

	"github.com/jason-s-yu/chessroom/internal/models"
)

// Scores for a single game from white's point of view.
const (
	WhiteWins = 1.0
	Drawn     = 0.5
	BlackWins = 0.0
)

func ratingOf(u models.User) Glicko2Rating {
	return NewGlicko2Rating(float64(u.Elo), u.Phi, u.Sigma)
}

func apply(u models.User, r Glicko2Rating) models.User {
	u.Elo = int(math.Round(r.ToElo()))
	u.Phi = r.RD()
	u.Sigma = r.Sigma
	return u
}

// Update1v1 rates one game between white and black. score is white's result
// (WhiteWins, Drawn or BlackWins). Both players are updated against the
// other's pre-game rating.
func Update1v1(white, black models.User, score float64) (models.User, models.User) {
	rw, rb := ratingOf(white), ratingOf(black)
	nw := updateGlicko(rw, rb, score)
	nb := updateGlicko(rb, rw, 1-score)
	return apply(white, nw), apply(black, nb)
}

// ScoreFor converts a winner label into white's score.
func ScoreFor(winner string) float64 {
	switch winner {
	case models.WinnerWhite:
		return WhiteWins
	case models.WinnerBlack:
		return BlackWins
	}
	return Drawn
}
