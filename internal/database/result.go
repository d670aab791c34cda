package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jason-s-yu/chessroom/internal/models"
	"github.com/jason-s-yu/chessroom/internal/rating"
)

// ResultRepository records finished games and keeps player statistics current.
type ResultRepository struct {
	db *pgxpool.Pool
}

func NewResultRepository(db *pgxpool.Pool) *ResultRepository {
	return &ResultRepository{db: db}
}

// RecordResult updates match counters and Glicko-2 ratings for both players
// and stores the game, all in one transaction. Games a user plays against
// themselves are ignored.
func (r *ResultRepository) RecordResult(ctx context.Context, res models.GameResult) error {
	whiteID, err := uuid.Parse(res.WhiteUserID)
	if err != nil {
		return fmt.Errorf("invalid white user id %q: %w", res.WhiteUserID, err)
	}
	blackID, err := uuid.Parse(res.BlackUserID)
	if err != nil {
		return fmt.Errorf("invalid black user id %q: %w", res.BlackUserID, err)
	}
	if whiteID == blackID {
		return nil
	}

	err = pgx.BeginTxFunc(ctx, r.db, pgx.TxOptions{}, func(tx pgx.Tx) error {
		white, err := lockRating(ctx, tx, whiteID)
		if err != nil {
			return err
		}
		black, err := lockRating(ctx, tx, blackID)
		if err != nil {
			return err
		}

		newWhite, newBlack := rating.Update1v1(white, black, rating.ScoreFor(res.Winner))
		newWhite = tally(newWhite, res.Winner, models.WinnerWhite)
		newBlack = tally(newBlack, res.Winner, models.WinnerBlack)

		for _, u := range []models.User{newWhite, newBlack} {
			_, err := tx.Exec(ctx, `
				UPDATE users
				SET matches_played=$1, matches_won=$2, matches_lost=$3, elo=$4, phi=$5, sigma=$6
				WHERE id=$7`,
				u.MatchesPlayed, u.MatchesWon, u.MatchesLost, u.Elo, u.Phi, u.Sigma, u.ID,
			)
			if err != nil {
				return fmt.Errorf("update user %s: %w", u.ID, err)
			}
		}

		_, err = tx.Exec(ctx, `
			INSERT INTO game_results (id, room_id, white_id, black_id, winner,
			                          white_elo_before, white_elo_after, black_elo_before, black_elo_after)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
			uuid.New(), res.RoomID, whiteID, blackID, res.Winner,
			white.Elo, newWhite.Elo, black.Elo, newBlack.Elo,
		)
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to record game result: %w", err)
	}
	return nil
}

// lockRating loads the rating fields of a user and locks the row for the
// rest of the transaction.
func lockRating(ctx context.Context, tx pgx.Tx, id uuid.UUID) (models.User, error) {
	u := models.User{ID: id}
	err := tx.QueryRow(ctx, `
		SELECT matches_played, matches_won, matches_lost, elo, phi, sigma
		FROM users WHERE id=$1 FOR UPDATE`, id,
	).Scan(&u.MatchesPlayed, &u.MatchesWon, &u.MatchesLost, &u.Elo, &u.Phi, &u.Sigma)
	if errors.Is(err, pgx.ErrNoRows) {
		return u, fmt.Errorf("user %s: %w", id, ErrUserNotFound)
	}
	return u, err
}

func tally(u models.User, winner, side string) models.User {
	u.MatchesPlayed++
	switch winner {
	case side:
		u.MatchesWon++
	case models.WinnerDraw:
	default:
		u.MatchesLost++
	}
	return u
}
