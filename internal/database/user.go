package database

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jason-s-yu/chessroom/internal/auth"
	"github.com/jason-s-yu/chessroom/internal/models"
)

const userColumns = `id, email, password, username,
	       matches_played, matches_won, matches_lost,
	       elo, phi, sigma, created_at`

// UserRepository stores accounts in the users table.
type UserRepository struct {
	db *pgxpool.Pool
}

func NewUserRepository(db *pgxpool.Pool) *UserRepository {
	return &UserRepository{db: db}
}

func scanUser(row pgx.Row) (*models.User, error) {
	var u models.User
	err := row.Scan(
		&u.ID, &u.Email, &u.Password, &u.Username,
		&u.MatchesPlayed, &u.MatchesWon, &u.MatchesLost,
		&u.Elo, &u.Phi, &u.Sigma, &u.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// CreateUser hashes the password and inserts the user. The stored hash and
// generated fields are written back into user.
func (r *UserRepository) CreateUser(ctx context.Context, user *models.User) error {
	if user.ID == uuid.Nil {
		id, err := uuid.NewRandom()
		if err != nil {
			return fmt.Errorf("failed to generate user id: %w", err)
		}
		user.ID = id
	}
	user.Email = strings.ToLower(strings.TrimSpace(user.Email))

	hash, err := auth.HashPassword(user.Password)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}
	user.Password = hash

	q := `INSERT INTO users (id, email, password, username)
	      VALUES ($1, $2, $3, $4)
	      RETURNING matches_played, matches_won, matches_lost, elo, phi, sigma, created_at`

	err = pgx.BeginTxFunc(ctx, r.db, pgx.TxOptions{}, func(tx pgx.Tx) error {
		return tx.QueryRow(ctx, q, user.ID, user.Email, user.Password, user.Username).Scan(
			&user.MatchesPlayed, &user.MatchesWon, &user.MatchesLost,
			&user.Elo, &user.Phi, &user.Sigma, &user.CreatedAt,
		)
	})
	if err != nil {
		if isUniqueViolation(err) {
			return ErrUserExists
		}
		return fmt.Errorf("failed to insert user: %w", err)
	}
	return nil
}

func (r *UserRepository) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	q := `SELECT ` + userColumns + ` FROM users WHERE email=$1`
	return scanUser(r.db.QueryRow(ctx, q, strings.ToLower(strings.TrimSpace(email))))
}

func (r *UserRepository) GetUserByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	q := `SELECT ` + userColumns + ` FROM users WHERE id=$1`
	return scanUser(r.db.QueryRow(ctx, q, id))
}

// ListUsers returns every account ordered by username.
func (r *UserRepository) ListUsers(ctx context.Context) ([]models.User, error) {
	rows, err := r.db.Query(ctx, `SELECT `+userColumns+` FROM users ORDER BY username`)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	users := make([]models.User, 0)
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, *u)
	}
	return users, rows.Err()
}

// Authenticate checks the credentials and returns the matching user.
func (r *UserRepository) Authenticate(ctx context.Context, email, password string) (*models.User, error) {
	user, err := r.GetUserByEmail(ctx, email)
	if err != nil {
		return nil, err
	}

	match, err := auth.VerifyPassword(password, user.Password)
	if err != nil {
		return nil, fmt.Errorf("failed to verify password: %w", err)
	}
	if !match {
		return nil, ErrInvalidCredentials
	}

	// upgrade hashes written with older parameters; login still succeeds if this fails
	if auth.NeedsRehash(user.Password) {
		if hash, err := auth.HashPassword(password); err == nil {
			if _, err := r.db.Exec(ctx, `UPDATE users SET password=$1 WHERE id=$2`, hash, user.ID); err == nil {
				user.Password = hash
			}
		}
	}
	return user, nil
}
