package database

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jason-s-yu/chessroom/internal/models"
)

const messageColumns = `id, sender, receiver, text, created_at, delivered`

// MessageRepository stores chat messages in the messages table.
type MessageRepository struct {
	db *pgxpool.Pool
}

func NewMessageRepository(db *pgxpool.Pool) *MessageRepository {
	return &MessageRepository{db: db}
}

// Save inserts msg. The id is generated here and the timestamp by the database.
func (r *MessageRepository) Save(ctx context.Context, msg models.Message) (models.Message, error) {
	msg.ID = uuid.New()
	msg.Delivered = false
	q := `INSERT INTO messages (id, sender, receiver, text)
	      VALUES ($1, $2, $3, $4)
	      RETURNING created_at`
	if err := r.db.QueryRow(ctx, q, msg.ID, msg.Sender, msg.Receiver, msg.Text).Scan(&msg.CreatedAt); err != nil {
		return models.Message{}, fmt.Errorf("failed to insert message: %w", err)
	}
	return msg, nil
}

// Conversation returns the messages between a and b in both directions.
func (r *MessageRepository) Conversation(ctx context.Context, a, b string) ([]models.Message, error) {
	q := `SELECT ` + messageColumns + ` FROM messages
	      WHERE (sender=$1 AND receiver=$2) OR (sender=$2 AND receiver=$1)
	      ORDER BY created_at, seq`
	return r.query(ctx, q, a, b)
}

// Undelivered returns the messages addressed to receiver that were never delivered.
func (r *MessageRepository) Undelivered(ctx context.Context, receiver string) ([]models.Message, error) {
	q := `SELECT ` + messageColumns + ` FROM messages
	      WHERE receiver=$1 AND NOT delivered
	      ORDER BY created_at, seq`
	return r.query(ctx, q, receiver)
}

func (r *MessageRepository) All(ctx context.Context) ([]models.Message, error) {
	return r.query(ctx, `SELECT `+messageColumns+` FROM messages ORDER BY created_at, seq`)
}

func (r *MessageRepository) MarkDelivered(ctx context.Context, ids ...uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}
	if _, err := r.db.Exec(ctx, `UPDATE messages SET delivered = TRUE WHERE id = ANY($1)`, ids); err != nil {
		return fmt.Errorf("failed to mark messages delivered: %w", err)
	}
	return nil
}

func (r *MessageRepository) query(ctx context.Context, q string, args ...any) ([]models.Message, error) {
	rows, err := r.db.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	msgs, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (models.Message, error) {
		var m models.Message
		err := row.Scan(&m.ID, &m.Sender, &m.Receiver, &m.Text, &m.CreatedAt, &m.Delivered)
		return m, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan messages: %w", err)
	}
	return msgs, nil
}
