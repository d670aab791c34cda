package models

import (
	"time"

	"github.com/google/uuid"
)

// Message is a stored direct chat message. Messages are immutable once saved
// apart from the Delivered flag.
type Message struct {
	ID        uuid.UUID `json:"id"`
	Sender    string    `json:"sender"`
	Receiver  string    `json:"receiver"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"timestamp"`
	Delivered bool      `json:"delivered"`
}

// Between reports whether the message was exchanged by a and b in either direction.
func (m Message) Between(a, b string) bool {
	return (m.Sender == a && m.Receiver == b) || (m.Sender == b && m.Receiver == a)
}
