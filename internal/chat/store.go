// internal/chat/store.go
package chat

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jason-s-yu/chessroom/internal/models"
)

// Store persists chat messages. Save assigns the id and creation timestamp.
// Listing methods return messages in ascending creation order.
type Store interface {
	Save(ctx context.Context, msg models.Message) (models.Message, error)
	Conversation(ctx context.Context, a, b string) ([]models.Message, error)
	Undelivered(ctx context.Context, receiver string) ([]models.Message, error)
	MarkDelivered(ctx context.Context, ids ...uuid.UUID) error
	All(ctx context.Context) ([]models.Message, error)
}

// MemoryStore keeps messages in process memory.
type MemoryStore struct {
	mu       sync.Mutex
	messages []models.Message
	index    map[uuid.UUID]int
	last     time.Time
	now      func() time.Time
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		index: make(map[uuid.UUID]int),
		now:   time.Now,
	}
}

// Save stamps msg with a fresh id and a timestamp strictly after the previous one.
func (s *MemoryStore) Save(ctx context.Context, msg models.Message) (models.Message, error) {
	if err := ctx.Err(); err != nil {
		return models.Message{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	ts := s.now().UTC()
	if !ts.After(s.last) {
		ts = s.last.Add(time.Nanosecond)
	}
	s.last = ts

	msg.ID = uuid.New()
	msg.CreatedAt = ts
	msg.Delivered = false
	s.index[msg.ID] = len(s.messages)
	s.messages = append(s.messages, msg)
	return msg, nil
}

func (s *MemoryStore) Conversation(ctx context.Context, a, b string) ([]models.Message, error) {
	return s.filter(ctx, func(m models.Message) bool { return m.Between(a, b) })
}

func (s *MemoryStore) Undelivered(ctx context.Context, receiver string) ([]models.Message, error) {
	return s.filter(ctx, func(m models.Message) bool { return m.Receiver == receiver && !m.Delivered })
}

func (s *MemoryStore) All(ctx context.Context) ([]models.Message, error) {
	return s.filter(ctx, func(models.Message) bool { return true })
}

// MarkDelivered flags the given messages. Unknown ids are ignored.
func (s *MemoryStore) MarkDelivered(ctx context.Context, ids ...uuid.UUID) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		if i, ok := s.index[id]; ok {
			s.messages[i].Delivered = true
		}
	}
	return nil
}

func (s *MemoryStore) filter(ctx context.Context, keep func(models.Message) bool) ([]models.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Message, 0)
	for _, m := range s.messages {
		if keep(m) {
			out = append(out, m)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}
