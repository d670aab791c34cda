// internal/chat/relay.go
package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/jason-s-yu/chessroom/internal/models"
	"github.com/jason-s-yu/chessroom/internal/presence"
	"github.com/jason-s-yu/chessroom/internal/protocol"
	"github.com/sirupsen/logrus"
)

var (
	// ErrStoreUnavailable wraps any persistence failure. A message that could not
	// be stored is never delivered live.
	ErrStoreUnavailable = errors.New("message store unavailable")
	// ErrInvalidMessage is returned when sender, receiver or text is blank.
	ErrInvalidMessage = errors.New("invalid message")
)

// Directory is the part of presence the relay needs.
type Directory interface {
	Register(userID string, h presence.Handle)
	Lookup(userID string) (presence.Handle, bool)
}

// Relay persists chat messages and forwards them to receivers that are online.
type Relay struct {
	store Store
	dir   Directory
	log   logrus.FieldLogger

	// inboxes serializes live delivery, registration and replay per receiver.
	inboxes inboxLocks
}

// inboxLocks hands out one mutex per receiver. An entry lives only while
// someone holds or waits on it.
type inboxLocks struct {
	mu sync.Mutex
	m  map[string]*inboxLock
}

type inboxLock struct {
	sync.Mutex
	refs int
}

func (l *inboxLocks) lock(userID string) func() {
	l.mu.Lock()
	if l.m == nil {
		l.m = make(map[string]*inboxLock)
	}
	il, ok := l.m[userID]
	if !ok {
		il = &inboxLock{}
		l.m[userID] = il
	}
	il.refs++
	l.mu.Unlock()

	il.Lock()
	return func() {
		il.Unlock()
		l.mu.Lock()
		il.refs--
		if il.refs == 0 {
			delete(l.m, userID)
		}
		l.mu.Unlock()
	}
}

func (l *inboxLocks) len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.m)
}

// NewRelay wires a relay to its store and presence directory.
func NewRelay(store Store, dir Directory, logger logrus.FieldLogger) *Relay {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Relay{store: store, dir: dir, log: logger}
}

// Send stores the message and then, if the receiver is present, delivers it.
func (r *Relay) Send(ctx context.Context, sender, receiver, text string) (models.Message, error) {
	sender, receiver = strings.TrimSpace(sender), strings.TrimSpace(receiver)
	if sender == "" || receiver == "" || strings.TrimSpace(text) == "" {
		return models.Message{}, ErrInvalidMessage
	}

	// held across the save so a concurrent Join either replays this message
	// or sees it delivered live, never both
	unlock := r.inboxes.lock(receiver)
	defer unlock()

	msg, err := r.store.Save(ctx, models.Message{Sender: sender, Receiver: receiver, Text: text})
	if err != nil {
		return models.Message{}, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	h, ok := r.dir.Lookup(receiver)
	if !ok {
		return msg, nil
	}
	entry := r.log.WithFields(logrus.Fields{"user_id": receiver, "conn_id": h.ID(), "message_id": msg.ID})
	if err := h.Send(protocol.ReceiveMessage{Message: msg}); err != nil {
		entry.WithError(err).Warn("live message delivery failed, left for replay")
		return msg, nil
	}
	if err := r.store.MarkDelivered(ctx, msg.ID); err != nil {
		entry.WithError(err).Warn("failed to mark message delivered")
		return msg, nil
	}
	msg.Delivered = true
	return msg, nil
}

// History returns the conversation between a and b in both directions, oldest first.
func (r *Relay) History(ctx context.Context, a, b string) ([]models.Message, error) {
	msgs, err := r.store.Conversation(ctx, a, b)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return msgs, nil
}

// All returns every stored message.
func (r *Relay) All(ctx context.Context) ([]models.Message, error) {
	msgs, err := r.store.All(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return msgs, nil
}

// Join binds userID to h in the directory and replays the backlog to it.
// Both happen under the receiver's inbox lock, so no live message can
// overtake the backlog and no newer connection can claim the user mid-replay.
func (r *Relay) Join(ctx context.Context, userID string, h presence.Handle) (int, error) {
	unlock := r.inboxes.lock(userID)
	defer unlock()
	r.dir.Register(userID, h)
	return r.replay(ctx, userID, h)
}

// Replay delivers every undelivered message addressed to userID to h, in
// storage order, and marks them delivered. It stops at the first message the
// handle refuses so that ordering holds on the next replay. A handle that was
// superseded by another connection for userID receives nothing.
func (r *Relay) Replay(ctx context.Context, userID string, h presence.Handle) (int, error) {
	unlock := r.inboxes.lock(userID)
	defer unlock()
	if cur, ok := r.dir.Lookup(userID); ok && cur.ID() != h.ID() {
		r.log.WithFields(logrus.Fields{
			"user_id": userID,
			"conn_id": h.ID(),
			"current": cur.ID(),
		}).Debug("replay skipped, connection superseded")
		return 0, nil
	}
	return r.replay(ctx, userID, h)
}

func (r *Relay) replay(ctx context.Context, userID string, h presence.Handle) (int, error) {
	pending, err := r.store.Undelivered(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	sent := make([]uuid.UUID, 0, len(pending))
	for _, msg := range pending {
		if err := h.Send(protocol.ReceiveMessage{Message: msg}); err != nil {
			r.log.WithFields(logrus.Fields{
				"user_id":    userID,
				"conn_id":    h.ID(),
				"message_id": msg.ID,
			}).WithError(err).Warn("replay interrupted")
			break
		}
		sent = append(sent, msg.ID)
	}
	if len(sent) == 0 {
		return 0, nil
	}
	if err := r.store.MarkDelivered(ctx, sent...); err != nil {
		return len(sent), fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return len(sent), nil
}

// Invite notifies toUser if present. Invites to absent users are dropped.
func (r *Relay) Invite(fromUser, toUser string) bool {
	h, ok := r.dir.Lookup(toUser)
	if !ok {
		r.log.WithFields(logrus.Fields{"from_user": fromUser, "user_id": toUser}).Debug("invite dropped, user not present")
		return false
	}
	if err := h.Send(protocol.InviteReceived{FromUser: fromUser}); err != nil {
		r.log.WithFields(logrus.Fields{
			"from_user": fromUser,
			"user_id":   toUser,
			"conn_id":   h.ID(),
		}).WithError(err).Warn("invite not delivered")
		return false
	}
	return true
}
