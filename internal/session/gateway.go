// internal/session/gateway.go
package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jason-s-yu/chessroom/internal/chat"
	"github.com/jason-s-yu/chessroom/internal/models"
	"github.com/jason-s-yu/chessroom/internal/presence"
	"github.com/jason-s-yu/chessroom/internal/protocol"
	"github.com/jason-s-yu/chessroom/internal/room"
	"github.com/sirupsen/logrus"
)

// Conn is a live client connection.
type Conn interface {
	ID() string
	UserID() string
	Send(protocol.Outbound) error
}

// ResultRecorder persists the outcome of a finished game between two users.
type ResultRecorder interface {
	RecordResult(ctx context.Context, result models.GameResult) error
}

// DefaultResultTimeout bounds a single result write.
const DefaultResultTimeout = 5 * time.Second

// Gateway routes inbound connection events to the room registry, the presence
// directory and the chat relay.
type Gateway struct {
	rooms    *room.Registry
	presence *presence.Directory
	relay    *chat.Relay
	results  ResultRecorder
	log      logrus.FieldLogger

	ResultTimeout time.Duration

	pending sync.WaitGroup
}

// NewGateway builds a gateway. results may be nil, in which case finished games
// are not recorded.
func NewGateway(rooms *room.Registry, dir *presence.Directory, relay *chat.Relay, results ResultRecorder, logger logrus.FieldLogger) *Gateway {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Gateway{
		rooms:         rooms,
		presence:      dir,
		relay:         relay,
		results:       results,
		log:           logger,
		ResultTimeout: DefaultResultTimeout,
	}
}

// Connect registers c as a presence listener.
func (g *Gateway) Connect(c Conn) {
	g.presence.Attach(c)
	g.log.WithFields(logrus.Fields{"conn_id": c.ID(), "user_id": c.UserID()}).Debug("session connected")
}

// Dispatch handles one inbound event from c. Callers must dispatch the events
// of a single connection sequentially to keep them in arrival order.
func (g *Gateway) Dispatch(ctx context.Context, c Conn, in protocol.Inbound) error {
	entry := g.log.WithFields(logrus.Fields{"conn_id": c.ID(), "event": in.Event()})

	switch ev := in.(type) {
	case protocol.JoinRoom:
		g.rooms.Join(ev.Room, c)
		return nil

	case protocol.MakeMove:
		res, err := g.rooms.ApplyMove(ev.Room, c.ID(), ev.Move)
		if err != nil {
			// already logged by the registry, nothing goes back to the client
			return err
		}
		if res.GameOver != nil {
			g.recordResult(ev.Room, res)
		}
		return nil

	case protocol.JoinChat:
		n, err := g.relay.Join(ctx, ev.UserID, c)
		if err != nil {
			entry.WithError(err).WithField("user_id", ev.UserID).Warn("message replay failed")
		} else if n > 0 {
			entry.WithFields(logrus.Fields{"user_id": ev.UserID, "count": n}).Info("replayed undelivered messages")
		}
		g.presence.Broadcast()
		return nil

	case protocol.SendMessage:
		if _, err := g.relay.Send(ctx, ev.Sender, ev.Receiver, ev.Text); err != nil {
			entry.WithError(err).WithFields(logrus.Fields{
				"sender":   ev.Sender,
				"receiver": ev.Receiver,
			}).Warn("chat message not sent")
			return err
		}
		return nil

	case protocol.InvitePlayer:
		g.relay.Invite(ev.FromUser, ev.ToUser)
		return nil
	}
	return fmt.Errorf("%w: %T", protocol.ErrUnknownEvent, in)
}

// Disconnect tears down everything c held. It is safe to call more than once
// and with a connection whose user was since claimed by a newer connection.
func (g *Gateway) Disconnect(c Conn) {
	userID, removed := g.presence.Unregister(c)
	g.presence.Detach(c)
	g.rooms.Leave(c.ID())
	if removed {
		g.log.WithFields(logrus.Fields{"conn_id": c.ID(), "user_id": userID}).Info("user left chat")
		g.presence.Broadcast()
	}
}

// Wait blocks until every in-flight result write has finished.
func (g *Gateway) Wait() {
	g.pending.Wait()
}

func (g *Gateway) recordResult(roomID string, res room.MoveResult) {
	if g.results == nil || res.Players.White == "" || res.Players.Black == "" {
		return
	}
	result := models.GameResult{
		RoomID:      roomID,
		WhiteUserID: res.Players.White,
		BlackUserID: res.Players.Black,
		Winner:      res.GameOver.Winner,
	}

	g.pending.Add(1)
	go func() {
		defer g.pending.Done()
		ctx, cancel := context.WithTimeout(context.Background(), g.ResultTimeout)
		defer cancel()
		entry := g.log.WithFields(logrus.Fields{"room_id": roomID, "winner": result.Winner})
		if err := g.results.RecordResult(ctx, result); err != nil {
			entry.WithError(err).Error("failed to record game result")
			return
		}
		entry.Info("game result recorded")
	}()
}
