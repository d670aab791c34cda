// internal/connection/connection.go
package connection

import (
	"errors"
	"sync"

	"github.com/google/uuid"
	"github.com/jason-s-yu/chessroom/internal/protocol"
)

var (
	// ErrClosed is returned by Send after the connection has been closed.
	ErrClosed = errors.New("connection closed")
	// ErrBufferFull is returned by Send when the outbound buffer has no room.
	ErrBufferFull = errors.New("outbound buffer full")
)

// DefaultOutboxSize is used when New is given a non-positive buffer size.
const DefaultOutboxSize = 32

// Conn is one live websocket session. Its ID is minted per connection and is
// distinct from the user id bound later via joinChat or the handshake token.
type Conn struct {
	id     string
	userID string
	remote string

	mu     sync.Mutex
	out    chan protocol.Outbound
	closed bool
	cancel func()
}

// New creates a connection with a fresh id. cancel, if set, is invoked on Close
// to stop the goroutines serving the socket.
func New(userID, remote string, size int, cancel func()) *Conn {
	if size <= 0 {
		size = DefaultOutboxSize
	}
	return &Conn{
		id:     uuid.NewString(),
		userID: userID,
		remote: remote,
		out:    make(chan protocol.Outbound, size),
		cancel: cancel,
	}
}

func (c *Conn) ID() string { return c.id }

// UserID is the authenticated user behind the connection, empty for guests.
func (c *Conn) UserID() string { return c.userID }

func (c *Conn) Remote() string { return c.remote }

// Send queues an event without blocking.
func (c *Conn) Send(ev protocol.Outbound) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	select {
	case c.out <- ev:
		return nil
	default:
		return ErrBufferFull
	}
}

// Outbox is drained by the write pump. It is closed by Close.
func (c *Conn) Outbox() <-chan protocol.Outbound {
	return c.out
}

// Close stops delivery and cancels the serving context. Safe to call repeatedly.
func (c *Conn) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.out)
	cancel := c.cancel
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
}

// Closed reports whether Close has been called.
func (c *Conn) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}
