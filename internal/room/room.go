// internal/room/room.go
package room

import (
	"errors"
	"sync"
	"time"

	"github.com/jason-s-yu/chessroom/internal/protocol"
	"github.com/jason-s-yu/chessroom/internal/rules"
)

var (
	// ErrUnknownRoom is returned for moves addressed to a room that does not exist.
	ErrUnknownRoom = errors.New("unknown room")
	// ErrNotYourTurn is returned when the proposer is not seated on the side to move.
	ErrNotYourTurn = errors.New("not your turn")
	// ErrConcluded is returned for moves submitted after the game ended.
	ErrConcluded = errors.New("room concluded")
)

// Status is the lifecycle state of a room.
type Status string

const (
	Active    Status = "ACTIVE"
	Concluded Status = "CONCLUDED"
)

// Member is a connection that can sit in a room.
type Member interface {
	ID() string
	UserID() string
	Send(protocol.Outbound) error
}

// seat is a reserved side. It stays bound to connID after that connection leaves.
type seat struct {
	connID string
	userID string
	role   rules.Role
}

// Room is one game between up to two seated connections plus any observers.
type Room struct {
	ID string

	mu       sync.Mutex
	position rules.Position
	turn     rules.Role
	status   Status
	seats    []seat
	// members holds every live connection in the room keyed by connection id.
	members map[string]Member

	reapTimer *time.Timer
	reapGen   uint64
}

func newRoom(id string, start rules.Position) *Room {
	return &Room{
		ID:       id,
		position: start,
		turn:     rules.White,
		status:   Active,
		members:  make(map[string]Member),
	}
}

// seatOf returns the index of the seat held by connID, or -1.
func (r *Room) seatOf(connID string) int {
	for i, s := range r.seats {
		if s.connID == connID {
			return i
		}
	}
	return -1
}

// claimSeat finds or assigns a seat for m. Assumes lock is held.
func (r *Room) claimSeat(m Member) (rules.Role, bool) {
	if i := r.seatOf(m.ID()); i >= 0 {
		return r.seats[i].role, true
	}

	// An authenticated user whose previous connection dropped takes their seat back.
	if uid := m.UserID(); uid != "" {
		for i, s := range r.seats {
			if s.userID != uid {
				continue
			}
			if _, live := r.members[s.connID]; live {
				continue
			}
			r.seats[i].connID = m.ID()
			return s.role, true
		}
	}

	if len(r.seats) >= 2 {
		return "", false
	}
	role := rules.White
	if len(r.seats) == 1 {
		role = r.seats[0].role.Opponent()
	}
	r.seats = append(r.seats, seat{connID: m.ID(), userID: m.UserID(), role: role})
	return role, true
}

func (r *Room) stateUnsafe() protocol.GameState {
	return protocol.GameState{FEN: r.position.FEN, Turn: r.turn}
}

func (r *Room) playersUnsafe() Players {
	var p Players
	for _, s := range r.seats {
		switch s.role {
		case rules.White:
			p.White = s.userID
		case rules.Black:
			p.Black = s.userID
		}
	}
	return p
}

// Players are the user ids in the two seats. Guests are empty.
type Players struct {
	White string
	Black string
}

// PlayerInfo describes one seat in a Snapshot.
type PlayerInfo struct {
	Role      rules.Role `json:"role"`
	UserID    string     `json:"userId,omitempty"`
	Connected bool       `json:"connected"`
}

// Snapshot is a read-only view of a room.
type Snapshot struct {
	ID        string       `json:"id"`
	FEN       string       `json:"fen"`
	Turn      rules.Role   `json:"turn"`
	Status    Status       `json:"status"`
	Moves     int          `json:"moves"`
	Players   []PlayerInfo `json:"players"`
	Observers int          `json:"observers"`
}

func (r *Room) snapshotUnsafe() Snapshot {
	snap := Snapshot{
		ID:      r.ID,
		FEN:     r.position.FEN,
		Turn:    r.turn,
		Status:  r.status,
		Moves:   len(r.position.Moves),
		Players: make([]PlayerInfo, 0, len(r.seats)),
	}
	seated := 0
	for _, s := range r.seats {
		_, live := r.members[s.connID]
		if live {
			seated++
		}
		snap.Players = append(snap.Players, PlayerInfo{Role: s.role, UserID: s.userID, Connected: live})
	}
	snap.Observers = len(r.members) - seated
	return snap
}
