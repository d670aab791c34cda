// internal/room/registry.go
package room

import (
	"fmt"
	"sync"
	"time"

	"github.com/jason-s-yu/chessroom/internal/protocol"
	"github.com/jason-s-yu/chessroom/internal/rules"
	"github.com/sirupsen/logrus"
)

// DefaultReapAfter is how long an empty room survives before it is removed.
const DefaultReapAfter = 5 * time.Minute

// Registry owns every room in the process. Rooms are created on first join and
// removed ReapAfter after their last live member leaves.
//
// Lock order is registry then room.
type Registry struct {
	mu     sync.Mutex
	rooms  map[string]*Room
	closed bool

	oracle    rules.Oracle
	reapAfter time.Duration
	log       logrus.FieldLogger
}

// NewRegistry creates an empty registry. A non-positive reapAfter uses DefaultReapAfter.
func NewRegistry(oracle rules.Oracle, reapAfter time.Duration, logger logrus.FieldLogger) *Registry {
	if reapAfter <= 0 {
		reapAfter = DefaultReapAfter
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Registry{
		rooms:     make(map[string]*Room),
		oracle:    oracle,
		reapAfter: reapAfter,
		log:       logger,
	}
}

// JoinResult is what a joiner ends up with.
type JoinResult struct {
	Role   rules.Role
	Seated bool
	State  protocol.GameState
}

// Join enters m into roomID, creating the room if needed. The first two
// distinct connections are seated White then Black; anyone after that observes.
// The joiner gets assignColor when seated, then the whole room gets gameState.
func (reg *Registry) Join(roomID string, m Member) JoinResult {
	reg.mu.Lock()
	rm, ok := reg.rooms[roomID]
	if !ok {
		rm = newRoom(roomID, reg.oracle.Start())
		reg.rooms[roomID] = rm
		reg.log.WithField("room_id", roomID).Info("room created")
	}
	rm.mu.Lock()
	reg.mu.Unlock()
	defer rm.mu.Unlock()

	rm.cancelReapUnsafe()
	role, seated := rm.claimSeat(m)
	rm.members[m.ID()] = m

	entry := reg.log.WithFields(logrus.Fields{
		"room_id": roomID,
		"conn_id": m.ID(),
		"user_id": m.UserID(),
	})
	if seated {
		entry.WithField("role", role).Info("joined room")
		reg.deliver(rm, m, protocol.AssignColor{Color: role})
	} else {
		entry.Info("joined room as observer")
	}

	state := rm.stateUnsafe()
	reg.broadcastUnsafe(rm, state)
	return JoinResult{Role: role, Seated: seated, State: state}
}

// MoveResult describes an accepted move.
type MoveResult struct {
	State      protocol.GameState
	Assessment rules.Assessment
	// GameOver is set when the move concluded the room.
	GameOver *protocol.GameOver
	Players  Players
}

// ApplyMove validates and plays mv for the connection connID. Every failure is
// silent towards clients: nothing is broadcast and the position is unchanged.
func (reg *Registry) ApplyMove(roomID, connID string, mv rules.Move) (MoveResult, error) {
	entry := reg.log.WithFields(logrus.Fields{"room_id": roomID, "conn_id": connID, "move": mv.UCI()})

	reg.mu.Lock()
	rm, ok := reg.rooms[roomID]
	reg.mu.Unlock()
	if !ok {
		entry.Warn("move for unknown room dropped")
		return MoveResult{}, ErrUnknownRoom
	}

	rm.mu.Lock()
	defer rm.mu.Unlock()

	if rm.status == Concluded {
		entry.Info("move after game over dropped")
		return MoveResult{}, ErrConcluded
	}
	i := rm.seatOf(connID)
	if i < 0 || rm.seats[i].role != rm.turn {
		entry.WithField("turn", rm.turn).Warn("move out of turn dropped")
		return MoveResult{}, ErrNotYourTurn
	}
	if _, live := rm.members[connID]; !live {
		entry.Warn("move from departed connection dropped")
		return MoveResult{}, ErrNotYourTurn
	}

	next, err := reg.oracle.Apply(rm.position, mv)
	if err != nil {
		entry.WithError(err).Warn("illegal move dropped")
		return MoveResult{}, fmt.Errorf("room %s: %w", roomID, err)
	}
	assessment := reg.oracle.Assess(next)
	rm.position = next
	rm.turn = assessment.Turn

	res := MoveResult{
		State:      rm.stateUnsafe(),
		Assessment: assessment,
		Players:    rm.playersUnsafe(),
	}
	reg.broadcastUnsafe(rm, res.State)

	var over *protocol.GameOver
	switch {
	case assessment.Checkmate:
		g := protocol.Checkmate(assessment.Turn.Opponent())
		over = &g
	case assessment.Stalemate:
		g := protocol.Stalemate()
		over = &g
	case assessment.Draw:
		g := protocol.Draw()
		over = &g
	case assessment.Check:
		reg.broadcastUnsafe(rm, protocol.CheckAlert{Message: protocol.CheckText})
	}
	if over != nil {
		rm.status = Concluded
		res.GameOver = over
		reg.broadcastUnsafe(rm, *over)
		entry.WithFields(logrus.Fields{"winner": over.Winner, "method": assessment.Method}).Info("game over")
	}
	return res, nil
}

// Leave removes connID from the live member set of every room. Seats stay
// reserved. Rooms left without live members are scheduled for reaping.
func (reg *Registry) Leave(connID string) {
	reg.mu.Lock()
	rooms := make([]*Room, 0, len(reg.rooms))
	for _, rm := range reg.rooms {
		rooms = append(rooms, rm)
	}
	reg.mu.Unlock()

	for _, rm := range rooms {
		rm.mu.Lock()
		if _, ok := rm.members[connID]; ok {
			delete(rm.members, connID)
			reg.log.WithFields(logrus.Fields{"room_id": rm.ID, "conn_id": connID}).Debug("left room")
			if len(rm.members) == 0 {
				reg.scheduleReapUnsafe(rm)
			}
		}
		rm.mu.Unlock()
	}
}

// Snapshot returns a view of roomID.
func (reg *Registry) Snapshot(roomID string) (Snapshot, bool) {
	reg.mu.Lock()
	rm, ok := reg.rooms[roomID]
	reg.mu.Unlock()
	if !ok {
		return Snapshot{}, false
	}
	rm.mu.Lock()
	defer rm.mu.Unlock()
	return rm.snapshotUnsafe(), true
}

// Len is the number of rooms currently held.
func (reg *Registry) Len() int {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	return len(reg.rooms)
}

// Close stops every pending reap timer. Rooms are kept so that in-flight
// requests can finish.
func (reg *Registry) Close() {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	reg.closed = true
	for _, rm := range reg.rooms {
		rm.mu.Lock()
		rm.cancelReapUnsafe()
		rm.mu.Unlock()
	}
}

// scheduleReapUnsafe arms the reap timer. Assumes the room lock is held.
func (reg *Registry) scheduleReapUnsafe(rm *Room) {
	rm.cancelReapUnsafe()
	gen := rm.reapGen
	rm.reapTimer = time.AfterFunc(reg.reapAfter, func() {
		reg.reap(rm, gen)
	})
}

func (reg *Registry) reap(rm *Room, gen uint64) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	if reg.closed || reg.rooms[rm.ID] != rm {
		return
	}
	rm.mu.Lock()
	defer rm.mu.Unlock()
	// a join or a newer schedule happened after this timer fired
	if rm.reapGen != gen || len(rm.members) > 0 {
		return
	}
	rm.reapTimer = nil
	delete(reg.rooms, rm.ID)
	reg.log.WithFields(logrus.Fields{"room_id": rm.ID, "status": rm.status}).Info("room reaped")
}

func (r *Room) cancelReapUnsafe() {
	r.reapGen++
	if r.reapTimer != nil {
		r.reapTimer.Stop()
		r.reapTimer = nil
	}
}

// broadcastUnsafe sends ev to every live member. Assumes the room lock is held.
func (reg *Registry) broadcastUnsafe(rm *Room, ev protocol.Outbound) {
	for _, m := range rm.members {
		reg.deliver(rm, m, ev)
	}
}

func (reg *Registry) deliver(rm *Room, m Member, ev protocol.Outbound) {
	if err := m.Send(ev); err != nil {
		reg.log.WithFields(logrus.Fields{
			"room_id": rm.ID,
			"conn_id": m.ID(),
			"event":   ev.Event(),
		}).WithError(err).Warn("room notification not delivered")
	}
}
