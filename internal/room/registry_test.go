package room

import (
	"sync"
	"testing"
	"time"

	"github.com/jason-s-yu/chessroom/internal/protocol"
	"github.com/jason-s-yu/chessroom/internal/rules"
	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockMember records every event it receives.
type mockMember struct {
	id     string
	userID string

	mu     sync.Mutex
	events []protocol.Outbound
	fail   error
}

func newMember(id string) *mockMember { return &mockMember{id: id} }

func (m *mockMember) ID() string     { return m.id }
func (m *mockMember) UserID() string { return m.userID }

func (m *mockMember) Send(ev protocol.Outbound) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail != nil {
		return m.fail
	}
	m.events = append(m.events, ev)
	return nil
}

func (m *mockMember) Events() []protocol.Outbound {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]protocol.Outbound(nil), m.events...)
}

func (m *mockMember) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = nil
}

func (m *mockMember) Named(event string) []protocol.Outbound {
	var out []protocol.Outbound
	for _, ev := range m.Events() {
		if ev.Event() == event {
			out = append(out, ev)
		}
	}
	return out
}

func newTestRegistry(t *testing.T) (*Registry, *logtest.Hook) {
	t.Helper()
	logger, hook := logtest.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)
	reg := NewRegistry(rules.NewChessOracle(), time.Hour, logger)
	t.Cleanup(reg.Close)
	return reg, hook
}

func play(t *testing.T, reg *Registry, roomID string, white, black *mockMember, moves ...string) MoveResult {
	t.Helper()
	var res MoveResult
	for i, mv := range moves {
		mover := white
		if i%2 == 1 {
			mover = black
		}
		var err error
		res, err = reg.ApplyMove(roomID, mover.ID(), rules.Move{Notation: mv})
		require.NoError(t, err, "move %d %s", i, mv)
	}
	return res
}

func TestJoin_SeatsWhiteThenBlack(t *testing.T) {
	reg, _ := newTestRegistry(t)
	a, b := newMember("a"), newMember("b")
	start := rules.NewChessOracle().Start()

	res := reg.Join("r1", a)
	assert.True(t, res.Seated)
	assert.Equal(t, rules.White, res.Role)
	assert.Equal(t, protocol.GameState{FEN: start.FEN, Turn: rules.White}, res.State)
	assert.Equal(t, []protocol.Outbound{
		protocol.AssignColor{Color: rules.White},
		protocol.GameState{FEN: start.FEN, Turn: rules.White},
	}, a.Events())

	res = reg.Join("r1", b)
	assert.Equal(t, rules.Black, res.Role)
	assert.Equal(t, []protocol.Outbound{
		protocol.AssignColor{Color: rules.Black},
		protocol.GameState{FEN: start.FEN, Turn: rules.White},
	}, b.Events())
	// the gameState is rebroadcast to the first player too
	assert.Len(t, a.Named(protocol.EventGameState), 2)
	assert.Equal(t, 1, reg.Len())
}

func TestJoin_ThirdArrivalObserves(t *testing.T) {
	reg, _ := newTestRegistry(t)
	a, b, c := newMember("a"), newMember("b"), newMember("c")
	reg.Join("r1", a)
	reg.Join("r1", b)

	res := reg.Join("r1", c)
	assert.False(t, res.Seated)
	assert.Empty(t, res.Role)
	assert.Empty(t, c.Named(protocol.EventAssignColor))
	assert.Len(t, c.Named(protocol.EventGameState), 1)

	// observers receive state changes but cannot move
	_, err := reg.ApplyMove("r1", "c", rules.Move{Notation: "e2e4"})
	assert.ErrorIs(t, err, ErrNotYourTurn)

	_, err = reg.ApplyMove("r1", "a", rules.Move{Notation: "e2e4"})
	require.NoError(t, err)
	assert.Len(t, c.Named(protocol.EventGameState), 2)

	snap, ok := reg.Snapshot("r1")
	require.True(t, ok)
	assert.Len(t, snap.Players, 2)
	assert.Equal(t, 1, snap.Observers)
	assert.Equal(t, 1, snap.Moves)
}

func TestJoin_DuplicateKeepsRole(t *testing.T) {
	reg, _ := newTestRegistry(t)
	a, b := newMember("a"), newMember("b")
	reg.Join("r1", a)
	res := reg.Join("r1", a)
	assert.Equal(t, rules.White, res.Role)

	res = reg.Join("r1", b)
	assert.Equal(t, rules.Black, res.Role)

	snap, _ := reg.Snapshot("r1")
	assert.Len(t, snap.Players, 2)
	assert.Len(t, a.Named(protocol.EventAssignColor), 2)
}

func TestJoin_AuthenticatedUserReclaimsSeat(t *testing.T) {
	reg, _ := newTestRegistry(t)
	a1 := &mockMember{id: "a1", userID: "alice"}
	b := &mockMember{id: "b", userID: "bob"}
	reg.Join("r1", a1)
	reg.Join("r1", b)
	reg.Leave("a1")

	a2 := &mockMember{id: "a2", userID: "alice"}
	res := reg.Join("r1", a2)
	assert.True(t, res.Seated)
	assert.Equal(t, rules.White, res.Role)

	_, err := reg.ApplyMove("r1", "a2", rules.Move{Notation: "e2e4"})
	assert.NoError(t, err)
}

func TestApplyMove_SilentFailures(t *testing.T) {
	reg, hook := newTestRegistry(t)
	a, b := newMember("a"), newMember("b")
	reg.Join("r1", a)
	reg.Join("r1", b)
	a.Reset()
	b.Reset()

	_, err := reg.ApplyMove("nope", "a", rules.Move{Notation: "e2e4"})
	assert.ErrorIs(t, err, ErrUnknownRoom)

	_, err = reg.ApplyMove("r1", "b", rules.Move{Notation: "e7e5"})
	assert.ErrorIs(t, err, ErrNotYourTurn)

	// the same illegal move twice is the same no-op
	for i := 0; i < 2; i++ {
		_, err = reg.ApplyMove("r1", "a", rules.Move{Notation: "e2e5"})
		assert.ErrorIs(t, err, rules.ErrIllegalMove)
	}

	assert.Empty(t, a.Events())
	assert.Empty(t, b.Events())
	snap, _ := reg.Snapshot("r1")
	assert.Equal(t, 0, snap.Moves)
	assert.Equal(t, rules.White, snap.Turn)
	assert.NotEmpty(t, hook.AllEntries())
	assert.Equal(t, logrus.WarnLevel, hook.LastEntry().Level)
}

func TestApplyMove_CheckAlert(t *testing.T) {
	reg, _ := newTestRegistry(t)
	a, b := newMember("a"), newMember("b")
	reg.Join("r1", a)
	reg.Join("r1", b)

	res := play(t, reg, "r1", a, b, "e2e4", "f7f6", "d1h5")
	assert.True(t, res.Assessment.Check)
	assert.Nil(t, res.GameOver)
	assert.Equal(t, []protocol.Outbound{protocol.CheckAlert{Message: protocol.CheckText}}, b.Named(protocol.EventCheckAlert))

	snap, _ := reg.Snapshot("r1")
	assert.Equal(t, Active, snap.Status)
}

func TestApplyMove_CheckmateConcludesOnce(t *testing.T) {
	reg, _ := newTestRegistry(t)
	a := &mockMember{id: "a", userID: "alice"}
	b := &mockMember{id: "b", userID: "bob"}
	reg.Join("r1", a)
	reg.Join("r1", b)

	res := play(t, reg, "r1", a, b, "f2f3", "e7e5", "g2g4", "d8h4")
	require.NotNil(t, res.GameOver)
	assert.Equal(t, protocol.GameOver{Message: "Checkmate! Black wins.", Winner: "Black"}, *res.GameOver)
	assert.Equal(t, Players{White: "alice", Black: "bob"}, res.Players)

	states := len(a.Named(protocol.EventGameState))
	_, err := reg.ApplyMove("r1", "a", rules.Move{Notation: "a2a3"})
	assert.ErrorIs(t, err, ErrConcluded)

	assert.Len(t, a.Named(protocol.EventGameOver), 1)
	assert.Len(t, b.Named(protocol.EventGameOver), 1)
	assert.Empty(t, a.Named(protocol.EventCheckAlert))
	assert.Len(t, a.Named(protocol.EventGameState), states)

	snap, _ := reg.Snapshot("r1")
	assert.Equal(t, Concluded, snap.Status)
}

func TestApplyMove_Stalemate(t *testing.T) {
	reg, _ := newTestRegistry(t)
	a, b := newMember("a"), newMember("b")
	reg.Join("r1", a)
	reg.Join("r1", b)

	res := play(t, reg, "r1", a, b,
		"e3", "a5", "Qh5", "Ra6", "Qxa5", "h5", "h4", "Rah6", "Qxc7", "f6",
		"Qxd7+", "Kf7", "Qxb7", "Qd3", "Qxb8", "Qh7", "Qxc8", "Kg6", "Qe6",
	)
	require.NotNil(t, res.GameOver)
	assert.Equal(t, protocol.Stalemate(), *res.GameOver)
}

func TestApplyMove_RepetitionDraw(t *testing.T) {
	reg, _ := newTestRegistry(t)
	a, b := newMember("a"), newMember("b")
	reg.Join("r1", a)
	reg.Join("r1", b)

	res := play(t, reg, "r1", a, b, "Nf3", "Nf6", "Ng1", "Ng8", "Nf3", "Nf6", "Ng1", "Ng8")
	require.NotNil(t, res.GameOver)
	assert.Equal(t, protocol.Draw(), *res.GameOver)
}

func TestApplyMove_DepartedSeatCannotMove(t *testing.T) {
	reg, _ := newTestRegistry(t)
	a, b := newMember("a"), newMember("b")
	reg.Join("r1", a)
	reg.Join("r1", b)
	reg.Leave("a")

	_, err := reg.ApplyMove("r1", "a", rules.Move{Notation: "e2e4"})
	assert.ErrorIs(t, err, ErrNotYourTurn)
}

func TestNotificationFailureIsLogged(t *testing.T) {
	reg, hook := newTestRegistry(t)
	a := newMember("a")
	a.fail = assert.AnError
	reg.Join("r1", a)

	var found bool
	for _, e := range hook.AllEntries() {
		if e.Message == "room notification not delivered" {
			found = true
			assert.Equal(t, logrus.WarnLevel, e.Level)
		}
	}
	assert.True(t, found)
}

func TestReap_EmptyRoomRemovedAfterDelay(t *testing.T) {
	logger, _ := logtest.NewNullLogger()
	reg := NewRegistry(rules.NewChessOracle(), 20*time.Millisecond, logger)
	defer reg.Close()

	a := newMember("a")
	reg.Join("r1", a)
	reg.Leave("a")

	require.Eventually(t, func() bool { return reg.Len() == 0 }, time.Second, 5*time.Millisecond)
	_, ok := reg.Snapshot("r1")
	assert.False(t, ok)
}

func TestReap_JoinCancelsTimer(t *testing.T) {
	logger, _ := logtest.NewNullLogger()
	reg := NewRegistry(rules.NewChessOracle(), 30*time.Millisecond, logger)
	defer reg.Close()

	reg.Join("r1", newMember("a"))
	reg.Leave("a")
	reg.Join("r1", newMember("b"))

	time.Sleep(90 * time.Millisecond)
	assert.Equal(t, 1, reg.Len())
}

func TestConcurrentJoinsSeatAtMostTwo(t *testing.T) {
	reg, _ := newTestRegistry(t)
	var wg sync.WaitGroup
	members := make([]*mockMember, 20)
	for i := range members {
		members[i] = newMember(string(rune('a' + i)))
		wg.Add(1)
		go func(m *mockMember) {
			defer wg.Done()
			reg.Join("r1", m)
		}(members[i])
	}
	wg.Wait()

	seated := 0
	for _, m := range members {
		seated += len(m.Named(protocol.EventAssignColor))
	}
	assert.Equal(t, 2, seated)
	snap, _ := reg.Snapshot("r1")
	assert.Len(t, snap.Players, 2)
	assert.NotEqual(t, snap.Players[0].Role, snap.Players[1].Role)
	assert.Equal(t, 18, snap.Observers)
}
