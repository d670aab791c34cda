package chat

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/jason-s-yu/chessroom/internal/models"
	"github.com/jason-s-yu/chessroom/internal/presence"
	"github.com/jason-s-yu/chessroom/internal/protocol"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

type mockHandle struct {
	id string

	mu     sync.Mutex
	events []protocol.Outbound
	fail   error
}

func (h *mockHandle) ID() string { return h.id }

func (h *mockHandle) Send(ev protocol.Outbound) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.fail != nil {
		return h.fail
	}
	h.events = append(h.events, ev)
	return nil
}

func (h *mockHandle) Received() []models.Message {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []models.Message
	for _, ev := range h.events {
		if rm, ok := ev.(protocol.ReceiveMessage); ok {
			out = append(out, rm.Message)
		}
	}
	return out
}

// brokenStore fails every call.
type brokenStore struct{}

func (brokenStore) Save(context.Context, models.Message) (models.Message, error) {
	return models.Message{}, fmt.Errorf("connection refused")
}
func (brokenStore) Conversation(context.Context, string, string) ([]models.Message, error) {
	return nil, fmt.Errorf("connection refused")
}
func (brokenStore) Undelivered(context.Context, string) ([]models.Message, error) {
	return nil, fmt.Errorf("connection refused")
}
func (brokenStore) MarkDelivered(context.Context, ...uuid.UUID) error {
	return fmt.Errorf("connection refused")
}
func (brokenStore) All(context.Context) ([]models.Message, error) {
	return nil, fmt.Errorf("connection refused")
}

func setup(t *testing.T, store Store) (*Relay, *presence.Directory) {
	t.Helper()
	logger, _ := logtest.NewNullLogger()
	dir := presence.NewDirectory(logger)
	return NewRelay(store, dir, logger), dir
}

func TestSend_OnlineReceiverGetsMessage(t *testing.T) {
	ctx := context.Background()
	relay, dir := setup(t, NewMemoryStore())
	bob := &mockHandle{id: "c-bob"}
	dir.Register("bob", bob)

	msg, err := relay.Send(ctx, "alice", "bob", "hi")
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, msg.ID)
	assert.False(t, msg.CreatedAt.IsZero())
	assert.True(t, msg.Delivered)

	got := bob.Received()
	require.Len(t, got, 1)
	assert.Equal(t, "hi", got[0].Text)

	// nothing left to replay
	n, err := relay.Replay(ctx, "bob", bob)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestSend_OfflineThenReplayExactlyOnce(t *testing.T) {
	ctx := context.Background()
	relay, dir := setup(t, NewMemoryStore())

	_, err := relay.Send(ctx, "alice", "bob", "first")
	require.NoError(t, err)
	_, err = relay.Send(ctx, "alice", "bob", "second")
	require.NoError(t, err)

	history, err := relay.History(ctx, "bob", "alice")
	require.NoError(t, err)
	assert.Len(t, history, 2)

	bob := &mockHandle{id: "c-bob"}
	dir.Register("bob", bob)
	n, err := relay.Replay(ctx, "bob", bob)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	got := bob.Received()
	require.Len(t, got, 2)
	assert.Equal(t, "first", got[0].Text)
	assert.Equal(t, "second", got[1].Text)

	// reconnect on a new connection: nothing is replayed twice
	bob2 := &mockHandle{id: "c-bob-2"}
	dir.Register("bob", bob2)
	n, err = relay.Replay(ctx, "bob", bob2)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Empty(t, bob2.Received())
}

func TestReplay_StopsAtRefusedHandle(t *testing.T) {
	ctx := context.Background()
	relay, _ := setup(t, NewMemoryStore())
	_, _ = relay.Send(ctx, "alice", "bob", "one")

	full := &mockHandle{id: "full", fail: assert.AnError}
	n, err := relay.Replay(ctx, "bob", full)
	require.NoError(t, err)
	assert.Zero(t, n)

	ok := &mockHandle{id: "ok"}
	n, err = relay.Replay(ctx, "bob", ok)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestSend_FailedLiveDeliveryIsReplayedLater(t *testing.T) {
	ctx := context.Background()
	relay, dir := setup(t, NewMemoryStore())
	dir.Register("bob", &mockHandle{id: "full", fail: assert.AnError})

	msg, err := relay.Send(ctx, "alice", "bob", "hi")
	require.NoError(t, err)
	assert.False(t, msg.Delivered)

	bob := &mockHandle{id: "c-bob"}
	n, err := relay.Join(ctx, "bob", bob)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Len(t, bob.Received(), 1)
}

func TestReplay_SupersededHandleGetsNothing(t *testing.T) {
	ctx := context.Background()
	relay, dir := setup(t, NewMemoryStore())
	_, err := relay.Send(ctx, "alice", "bob", "hi")
	require.NoError(t, err)

	old, newer := &mockHandle{id: "c-old"}, &mockHandle{id: "c-new"}
	dir.Register("bob", old)
	dir.Register("bob", newer)

	n, err := relay.Replay(ctx, "bob", old)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Empty(t, old.Received())

	n, err = relay.Replay(ctx, "bob", newer)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestJoin_BacklogPrecedesLiveMessages(t *testing.T) {
	ctx := context.Background()
	relay, _ := setup(t, NewMemoryStore())
	for i := 0; i < 20; i++ {
		_, err := relay.Send(ctx, "alice", "bob", fmt.Sprintf("b%d", i))
		require.NoError(t, err)
	}

	bob := &mockHandle{id: "c-bob"}
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 20; i++ {
			_, err := relay.Send(ctx, "alice", "bob", fmt.Sprintf("l%d", i))
			assert.NoError(t, err)
		}
	}()
	go func() {
		defer wg.Done()
		_, err := relay.Join(ctx, "bob", bob)
		assert.NoError(t, err)
	}()
	wg.Wait()

	// whatever the interleaving, every message arrives once, backlog first,
	// in storage order
	history, err := relay.History(ctx, "alice", "bob")
	require.NoError(t, err)
	require.Len(t, history, 40)
	got := bob.Received()
	require.Len(t, got, 40)
	for i := range history {
		assert.Equal(t, history[i].ID, got[i].ID, "message %d", i)
	}
	for i := 0; i < 20; i++ {
		assert.Equal(t, fmt.Sprintf("b%d", i), got[i].Text)
	}
}

func TestInboxLocksAreReleased(t *testing.T) {
	ctx := context.Background()
	relay, dir := setup(t, NewMemoryStore())
	dir.Register("bob", &mockHandle{id: "c-bob"})

	for i := 0; i < 50; i++ {
		_, err := relay.Send(ctx, "alice", fmt.Sprintf("user-%d", i), "hi")
		require.NoError(t, err)
	}
	_, err := relay.Send(ctx, "alice", "bob", "hi")
	require.NoError(t, err)
	_, err = relay.Join(ctx, "carol", &mockHandle{id: "c-carol"})
	require.NoError(t, err)

	assert.Zero(t, relay.inboxes.len())
}

func TestSend_StoreUnavailableSkipsDelivery(t *testing.T) {
	relay, dir := setup(t, brokenStore{})
	bob := &mockHandle{id: "c-bob"}
	dir.Register("bob", bob)

	_, err := relay.Send(context.Background(), "alice", "bob", "hi")
	assert.ErrorIs(t, err, ErrStoreUnavailable)
	assert.Empty(t, bob.Received())

	_, err = relay.History(context.Background(), "alice", "bob")
	assert.ErrorIs(t, err, ErrStoreUnavailable)
	_, err = relay.Replay(context.Background(), "bob", bob)
	assert.ErrorIs(t, err, ErrStoreUnavailable)
}

func TestSend_Invalid(t *testing.T) {
	relay, _ := setup(t, NewMemoryStore())
	for _, tc := range [][3]string{{"", "b", "x"}, {"a", " ", "x"}, {"a", "b", "  "}} {
		_, err := relay.Send(context.Background(), tc[0], tc[1], tc[2])
		assert.ErrorIs(t, err, ErrInvalidMessage)
	}
}

func TestInvite(t *testing.T) {
	relay, dir := setup(t, NewMemoryStore())
	bob := &mockHandle{id: "c-bob"}
	dir.Register("bob", bob)

	assert.True(t, relay.Invite("alice", "bob"))
	assert.False(t, relay.Invite("alice", "carol"))
	assert.Equal(t, []protocol.Outbound{protocol.InviteReceived{FromUser: "alice"}}, bob.events)
}

func TestProp_HistoryRoundTrip(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		ctx := context.Background()
		logger, _ := logtest.NewNullLogger()
		dir := presence.NewDirectory(logger)
		relay := NewRelay(NewMemoryStore(), dir, logger)

		if rapid.Bool().Draw(rt, "bobOnline") {
			dir.Register("bob", &mockHandle{id: "c-bob"})
		}

		n := rapid.IntRange(0, 30).Draw(rt, "n")
		var texts []string
		for i := 0; i < n; i++ {
			from, to := "alice", "bob"
			if rapid.Bool().Draw(rt, "reverse") {
				from, to = to, from
			}
			text := fmt.Sprintf("m%d", i)
			if _, err := relay.Send(ctx, from, to, text); err != nil {
				rt.Fatal(err)
			}
			// unrelated traffic must not leak into the conversation
			if _, err := relay.Send(ctx, "alice", "carol", "noise"); err != nil {
				rt.Fatal(err)
			}
			texts = append(texts, text)
		}

		history, err := relay.History(ctx, "alice", "bob")
		if err != nil {
			rt.Fatal(err)
		}
		if len(history) != n {
			rt.Fatalf("got %d messages, want %d", len(history), n)
		}
		for i, m := range history {
			if m.Text != texts[i] {
				rt.Fatalf("message %d is %q, want %q", i, m.Text, texts[i])
			}
			if i > 0 && !history[i-1].CreatedAt.Before(m.CreatedAt) {
				rt.Fatalf("timestamps not ascending at %d", i)
			}
		}
	})
}
