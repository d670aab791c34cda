package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/jason-s-yu/chessroom/internal/chat"
	"github.com/jason-s-yu/chessroom/internal/models"
	"github.com/jason-s-yu/chessroom/internal/presence"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var _ chat.Store = (*MessageStore)(nil)

func newStore(t *testing.T) (*MessageStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewMessageStore(rdb, ""), mr
}

func save(t *testing.T, s *MessageStore, from, to, text string) models.Message {
	t.Helper()
	msg, err := s.Save(context.Background(), models.Message{Sender: from, Receiver: to, Text: text})
	require.NoError(t, err)
	return msg
}

func TestConnect(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb, err := Connect(context.Background(), mr.Addr(), 0)
	require.NoError(t, err)
	defer rdb.Close()

	addr := mr.Addr()
	mr.Close()
	_, err = Connect(context.Background(), addr, 0)
	assert.Error(t, err)
}

func TestSaveAssignsIdentity(t *testing.T) {
	s, mr := newStore(t)
	msg := save(t, s, "alice", "bob", "hi")

	assert.NotEqual(t, uuid.Nil, msg.ID)
	assert.False(t, msg.CreatedAt.IsZero())
	assert.False(t, msg.Delivered)
	assert.True(t, mr.Exists("chat:msg:"+msg.ID.String()))
	assert.True(t, mr.Exists("chat:conv:alice:bob"))
}

func TestTimestampsFollowStorageOrder(t *testing.T) {
	s, _ := newStore(t)
	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	clock := fixed
	s.now = func() time.Time { return clock }

	first := save(t, s, "alice", "bob", "one")
	second := save(t, s, "bob", "alice", "two")
	// a clock that steps backwards still yields later stamps
	clock = fixed.Add(-time.Hour)
	third := save(t, s, "alice", "bob", "three")

	assert.Equal(t, fixed, first.CreatedAt)
	assert.Equal(t, fixed.Add(time.Microsecond), second.CreatedAt)
	assert.Equal(t, fixed.Add(2*time.Microsecond), third.CreatedAt)

	clock = fixed.Add(time.Second)
	fourth := save(t, s, "bob", "alice", "four")
	assert.Equal(t, clock, fourth.CreatedAt)

	history, err := s.Conversation(context.Background(), "alice", "bob")
	require.NoError(t, err)
	require.Len(t, history, 4)
	for i, want := range []models.Message{first, second, third, fourth} {
		assert.Equal(t, want.ID, history[i].ID)
		assert.True(t, want.CreatedAt.Equal(history[i].CreatedAt))
		if i > 0 {
			assert.True(t, history[i-1].CreatedAt.Before(history[i].CreatedAt))
		}
	}
}

func TestConversationBothDirectionsInOrder(t *testing.T) {
	s, _ := newStore(t)
	ctx := context.Background()
	save(t, s, "alice", "bob", "one")
	save(t, s, "bob", "alice", "two")
	save(t, s, "alice", "carol", "noise")
	save(t, s, "alice", "bob", "three")

	for _, pair := range [][2]string{{"alice", "bob"}, {"bob", "alice"}} {
		history, err := s.Conversation(ctx, pair[0], pair[1])
		require.NoError(t, err)
		require.Len(t, history, 3)
		assert.Equal(t, []string{"one", "two", "three"}, []string{history[0].Text, history[1].Text, history[2].Text})
	}

	empty, err := s.Conversation(ctx, "x", "y")
	require.NoError(t, err)
	assert.NotNil(t, empty)
	assert.Empty(t, empty)

	all, err := s.All(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 4)
}

func TestUndeliveredAndMarkDelivered(t *testing.T) {
	s, _ := newStore(t)
	ctx := context.Background()
	m1 := save(t, s, "alice", "bob", "one")
	m2 := save(t, s, "alice", "bob", "two")
	save(t, s, "bob", "alice", "reply")

	pending, err := s.Undelivered(ctx, "bob")
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, m1.ID, pending[0].ID)

	require.NoError(t, s.MarkDelivered(ctx, m1.ID, uuid.New()))
	pending, err = s.Undelivered(ctx, "bob")
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, m2.ID, pending[0].ID)

	history, err := s.Conversation(ctx, "alice", "bob")
	require.NoError(t, err)
	require.Len(t, history, 3)
	assert.True(t, history[0].Delivered)
	assert.False(t, history[1].Delivered)

	require.NoError(t, s.MarkDelivered(ctx))
}

type noDirectory struct{}

func (noDirectory) Lookup(string) (presence.Handle, bool) { return nil, false }
func (noDirectory) Register(string, presence.Handle) {}

func TestRelayOverRedis(t *testing.T) {
	s, _ := newStore(t)
	relay := chat.NewRelay(s, noDirectory{}, nil)
	ctx := context.Background()

	_, err := relay.Send(ctx, "alice", "bob", "hello")
	require.NoError(t, err)

	history, err := relay.History(ctx, "bob", "alice")
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.WithinDuration(t, time.Now(), history[0].CreatedAt, time.Minute)
}

func TestStoreUnavailable(t *testing.T) {
	s, mr := newStore(t)
	mr.Close()
	_, err := s.Save(context.Background(), models.Message{Sender: "a", Receiver: "b", Text: "x"})
	assert.Error(t, err)
	_, err = s.All(context.Background())
	assert.Error(t, err)
}
