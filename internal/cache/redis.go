// internal/cache/redis.go
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jason-s-yu/chessroom/internal/models"
	"github.com/redis/go-redis/v9"
)

// DefaultPrefix namespaces every key the message store writes.
const DefaultPrefix = "chat"

// Connect opens a Redis client and pings it once.
func Connect(ctx context.Context, addr string, db int) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr: addr,
		DB:   db,
	})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", addr, err)
	}
	return rdb, nil
}

// stampScript issues strictly increasing microsecond timestamps. The caller's
// clock wins unless it is not ahead of the last stamp, in which case the last
// stamp is bumped by one.
var stampScript = redis.NewScript(`
local last = tonumber(redis.call('GET', KEYS[1]) or '0')
if tonumber(ARGV[1]) > last then
	redis.call('SET', KEYS[1], ARGV[1])
	return tonumber(ARGV[1])
end
return redis.call('INCR', KEYS[1])
`)

// MessageStore keeps chat messages in Redis. Each message is a JSON blob;
// ordering comes from sorted sets scored by the message's creation stamp in
// microseconds, so storage order and CreatedAt always agree:
//
//	<prefix>:clock               last issued stamp
//	<prefix>:msg:<id>            JSON message
//	<prefix>:conv:<a>:<b>        conversation, a < b
//	<prefix>:inbox:<receiver>    undelivered ids
//	<prefix>:all                 every id
type MessageStore struct {
	rdb    *redis.Client
	prefix string
	now    func() time.Time
}

// NewMessageStore returns a store writing under prefix (DefaultPrefix when empty).
func NewMessageStore(rdb *redis.Client, prefix string) *MessageStore {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &MessageStore{rdb: rdb, prefix: prefix, now: time.Now}
}

func (s *MessageStore) key(parts ...string) string {
	k := s.prefix
	for _, p := range parts {
		k += ":" + p
	}
	return k
}

func (s *MessageStore) convKey(a, b string) string {
	if b < a {
		a, b = b, a
	}
	return s.key("conv", a, b)
}

// Save assigns an id and a timestamp unique to this store, then writes the blob and its index entries
// in a single MULTI/EXEC.
func (s *MessageStore) Save(ctx context.Context, msg models.Message) (models.Message, error) {
	stamp, err := stampScript.Run(ctx, s.rdb, []string{s.key("clock")}, s.now().UnixMicro()).Int64()
	if err != nil {
		return models.Message{}, fmt.Errorf("failed to allocate message timestamp: %w", err)
	}

	msg.ID = uuid.New()
	msg.CreatedAt = time.UnixMicro(stamp).UTC()
	msg.Delivered = false

	data, err := json.Marshal(msg)
	if err != nil {
		return models.Message{}, fmt.Errorf("failed to marshal message: %w", err)
	}

	id := msg.ID.String()
	member := redis.Z{Score: float64(stamp), Member: id}
	_, err = s.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Set(ctx, s.key("msg", id), data, 0)
		p.ZAdd(ctx, s.convKey(msg.Sender, msg.Receiver), member)
		p.ZAdd(ctx, s.key("inbox", msg.Receiver), member)
		p.ZAdd(ctx, s.key("all"), member)
		return nil
	})
	if err != nil {
		return models.Message{}, fmt.Errorf("failed to store message %s: %w", id, err)
	}
	return msg, nil
}

func (s *MessageStore) Conversation(ctx context.Context, a, b string) ([]models.Message, error) {
	return s.list(ctx, s.convKey(a, b))
}

func (s *MessageStore) Undelivered(ctx context.Context, receiver string) ([]models.Message, error) {
	return s.list(ctx, s.key("inbox", receiver))
}

func (s *MessageStore) All(ctx context.Context) ([]models.Message, error) {
	return s.list(ctx, s.key("all"))
}

// MarkDelivered rewrites each blob with Delivered set and drops it from the
// receiver's inbox. Unknown ids are ignored.
func (s *MessageStore) MarkDelivered(ctx context.Context, ids ...uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = s.key("msg", id.String())
	}
	msgs, err := s.load(ctx, keys)
	if err != nil {
		return err
	}
	if len(msgs) == 0 {
		return nil
	}

	_, err = s.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		for _, msg := range msgs {
			msg.Delivered = true
			data, err := json.Marshal(msg)
			if err != nil {
				return fmt.Errorf("failed to marshal message: %w", err)
			}
			id := msg.ID.String()
			p.Set(ctx, s.key("msg", id), data, 0)
			p.ZRem(ctx, s.key("inbox", msg.Receiver), id)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to mark messages delivered: %w", err)
	}
	return nil
}

func (s *MessageStore) list(ctx context.Context, index string) ([]models.Message, error) {
	ids, err := s.rdb.ZRange(ctx, index, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", index, err)
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = s.key("msg", id)
	}
	return s.load(ctx, keys)
}

// load fetches blobs in key order, skipping keys that no longer exist.
func (s *MessageStore) load(ctx context.Context, keys []string) ([]models.Message, error) {
	out := make([]models.Message, 0, len(keys))
	if len(keys) == 0 {
		return out, nil
	}
	vals, err := s.rdb.MGet(ctx, keys...).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("failed to load messages: %w", err)
	}
	for i, v := range vals {
		raw, ok := v.(string)
		if !ok {
			continue
		}
		var msg models.Message
		if err := json.Unmarshal([]byte(raw), &msg); err != nil {
			return nil, fmt.Errorf("corrupt message at %s: %w", keys[i], err)
		}
		out = append(out, msg)
	}
	return out, nil
}
