package conversation

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/agentoven/larder/internal/reasoning"
)

const keyPrefix = "larder:conversation:"

// RedisStore keeps history in a Redis list per chat so it survives
// restarts and is shared between replicas. Every append refreshes the
// key's expiry, which gives the same sliding inactivity window as the
// in-memory store.
type RedisStore struct {
	rdb *redis.Client
	max int
	ttl time.Duration
}

// NewRedisStore connects to url (redis://...) and verifies the connection.
func NewRedisStore(ctx context.Context, url string, maxMessages int, ttl time.Duration) (*RedisStore, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	rdb := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return newRedisStore(rdb, maxMessages, ttl), nil
}

func newRedisStore(rdb *redis.Client, maxMessages int, ttl time.Duration) *RedisStore {
	if maxMessages <= 0 {
		maxMessages = DefaultMaxMessages
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisStore{rdb: rdb, max: maxMessages, ttl: ttl}
}

func key(chatID int64) string { return keyPrefix + strconv.FormatInt(chatID, 10) }

func (s *RedisStore) Get(ctx context.Context, chatID int64) ([]reasoning.Message, error) {
	raw, err := s.rdb.LRange(ctx, key(chatID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("load conversation: %w", err)
	}
	msgs := make([]reasoning.Message, 0, len(raw))
	for _, r := range raw {
		var m reasoning.Message
		if err := json.Unmarshal([]byte(r), &m); err != nil {
			return nil, fmt.Errorf("decode conversation message: %w", err)
		}
		msgs = append(msgs, m)
	}
	return Trim(msgs, s.max), nil
}

func (s *RedisStore) Append(ctx context.Context, chatID int64, msgs ...reasoning.Message) error {
	if len(msgs) == 0 {
		return nil
	}
	values := make([]any, len(msgs))
	for i, m := range msgs {
		b, err := json.Marshal(m)
		if err != nil {
			return fmt.Errorf("encode conversation message: %w", err)
		}
		values[i] = b
	}

	k := key(chatID)
	_, err := s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.RPush(ctx, k, values...)
		pipe.LTrim(ctx, k, int64(-s.max), -1)
		pipe.Expire(ctx, k, s.ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("append conversation: %w", err)
	}
	return nil
}

func (s *RedisStore) Clear(ctx context.Context, chatID int64) error {
	if err := s.rdb.Del(ctx, key(chatID)).Err(); err != nil {
		return fmt.Errorf("clear conversation: %w", err)
	}
	return nil
}

// Close releases the connection pool.
func (s *RedisStore) Close() error { return s.rdb.Close() }
