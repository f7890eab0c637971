package history

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

const defaultRedisKey = "parley:history"

// RedisStore persists entries in a Redis list so the transcript survives
// restarts. Newest entries sit at the head (LPUSH), and the list is
// trimmed to maxLen on every write.
type RedisStore struct {
	client *redis.Client
	key    string
	maxLen int64
}

// NewRedisStore wraps an existing client. Empty key uses the default,
// non-positive maxLen falls back to 1000.
func NewRedisStore(client *redis.Client, key string, maxLen int64) *RedisStore {
	if key == "" {
		key = defaultRedisKey
	}
	if maxLen <= 0 {
		maxLen = 1000
	}
	return &RedisStore{client: client, key: key, maxLen: maxLen}
}

// DialRedisStore connects to addr and verifies the connection.
func DialRedisStore(ctx context.Context, addr, key string, maxLen int64) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", addr, err)
	}
	return NewRedisStore(client, key, maxLen), nil
}

func (s *RedisStore) Record(ctx context.Context, entry Entry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal history entry: %w", err)
	}
	if err := s.client.LPush(ctx, s.key, data).Err(); err != nil {
		return fmt.Errorf("failed to record history entry: %w", err)
	}
	if err := s.client.LTrim(ctx, s.key, 0, s.maxLen-1).Err(); err != nil {
		return fmt.Errorf("failed to trim history: %w", err)
	}
	return nil
}

// Recent returns up to n entries, newest first.
func (s *RedisStore) Recent(ctx context.Context, n int) ([]Entry, error) {
	stop := int64(n) - 1
	if n <= 0 {
		stop = s.maxLen - 1
	}
	raw, err := s.client.LRange(ctx, s.key, 0, stop).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read history: %w", err)
	}
	entries := make([]Entry, 0, len(raw))
	for _, item := range raw {
		var e Entry
		if err := json.Unmarshal([]byte(item), &e); err != nil {
			// Skip entries written by incompatible versions.
			continue
		}
		entries = append(entries, e)
	}
	return entries, nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
