package kvstore

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisStore is an optional Store implementation backed by Redis, for
// deployments that want last_prices/available_balance visible to a process
// other than the one running the backtest (e.g. a dashboard). Values are
// JSON-encoded on Set and decoded into a map[string]any/generic shape on
// Get, so callers that need a concrete type should decode the returned
// value themselves; this trades the in-memory store's "opaque pointer"
// sharing for cross-process visibility.
type RedisStore struct {
	client *redis.Client
	prefix string
	ctx    context.Context
}

// NewRedisStore creates a RedisStore. prefix namespaces all keys, since a
// Redis instance may be shared by several engine runs.
func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	return &RedisStore{client: client, prefix: prefix, ctx: context.Background()}
}

func (s *RedisStore) namespaced(key string) string {
	return fmt.Sprintf("%s:%s", s.prefix, key)
}

// Get returns the JSON-decoded value for key, or (nil, false) if absent or
// on a decode error.
func (s *RedisStore) Get(key string) (any, bool) {
	raw, err := s.client.Get(s.ctx, s.namespaced(key)).Bytes()
	if err != nil {
		return nil, false
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, false
	}
	return v, true
}

// GetOrDefault returns the value for key, or def if absent.
func (s *RedisStore) GetOrDefault(key string, def any) any {
	if v, ok := s.Get(key); ok {
		return v
	}
	return def
}

// Set JSON-encodes value and stores it under key with no expiry.
func (s *RedisStore) Set(key string, value any) {
	raw, err := json.Marshal(value)
	if err != nil {
		return
	}
	s.client.Set(s.ctx, s.namespaced(key), raw, 0)
}

// Delete removes key.
func (s *RedisStore) Delete(key string) {
	s.client.Del(s.ctx, s.namespaced(key))
}

// Contains reports whether key is present.
func (s *RedisStore) Contains(key string) bool {
	n, err := s.client.Exists(s.ctx, s.namespaced(key)).Result()
	return err == nil && n > 0
}

var _ Store = (*RedisStore)(nil)
