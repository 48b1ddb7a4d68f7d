package carrier

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultRedisPrefix namespaces carrier keys in a shared Redis database.
const DefaultRedisPrefix = "analyticsproxy:carrier:"

// RedisStore shares carrier entries between proxy instances. Expiry is
// enforced by Redis key TTLs.
type RedisStore struct {
	client redis.UniversalClient
	prefix string
}

// NewRedisStore wraps client. An empty prefix defaults to DefaultRedisPrefix.
func NewRedisStore(client redis.UniversalClient, prefix string) *RedisStore {
	if prefix == "" {
		prefix = DefaultRedisPrefix
	}
	return &RedisStore{client: client, prefix: prefix}
}

func (s *RedisStore) key(mccmnc string) string {
	return s.prefix + mccmnc
}

// Get returns the entry for mccmnc; a missing key is not an error.
func (s *RedisStore) Get(ctx context.Context, mccmnc string) (Info, bool, error) {
	data, err := s.client.Get(ctx, s.key(mccmnc)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Info{}, false, nil
	}
	if err != nil {
		return Info{}, false, fmt.Errorf("carrier: redis get %s: %w", mccmnc, err)
	}

	var info Info
	if err := json.Unmarshal(data, &info); err != nil {
		return Info{}, false, fmt.Errorf("carrier: decode cached entry %s: %w", mccmnc, err)
	}
	return info, true, nil
}

// Set stores info with the given ttl.
func (s *RedisStore) Set(ctx context.Context, mccmnc string, info Info, ttl time.Duration) error {
	data, err := json.Marshal(info)
	if err != nil {
		return fmt.Errorf("carrier: encode entry %s: %w", mccmnc, err)
	}
	if err := s.client.Set(ctx, s.key(mccmnc), data, ttl).Err(); err != nil {
		return fmt.Errorf("carrier: redis set %s: %w", mccmnc, err)
	}
	return nil
}

// Delete removes the entry for mccmnc.
func (s *RedisStore) Delete(ctx context.Context, mccmnc string) error {
	if err := s.client.Del(ctx, s.key(mccmnc)).Err(); err != nil {
		return fmt.Errorf("carrier: redis del %s: %w", mccmnc, err)
	}
	return nil
}

// Clear removes every key under the store prefix.
func (s *RedisStore) Clear(ctx context.Context) error {
	var cursor uint64
	for {
		keys, next, err := s.client.Scan(ctx, cursor, s.prefix+"*", 100).Result()
		if err != nil {
			return fmt.Errorf("carrier: redis scan: %w", err)
		}
		if len(keys) > 0 {
			if err := s.client.Del(ctx, keys...).Err(); err != nil {
				return fmt.Errorf("carrier: redis del: %w", err)
			}
		}
		if next == 0 {
			return nil
		}
		cursor = next
	}
}
