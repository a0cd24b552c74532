// Package activeprofile holds the per-user "current profile" pointer.
package activeprofile

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const DefaultTTL = 30 * 24 * time.Hour

// clearIfLua deletes KEYS[1] only while it still holds ARGV[1].
var clearIfLua = redis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
  return redis.call('DEL', KEYS[1])
end
return 0
`)

// RedisStore keeps pointers under "profile:current:<user id>" with a
// sliding TTL. Concurrent Set calls for one user are last-write-wins.
type RedisStore struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
}

func NewRedisStore(client redis.UniversalClient, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisStore{client: client, prefix: "profile:current:", ttl: ttl}
}

func (s *RedisStore) key(userID string) string {
	return s.prefix + userID
}

func (s *RedisStore) Get(ctx context.Context, userID string) (string, bool, error) {
	id, err := s.client.Get(ctx, s.key(userID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("get active profile: %w", err)
	}
	return id, true, nil
}

func (s *RedisStore) Set(ctx context.Context, userID, profileID string) error {
	if err := s.client.Set(ctx, s.key(userID), profileID, s.ttl).Err(); err != nil {
		return fmt.Errorf("set active profile: %w", err)
	}
	return nil
}

func (s *RedisStore) ClearIf(ctx context.Context, userID, profileID string) error {
	if err := clearIfLua.Run(ctx, s.client, []string{s.key(userID)}, profileID).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("clear active profile: %w", err)
	}
	return nil
}

func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
