package session

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	activityKeyPrefix = "session:activity:"
	revokedKeyPrefix  = "session:revoked:"
)

// RedisActivityStore shares session activity across replicas. Keys carry a TTL so
// Redis expires idle sessions without a sweeper.
type RedisActivityStore struct {
	rdb *redis.Client
}

// NewRedisActivityStore creates a RedisActivityStore.
func NewRedisActivityStore(rdb *redis.Client) *RedisActivityStore {
	return &RedisActivityStore{rdb: rdb}
}

func (s *RedisActivityStore) Touch(ctx context.Context, sid string, at time.Time, ttl time.Duration) error {
	return s.rdb.Set(ctx, activityKeyPrefix+sid, at.UnixNano(), ttl).Err()
}

func (s *RedisActivityStore) LastActivity(ctx context.Context, sid string) (time.Time, bool, error) {
	v, err := s.rdb.Get(ctx, activityKeyPrefix+sid).Result()
	if errors.Is(err, redis.Nil) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, err
	}
	ns, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return time.Time{}, false, nil
	}
	return time.Unix(0, ns), true, nil
}

func (s *RedisActivityStore) Revoke(ctx context.Context, sid string, ttl time.Duration) error {
	pipe := s.rdb.TxPipeline()
	pipe.Set(ctx, revokedKeyPrefix+sid, "1", ttl)
	pipe.Del(ctx, activityKeyPrefix+sid)
	_, err := pipe.Exec(ctx)
	return err
}

func (s *RedisActivityStore) IsRevoked(ctx context.Context, sid string) (bool, error) {
	n, err := s.rdb.Exists(ctx, revokedKeyPrefix+sid).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
