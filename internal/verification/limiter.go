package verification

import (
	"context"
	"sync"
	"time"

	"github.com/go-redis/redis_rate/v10"
	"github.com/redis/go-redis/v9"
)

// AttemptLimiter bounds verification attempts per access code.
type AttemptLimiter interface {
	// Allow records one attempt and reports whether it is within the limit.
	Allow(ctx context.Context, key string) (bool, error)
	// Reset clears the attempt history for key.
	Reset(ctx context.Context, key string) error
}

const limiterKeyPrefix = "verification:attempts:"

// RedisAttemptLimiter shares attempt counts across replicas using redis_rate (GCRA).
type RedisAttemptLimiter struct {
	limiter *redis_rate.Limiter
	limit   redis_rate.Limit
}

// NewRedisAttemptLimiter allows max attempts per window for each key.
func NewRedisAttemptLimiter(rdb *redis.Client, max int, window time.Duration) *RedisAttemptLimiter {
	return &RedisAttemptLimiter{
		limiter: redis_rate.NewLimiter(rdb),
		limit:   redis_rate.Limit{Rate: max, Burst: max, Period: window},
	}
}

func (l *RedisAttemptLimiter) Allow(ctx context.Context, key string) (bool, error) {
	res, err := l.limiter.Allow(ctx, limiterKeyPrefix+key, l.limit)
	if err != nil {
		return false, err
	}
	return res.Allowed > 0, nil
}

func (l *RedisAttemptLimiter) Reset(ctx context.Context, key string) error {
	return l.limiter.Reset(ctx, limiterKeyPrefix+key)
}

// MemoryAttemptLimiter is a sliding-window limiter for single-replica deployments.
type MemoryAttemptLimiter struct {
	mu       sync.Mutex
	max      int
	window   time.Duration
	attempts map[string][]time.Time
	now      func() time.Time
}

// NewMemoryAttemptLimiter allows max attempts per window for each key.
func NewMemoryAttemptLimiter(max int, window time.Duration) *MemoryAttemptLimiter {
	return &MemoryAttemptLimiter{
		max:      max,
		window:   window,
		attempts: make(map[string][]time.Time),
		now:      time.Now,
	}
}

func (l *MemoryAttemptLimiter) Allow(_ context.Context, key string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	cutoff := now.Add(-l.window)
	kept := l.attempts[key][:0]
	for _, t := range l.attempts[key] {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	if len(kept) >= l.max {
		l.attempts[key] = kept
		return false, nil
	}
	l.attempts[key] = append(kept, now)
	return true, nil
}

func (l *MemoryAttemptLimiter) Reset(_ context.Context, key string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.attempts, key)
	return nil
}

// Sweep drops keys whose attempts have all left the window.
func (l *MemoryAttemptLimiter) Sweep() {
	l.mu.Lock()
	defer l.mu.Unlock()
	cutoff := l.now().Add(-l.window)
	for key, times := range l.attempts {
		if len(times) == 0 || !times[len(times)-1].After(cutoff) {
			delete(l.attempts, key)
		}
	}
}
