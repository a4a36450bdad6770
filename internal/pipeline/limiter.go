package pipeline

import (
	"context"
	"time"

	"callqa/pkg/utils"

	"github.com/redis/go-redis/v9"
)

// Limiter caps how many runs execute at once across all API processes.
type Limiter interface {
	Acquire(ctx context.Context) (bool, error)
	Release(ctx context.Context) error
}

const inFlightKey = "callqa:pipeline:inflight"

// RedisLimiter shares the cap between processes through a redis counter.
// The counter TTL bounds slots leaked by a crashed process.
type RedisLimiter struct {
	rdb   redis.Scripter
	limit int
	ttl   time.Duration
}

func NewRedisLimiter(rdb redis.Scripter, limit int, ttl time.Duration) *RedisLimiter {
	return &RedisLimiter{rdb: rdb, limit: limit, ttl: ttl}
}

func (l *RedisLimiter) Acquire(ctx context.Context) (bool, error) {
	return utils.AcquireConcurrencyCap(ctx, l.rdb, inFlightKey, l.limit, l.ttl)
}

func (l *RedisLimiter) Release(ctx context.Context) error {
	return utils.ReleaseConcurrencyCap(ctx, l.rdb, inFlightKey)
}

// LocalLimiter is a process-local cap.
type LocalLimiter struct {
	slots chan struct{}
}

func NewLocalLimiter(limit int) *LocalLimiter {
	if limit <= 0 {
		limit = 1
	}
	return &LocalLimiter{slots: make(chan struct{}, limit)}
}

func (l *LocalLimiter) Acquire(context.Context) (bool, error) {
	select {
	case l.slots <- struct{}{}:
		return true, nil
	default:
		return false, nil
	}
}

func (l *LocalLimiter) Release(context.Context) error {
	select {
	case <-l.slots:
	default:
	}
	return nil
}
