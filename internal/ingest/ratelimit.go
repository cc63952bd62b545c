package ingest

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker"
)

// RateLimiter gates telemetry submissions per key (one key per logger).
// Allow reports whether the key may submit now; a refused key must wait out
// the window.
type RateLimiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// MemoryLimiter tracks last-seen timestamps per key in process memory.
type MemoryLimiter struct {
	mu     sync.Mutex
	window time.Duration
	seen   map[string]time.Time

	now func() time.Time
}

// NewMemoryLimiter creates a limiter with the given minimum interval between
// submissions per key.
func NewMemoryLimiter(window time.Duration) *MemoryLimiter {
	return &MemoryLimiter{
		window: window,
		seen:   make(map[string]time.Time),
		now:    time.Now,
	}
}

// Allow records the attempt and reports whether the key was outside its window.
func (l *MemoryLimiter) Allow(ctx context.Context, key string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if last, ok := l.seen[key]; ok && now.Sub(last) < l.window {
		return false, nil
	}
	l.seen[key] = now
	return true, nil
}

// RedisLimiter enforces the window across instances using a SETNX key with a
// TTL equal to the window. Redis failures trip a circuit breaker and the
// limiter fails open: an unhealthy cache must never block devices from
// reporting.
type RedisLimiter struct {
	client *redis.Client
	window time.Duration
	cb     *gobreaker.CircuitBreaker
}

// NewRedisLimiter creates a Redis-backed limiter.
func NewRedisLimiter(client *redis.Client, window time.Duration) *RedisLimiter {
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "ratelimit-redis",
		MaxRequests: 5,
		Interval:    1 * time.Minute,
		Timeout:     2 * time.Minute,
	})

	return &RedisLimiter{
		client: client,
		window: window,
		cb:     cb,
	}
}

// Allow attempts to claim the key's window slot in Redis.
func (l *RedisLimiter) Allow(ctx context.Context, key string) (bool, error) {
	result, err := l.cb.Execute(func() (interface{}, error) {
		return l.client.SetNX(ctx, "ratelimit:"+key, time.Now().Unix(), l.window).Result()
	})
	if err != nil {
		log.Printf("ratelimit: redis unavailable, failing open for %s: %v", key, err)
		return true, nil
	}

	claimed, ok := result.(bool)
	if !ok {
		return true, nil
	}
	return claimed, nil
}
