package handlers

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/tindahan/api/internal/platform/requestctx"
)

// RateLimiter bounds how often a key may perform an action within a window.
type RateLimiter interface {
	Allow(ctx context.Context, key string) bool
}

type simpleRateLimiter struct {
	limit  int
	window time.Duration
	clock  func() time.Time
	mu     sync.Mutex
	store  map[string]rateEntry
}

type rateEntry struct {
	count int
	reset time.Time
}

// NewMemoryRateLimiter keeps fixed-window counters in process memory.
func NewMemoryRateLimiter(limit int, window time.Duration, clock func() time.Time) RateLimiter {
	if limit <= 0 || window <= 0 {
		return nil
	}
	if clock == nil {
		clock = time.Now
	}
	return &simpleRateLimiter{
		limit:  limit,
		window: window,
		clock:  clock,
		store:  make(map[string]rateEntry),
	}
}

func (l *simpleRateLimiter) Allow(_ context.Context, key string) bool {
	if l == nil {
		return true
	}
	key = normaliseLimiterKey(key)
	now := l.clock()
	l.mu.Lock()
	defer l.mu.Unlock()

	entry, ok := l.store[key]
	if !ok || now.After(entry.reset) {
		l.store[key] = rateEntry{count: 1, reset: now.Add(l.window)}
		l.pruneExpiredLocked(now)
		return true
	}

	if entry.count >= l.limit {
		return false
	}
	entry.count++
	l.store[key] = entry
	return true
}

func (l *simpleRateLimiter) pruneExpiredLocked(now time.Time) {
	for key, entry := range l.store {
		if now.After(entry.reset) {
			delete(l.store, key)
		}
	}
}

type redisRateLimiter struct {
	client   redis.Cmdable
	prefix   string
	limit    int
	window   time.Duration
	fallback RateLimiter
}

// NewRedisRateLimiter shares fixed-window counters across instances via INCR and EXPIRE.
// When Redis errors the decision falls back to an in-process limiter.
func NewRedisRateLimiter(client redis.Cmdable, prefix string, limit int, window time.Duration) RateLimiter {
	if limit <= 0 || window <= 0 {
		return nil
	}
	if client == nil {
		return NewMemoryRateLimiter(limit, window, nil)
	}
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		prefix = "ratelimit"
	}
	return &redisRateLimiter{
		client:   client,
		prefix:   prefix,
		limit:    limit,
		window:   window,
		fallback: NewMemoryRateLimiter(limit, window, nil),
	}
}

func (l *redisRateLimiter) Allow(ctx context.Context, key string) bool {
	redisKey := l.prefix + ":" + normaliseLimiterKey(key)
	count, err := l.client.Incr(ctx, redisKey).Result()
	if err != nil {
		requestctx.Logger(ctx).Warn("rate limiter redis unavailable", zap.Error(err))
		return l.fallback.Allow(ctx, key)
	}
	if count == 1 {
		if err := l.client.Expire(ctx, redisKey, l.window).Err(); err != nil {
			requestctx.Logger(ctx).Warn("rate limiter expire failed", zap.Error(err))
		}
	}
	return count <= int64(l.limit)
}

func normaliseLimiterKey(key string) string {
	key = strings.TrimSpace(key)
	if key == "" {
		return "anonymous"
	}
	return key
}
