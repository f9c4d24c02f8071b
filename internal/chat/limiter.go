// internal/chat/limiter.go
// Sliding-window send limits per author, kept in memory or in redis.
package chat

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Decision is the outcome of a rate check.
type Decision struct {
	Allowed  bool
	Cooldown time.Duration
}

// Limiter bounds how many comments one author may send per window.
type Limiter interface {
	Allow(ctx context.Context, author string) (Decision, error)
	Forget(ctx context.Context, author string) error
}

// MemoryLimiter keeps the last send timestamps of each author in process memory.
type MemoryLimiter struct {
	limit   int
	window  time.Duration
	now     func() time.Time
	mu      sync.Mutex
	windows map[string][]time.Time
}

// NewMemoryLimiter allows limit sends per window for each author.
func NewMemoryLimiter(limit int, window time.Duration, now func() time.Time) *MemoryLimiter {
	if now == nil {
		now = time.Now
	}
	return &MemoryLimiter{
		limit:   limit,
		window:  window,
		now:     now,
		windows: make(map[string][]time.Time),
	}
}

// Allow evicts timestamps older than the window, then either rejects with the remaining
// cooldown or records the current send.
func (l *MemoryLimiter) Allow(_ context.Context, author string) (Decision, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	sent := l.windows[author]
	expired := 0
	for expired < len(sent) && now.Sub(sent[expired]) > l.window {
		expired++
	}
	sent = sent[expired:]

	if len(sent) >= l.limit {
		l.windows[author] = sent
		return Decision{Cooldown: l.window - now.Sub(sent[0])}, nil
	}
	l.windows[author] = append(sent, now)
	return Decision{Allowed: true}, nil
}

// Forget drops the author's window.
func (l *MemoryLimiter) Forget(_ context.Context, author string) error {
	l.mu.Lock()
	delete(l.windows, author)
	l.mu.Unlock()
	return nil
}

// Tracked returns how many authors currently have a window.
func (l *MemoryLimiter) Tracked() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.windows)
}

// KEYS[1]: window key
// ARGV: now (ms), window (ms), limit, unique member
// returns {allowed, cooldown ms}
var slidingWindowScript = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])

redis.call('ZREMRANGEBYSCORE', key, '-inf', now - window - 1)
local count = redis.call('ZCARD', key)
if count >= limit then
    local oldest = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
    return {0, window - (now - tonumber(oldest[2]))}
end

redis.call('ZADD', key, now, ARGV[4])
redis.call('PEXPIRE', key, window)
return {1, 0}
`)

// RedisLimiter keeps windows in redis sorted sets so several server processes share them.
type RedisLimiter struct {
	client redis.UniversalClient
	limit  int
	window time.Duration
	prefix string
	now    func() time.Time
}

// NewRedisLimiter allows limit sends per window for each author, stored under prefix.
func NewRedisLimiter(client redis.UniversalClient, limit int, window time.Duration, prefix string) *RedisLimiter {
	if prefix == "" {
		prefix = "gameroom:chat:rate:"
	}
	return &RedisLimiter{client: client, limit: limit, window: window, prefix: prefix, now: time.Now}
}

// Allow runs the sliding window atomically in redis. When redis fails the send is allowed
// and the error is returned for logging.
func (l *RedisLimiter) Allow(ctx context.Context, author string) (Decision, error) {
	res, err := slidingWindowScript.Run(ctx, l.client,
		[]string{l.prefix + author},
		l.now().UnixMilli(),
		l.window.Milliseconds(),
		l.limit,
		strconv.FormatInt(l.now().UnixNano(), 10)+"-"+uuid.NewString(),
	).Int64Slice()
	if err != nil {
		return Decision{Allowed: true}, fmt.Errorf("redis rate window: %w", err)
	}
	if len(res) != 2 {
		return Decision{Allowed: true}, fmt.Errorf("redis rate window: unexpected reply %v", res)
	}
	if res[0] == 1 {
		return Decision{Allowed: true}, nil
	}
	return Decision{Cooldown: time.Duration(res[1]) * time.Millisecond}, nil
}

// Forget deletes the author's window key.
func (l *RedisLimiter) Forget(ctx context.Context, author string) error {
	if err := l.client.Del(ctx, l.prefix+author).Err(); err != nil {
		return fmt.Errorf("forget rate window: %w", err)
	}
	return nil
}
