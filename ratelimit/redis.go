package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// slidingWindow keeps one sorted set per key scored by millisecond timestamp.
var slidingWindow = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local max = tonumber(ARGV[3])

redis.call('ZREMRANGEBYSCORE', key, '-inf', now - window)
if redis.call('ZCARD', key) >= max then
	return 0
end
redis.call('ZADD', key, now, ARGV[4])
redis.call('PEXPIRE', key, window)
return 1
`)

// Redis shares the sliding window across instances.
type Redis struct {
	client redis.Scripter
	prefix string
	max    int
	window time.Duration
	now    func() time.Time
}

func NewRedis(client redis.Scripter, prefix string, max int, window time.Duration) *Redis {
	return &Redis{
		client: client,
		prefix: prefix,
		max:    max,
		window: window,
		now:    time.Now,
	}
}

// SetClock replaces the time source; tests only.
func (r *Redis) SetClock(now func() time.Time) {
	r.now = now
}

func (r *Redis) Allow(ctx context.Context, key string) (bool, error) {
	allowed, err := slidingWindow.Run(ctx, r.client,
		[]string{r.prefix + key},
		r.now().UnixMilli(),
		r.window.Milliseconds(),
		r.max,
		uuid.NewString(),
	).Int()
	if err != nil {
		return false, fmt.Errorf("rate limit script: %w", err)
	}
	return allowed == 1, nil
}
