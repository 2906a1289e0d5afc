package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "ratelimit:"

// incrementScript bumps the counter and starts the window on the first hit.
// Key expiry ends the window.
var incrementScript = redis.NewScript(`
local count = redis.call('INCR', KEYS[1])
if count == 1 then
	redis.call('PEXPIRE', KEYS[1], ARGV[1])
end
return count
`)

// RedisCounter shares counters between server instances. Memory is
// bounded by key expiry.
type RedisCounter struct {
	rdb redis.Scripter
}

func NewRedisCounter(rdb redis.Scripter) *RedisCounter {
	return &RedisCounter{rdb: rdb}
}

func (c *RedisCounter) Increment(ctx context.Context, key string, window time.Duration) (int, error) {
	count, err := incrementScript.Run(ctx, c.rdb, []string{keyPrefix + key}, window.Milliseconds()).Int()
	if err != nil {
		return 0, fmt.Errorf("redis increment: %w", err)
	}
	return count, nil
}

// NewRedisClient connects and pings Redis
func NewRedisClient(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("unable to ping redis: %w", err)
	}
	return rdb, nil
}
