package redis

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "auth:attempts:"

// recordFailure increments the counter and gives it the window as TTL in one
// step. A counter found without TTL also gets one, so no key outlives its
// window.
var recordFailure = redis.NewScript(`
local n = redis.call("INCR", KEYS[1])
if redis.call("PTTL", KEYS[1]) < 0 then
	redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return n
`)

// RedisAttemptRepo keeps one counter per key. The window starts at the first
// failure and the counter disappears with it.
type RedisAttemptRepo struct {
	client *redis.Client
}

func NewRedisAttemptRepo(client *redis.Client) *RedisAttemptRepo {
	return &RedisAttemptRepo{
		client: client,
	}
}

func (r *RedisAttemptRepo) Failures(ctx context.Context, key string) (int64, error) {
	n, err := r.client.Get(ctx, keyPrefix+key).Int64()
	switch {
	case errors.Is(err, redis.Nil):
		return 0, nil
	case err != nil:
		return 0, err
	default:
		return n, nil
	}
}

func (r *RedisAttemptRepo) RecordFailure(ctx context.Context, key string, window time.Duration) (int64, error) {
	return recordFailure.Run(ctx, r.client, []string{keyPrefix + key}, window.Milliseconds()).Int64()
}

func (r *RedisAttemptRepo) Reset(ctx context.Context, key string) error {
	return r.client.Del(ctx, keyPrefix+key).Err()
}
