package limiter

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis is a Redis-backed limiter with failure counters and cooldown TTLs.
// Only attempt counters live in Redis; no credential or session material
// ever does.
type Redis struct {
	client   redis.UniversalClient
	window   time.Duration
	maxFails int
}

// NewRedis constructs a Redis-backed limiter. window is both the counting
// window and the lockout duration once maxFails is exceeded.
func NewRedis(client redis.UniversalClient, window time.Duration, maxFails int) *Redis {
	return &Redis{client: client, window: window, maxFails: maxFails}
}

func failKey(identifier, ipHash string) string {
	return fmt.Sprintf("limiter:login:%s:%s", identifier, ipHash)
}

// Allow reports whether login is currently allowed. Read errors fail open:
// an unreachable Redis must not lock every user out.
func (l *Redis) Allow(ctx context.Context, identifier string, ipHash string) (bool, time.Duration, error) {
	count, err := l.client.Get(ctx, failKey(identifier, ipHash)).Int()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return true, 0, nil
		}
		return true, 0, err
	}
	if count < l.maxFails {
		return true, 0, nil
	}
	ttl, err := l.client.TTL(ctx, failKey(identifier, ipHash)).Result()
	if err != nil || ttl < 0 {
		ttl = l.window
	}
	return false, ttl, nil
}

// Success resets counters for (identifier, ip).
func (l *Redis) Success(ctx context.Context, identifier string, ipHash string) error {
	return l.client.Del(ctx, failKey(identifier, ipHash)).Err()
}

// Failure records a failed attempt. The first failure in a window arms the
// cooldown TTL; crossing the threshold reports a block with its remainder.
func (l *Redis) Failure(ctx context.Context, identifier string, ipHash string) (bool, time.Duration, error) {
	key := failKey(identifier, ipHash)
	count, err := l.client.Incr(ctx, key).Result()
	if err != nil {
		return false, 0, err
	}
	if count == 1 {
		if err := l.client.Expire(ctx, key, l.window).Err(); err != nil {
			return false, 0, err
		}
	}
	if count >= int64(l.maxFails) {
		ttl, err := l.client.TTL(ctx, key).Result()
		if err != nil || ttl < 0 {
			ttl = l.window
		}
		return true, ttl, nil
	}
	return false, 0, nil
}
