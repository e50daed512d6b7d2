package ratelimit

import (
	"context"
	"errors"
	"math"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// takeToken refills the bucket from the Redis clock, then either consumes a
// token (returns 0) or returns the milliseconds until one is available.
var takeToken = redis.NewScript(`
local per_ms = tonumber(ARGV[1]) / 1000
local burst = tonumber(ARGV[2])

local t = redis.call("TIME")
local now = t[1] * 1000 + math.floor(t[2] / 1000)

local state = redis.call("HMGET", KEYS[1], "tokens", "at")
local tokens = tonumber(state[1]) or burst
local at = tonumber(state[2]) or now
if now > at then
  tokens = math.min(burst, tokens + (now - at) * per_ms)
end

local wait = 0
if tokens >= 1 then
  tokens = tokens - 1
else
  wait = math.ceil((1 - tokens) / per_ms)
end

redis.call("HSET", KEYS[1], "tokens", tostring(tokens), "at", now)
redis.call("PEXPIRE", KEYS[1], ARGV[3])
return wait
`)

var (
	ErrBucketUnavailable = errors.New("bucket_unavailable")
	ErrInvalidRate       = errors.New("invalid_rate")
)

// TokenBucket is a token bucket whose state lives in Redis, shared by every
// replica that uses the same key.
type TokenBucket struct {
	client *redis.Client
}

func NewTokenBucket(client *redis.Client) *TokenBucket {
	if client == nil {
		return nil
	}
	return &TokenBucket{client: client}
}

// Take consumes one token from key. A zero wait means the call may proceed;
// otherwise nothing was consumed and the caller should retry after wait.
func (b *TokenBucket) Take(ctx context.Context, key string, perSecond float64, burst int) (time.Duration, error) {
	if b == nil {
		return 0, ErrBucketUnavailable
	}
	if key == "" || perSecond <= 0 || burst <= 0 {
		return 0, ErrInvalidRate
	}

	ttl := bucketTTL(perSecond, burst)
	waitMs, err := takeToken.Run(ctx, b.client, []string{key}, perSecond, burst, ttl.Milliseconds()).Int64()
	if err != nil {
		return 0, err
	}
	return time.Duration(waitMs) * time.Millisecond, nil
}

// bucketTTL keeps an idle bucket around for twice its refill time.
func bucketTTL(perSecond float64, burst int) time.Duration {
	if perSecond <= 0 || burst <= 0 {
		return time.Second
	}
	seconds := math.Max(1, math.Ceil(2*float64(burst)/perSecond))
	return time.Duration(seconds) * time.Second
}
