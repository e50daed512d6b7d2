package ratelimit

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

const minRetryAfter = 10 * time.Millisecond

// Limiter blocks until a call may proceed or ctx ends.
type Limiter interface {
	Wait(ctx context.Context) error
}

// NewLocalLimiter limits calls within this process.
func NewLocalLimiter(perSecond float64, burst int) Limiter {
	return rate.NewLimiter(rate.Limit(perSecond), burst)
}

// RedisLimiter shares one token bucket between every instance.
type RedisLimiter struct {
	bucket    *TokenBucket
	key       string
	perSecond float64
	burst     int
}

func NewRedisLimiter(bucket *TokenBucket, key string, perSecond float64, burst int) *RedisLimiter {
	if bucket == nil {
		return nil
	}
	return &RedisLimiter{bucket: bucket, key: key, perSecond: perSecond, burst: burst}
}

func (l *RedisLimiter) Wait(ctx context.Context) error {
	for {
		delay, err := l.bucket.Take(ctx, l.key, l.perSecond, l.burst)
		if err != nil {
			return err
		}
		if delay == 0 {
			return nil
		}
		if delay < minRetryAfter {
			delay = minRetryAfter
		}
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}
