package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/smallbiznis/botquota/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewTelegramLimiterFallsBackToLocal(t *testing.T) {
	limiter := NewTelegramLimiter(config.Config{
		Telegram: config.TelegramConfig{RateLimit: 1000, RateBurst: 2},
	}, nil)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, limiter.Wait(ctx))
	require.NoError(t, limiter.Wait(ctx))
}

func TestLocalLimiterHonoursContext(t *testing.T) {
	limiter := NewLocalLimiter(0.001, 1)
	require.NoError(t, limiter.Wait(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.Error(t, limiter.Wait(ctx))
}

func TestNilRedisHelpers(t *testing.T) {
	assert.Nil(t, NewLocker(nil))
	assert.Nil(t, NewTokenBucket(nil))
	assert.Nil(t, NewRedisLimiter(nil, "k", 1, 1))

	var locker *Locker
	_, ok, err := locker.TryLock(context.Background(), "k", time.Second)
	assert.False(t, ok)
	assert.ErrorIs(t, err, ErrLockUnavailable)
	assert.NoError(t, locker.Release(context.Background(), "k", "token"))

	var bucket *TokenBucket
	_, err = bucket.Take(context.Background(), "k", 1, 1)
	assert.ErrorIs(t, err, ErrBucketUnavailable)
}

func TestBucketTTL(t *testing.T) {
	assert.Equal(t, 10*time.Second, bucketTTL(1, 5))
	assert.Equal(t, time.Second, bucketTTL(100, 1))
	assert.Equal(t, time.Second, bucketTTL(0, 0))
}
