package ratelimit

import (
	"github.com/smallbiznis/botquota/internal/config"
	"go.uber.org/fx"
)

const keyTelegramAPI = "botquota:ratelimit:telegram"

var Module = fx.Module("rate.limit",
	fx.Provide(NewRedisClient),
	fx.Provide(NewLocker),
	fx.Provide(NewTokenBucket),
	fx.Provide(NewTelegramLimiter),
)

// NewTelegramLimiter throttles Bot API calls, cluster-wide when Redis is available.
func NewTelegramLimiter(cfg config.Config, bucket *TokenBucket) Limiter {
	perSecond := cfg.Telegram.RateLimit
	burst := cfg.Telegram.RateBurst
	if bucket != nil {
		return NewRedisLimiter(bucket, keyTelegramAPI, perSecond, burst)
	}
	return NewLocalLimiter(perSecond, burst)
}
