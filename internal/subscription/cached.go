package subscription

import (
	"context"
	"fmt"
	"time"

	redis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const cacheKeyPrefix = "botquota:sub:"

// CachedChecker memoizes positive and negative answers in Redis for ttl.
// Errors are never cached.
type CachedChecker struct {
	next   Checker
	client *redis.Client
	ttl    time.Duration
	log    *zap.Logger
}

func NewCachedChecker(next Checker, client *redis.Client, ttl time.Duration, log *zap.Logger) Checker {
	if client == nil || ttl <= 0 {
		return next
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &CachedChecker{next: next, client: client, ttl: ttl, log: log}
}

func cacheKey(accountID int64) string {
	return fmt.Sprintf("%s%d", cacheKeyPrefix, accountID)
}

func (c *CachedChecker) IsSubscribed(ctx context.Context, accountID int64) (bool, error) {
	if accountID <= 0 {
		return false, ErrInvalidAccountID
	}
	key := cacheKey(accountID)
	cached, err := c.client.Get(ctx, key).Result()
	switch {
	case err == nil:
		return cached == "1", nil
	case err != redis.Nil:
		c.log.Warn("subscription.cache.read_failed", zap.Int64("account_id", accountID), zap.Error(err))
	}

	ok, err := c.next.IsSubscribed(ctx, accountID)
	if err != nil {
		return false, err
	}
	value := "0"
	if ok {
		value = "1"
	}
	if err := c.client.Set(ctx, key, value, c.ttl).Err(); err != nil {
		c.log.Warn("subscription.cache.write_failed", zap.Int64("account_id", accountID), zap.Error(err))
	}
	return ok, nil
}
