package ratelimit

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
)

const lockKeyPrefix = "botquota:lock:"

// compare-and-delete so an expired holder cannot drop a newer holder's lease
var releaseLease = redis.NewScript(`
if redis.call("GET", KEYS[1]) ~= ARGV[1] then
  return 0
end
return redis.call("DEL", KEYS[1])
`)

var (
	ErrLockUnavailable = errors.New("lock_unavailable")
	ErrInvalidLease    = errors.New("invalid_lease")
)

// Locker hands out exclusive leases on named jobs so only one replica runs a
// tick at a time.
type Locker struct {
	client *redis.Client
}

func NewLocker(client *redis.Client) *Locker {
	if client == nil {
		return nil
	}
	return &Locker{client: client}
}

// TryLock takes the lease for name without waiting. ok is false when another
// holder owns it; the returned token is needed to release it.
func (l *Locker) TryLock(ctx context.Context, name string, ttl time.Duration) (token string, ok bool, err error) {
	if l == nil {
		return "", false, ErrLockUnavailable
	}
	if name == "" || ttl <= 0 {
		return "", false, ErrInvalidLease
	}

	token = uuid.NewString()
	err = l.client.SetArgs(ctx, lockKeyPrefix+name, token, redis.SetArgs{Mode: "NX", TTL: ttl}).Err()
	switch {
	case errors.Is(err, redis.Nil):
		return "", false, nil
	case err != nil:
		return "", false, err
	}
	return token, true, nil
}

// Release gives the lease back. Releasing a lease that already expired or
// passed to another holder is a no-op.
func (l *Locker) Release(ctx context.Context, name, token string) error {
	if l == nil || name == "" || token == "" {
		return nil
	}
	return releaseLease.Run(ctx, l.client, []string{lockKeyPrefix + name}, token).Err()
}
