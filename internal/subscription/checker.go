package subscription

import (
	"context"
	"errors"

	"go.uber.org/zap"
)

var (
	ErrInvalidAccountID = errors.New("invalid_account_id")
	ErrNotConfigured    = errors.New("subscription_checker_not_configured")
	ErrUpstream         = errors.New("subscription_upstream_error")
)

// Checker reports whether an account currently follows the required channel.
type Checker interface {
	IsSubscribed(ctx context.Context, accountID int64) (bool, error)
}

// StaticChecker always returns the same answer.
type StaticChecker struct {
	Subscribed bool
}

func (c StaticChecker) IsSubscribed(_ context.Context, accountID int64) (bool, error) {
	if accountID <= 0 {
		return false, ErrInvalidAccountID
	}
	return c.Subscribed, nil
}

// FailClosed treats any checker error as "not subscribed".
func FailClosed(ctx context.Context, checker Checker, log *zap.Logger, accountID int64) bool {
	if checker == nil {
		return false
	}
	ok, err := checker.IsSubscribed(ctx, accountID)
	if err != nil {
		if log != nil {
			log.Warn("subscription.check.failed",
				zap.Int64("account_id", accountID),
				zap.Error(err),
			)
		}
		return false
	}
	return ok
}
