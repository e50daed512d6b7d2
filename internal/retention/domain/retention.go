package domain

import (
	"context"
	"errors"
	"time"

	accountdomain "github.com/smallbiznis/botquota/internal/account/domain"
)

type DeleteOptions struct {
	// Force deletes regardless of eligibility and tolerates cascade failures.
	Force bool
}

type DeleteResult struct {
	AccountID      int64 `json:"account_id"`
	Deleted        bool  `json:"deleted"`
	AlreadyDeleted bool  `json:"already_deleted"`
	BotsDeleted    int64 `json:"bots_deleted"`
	Forced         bool  `json:"forced"`
	// Orphaned is set when bots were removed but the account was no longer
	// eligible once locked.
	Orphaned bool `json:"orphaned,omitempty"`
}

type ReapFailure struct {
	AccountID int64
	Err       error
}

type ReapResult struct {
	Candidates int           `json:"candidates"`
	Deleted    int           `json:"deleted"`
	Skipped    int           `json:"skipped"`
	Failures   []ReapFailure `json:"-"`
}

func (r ReapResult) Failed() int {
	return len(r.Failures)
}

type Service interface {
	Delete(ctx context.Context, accountID int64, opts DeleteOptions) (DeleteResult, error)
	Reap(ctx context.Context) (ReapResult, error)
}

// ShouldDelete reports whether account has stayed EXPIRED for the whole grace period.
func ShouldDelete(account accountdomain.Account, now time.Time, grace time.Duration) bool {
	if account.Status != accountdomain.StatusExpired || account.ExpiredAt == nil {
		return false
	}
	return !now.Before(account.ExpiredAt.Add(grace))
}

var (
	ErrInvalidAccountID = accountdomain.ErrInvalidAccountID
	ErrAccountNotFound  = accountdomain.ErrAccountNotFound
	ErrNotEligible      = errors.New("account_not_eligible_for_deletion")
	ErrCascadeFailed    = errors.New("bot_cascade_failed")
)
