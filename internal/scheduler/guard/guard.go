package guard

import (
	"errors"
	"time"

	accountdomain "github.com/smallbiznis/botquota/internal/account/domain"
)

var (
	ErrAccountNotActive = errors.New("account_not_active")
	ErrPeriodApplied    = errors.New("billing_period_already_applied")
	ErrPeriodNotStarted = errors.New("billing_period_not_started")
)

// EnsureAccountCanBeCharged checks a locked account before the consumption
// step of a billing period.
func EnsureAccountCanBeCharged(account accountdomain.Account, periodStart time.Time) error {
	if account.Status != accountdomain.StatusActive {
		return ErrAccountNotActive
	}
	if account.AppliedPeriod(periodStart) {
		return ErrPeriodApplied
	}
	return nil
}

// EnsurePeriodDue rejects a period that has not started yet at now.
func EnsurePeriodDue(periodStart, now time.Time) error {
	if now.Before(periodStart) {
		return ErrPeriodNotStarted
	}
	return nil
}
