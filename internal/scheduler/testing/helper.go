// Package testing holds helpers that move scheduler state through time in tests.
package testing

import (
	"context"
	"time"

	accountdomain "github.com/smallbiznis/botquota/internal/account/domain"
	"gorm.io/gorm"
)

// TimeAccelerator rewrites stored timestamps so scheduler passes can be
// exercised without waiting for real billing periods.
type TimeAccelerator struct {
	db *gorm.DB
}

func NewTimeAccelerator(db *gorm.DB) *TimeAccelerator {
	return &TimeAccelerator{db: db}
}

// RewindWatermark moves a job's watermark to periodStart so the next run
// catches up from there.
func (ta *TimeAccelerator) RewindWatermark(ctx context.Context, job string, periodStart time.Time) error {
	return ta.db.WithContext(ctx).Exec(
		`UPDATE scheduler_watermarks SET period_start = ?, updated_at = ? WHERE job = ?`,
		periodStart.UTC(),
		time.Now().UTC(),
		job,
	).Error
}

// BackdateExpiry marks an account EXPIRED as of expiredAt.
func (ta *TimeAccelerator) BackdateExpiry(ctx context.Context, accountID int64, expiredAt time.Time) error {
	return ta.db.WithContext(ctx).Exec(
		`UPDATE accounts SET status = ?, expired_at = ?, updated_at = ? WHERE id = ?`,
		accountdomain.StatusExpired,
		expiredAt.UTC(),
		time.Now().UTC(),
		accountID,
	).Error
}

// ResetConsumedPeriod forgets the last charged period of an account.
func (ta *TimeAccelerator) ResetConsumedPeriod(ctx context.Context, accountID int64) error {
	return ta.db.WithContext(ctx).Exec(
		`UPDATE accounts SET last_consumed_period = NULL, updated_at = ? WHERE id = ?`,
		time.Now().UTC(),
		accountID,
	).Error
}

// AccountInfo shows the scheduler-relevant state of an account for debugging.
type AccountInfo struct {
	ID                 int64
	Status             accountdomain.AccountStatus
	TotalBalance       int64
	LastConsumedPeriod *time.Time
	ExpiredAt          *time.Time
}

func (ta *TimeAccelerator) GetAccountInfo(ctx context.Context, accountID int64) (*AccountInfo, error) {
	var row struct {
		ID                 int64
		Status             accountdomain.AccountStatus
		TrialBalance       int64
		PaidBalance        int64
		BonusBalance       int64
		LastConsumedPeriod *time.Time
		ExpiredAt          *time.Time
	}
	result := ta.db.WithContext(ctx).Raw(
		`SELECT id, status, trial_balance, paid_balance, bonus_balance, last_consumed_period, expired_at
		 FROM accounts
		 WHERE id = ?`,
		accountID,
	).Scan(&row)
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		return nil, nil
	}
	return &AccountInfo{
		ID:                 row.ID,
		Status:             row.Status,
		TotalBalance:       row.TrialBalance + row.PaidBalance + row.BonusBalance,
		LastConsumedPeriod: row.LastConsumedPeriod,
		ExpiredAt:          row.ExpiredAt,
	}, nil
}
