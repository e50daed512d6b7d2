package repository

import (
	"context"
	"time"

	"github.com/smallbiznis/botquota/internal/account/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const accountColumns = `id, referrer_id, trial_balance, paid_balance, bonus_balance, status,
	is_subscribed, is_premium, expired_at, last_consumed_period, created_at, updated_at`

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, account *domain.Account) (bool, error) {
	if account == nil {
		return false, nil
	}
	result := db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "id"}}, DoNothing: true}).
		Create(account)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id int64) (*domain.Account, error) {
	var account domain.Account
	result := db.WithContext(ctx).Raw(
		`SELECT `+accountColumns+` FROM accounts WHERE id = ?`,
		id,
	).Scan(&account)
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		return nil, nil
	}
	return &account, nil
}

func (r *repo) LockByID(ctx context.Context, db *gorm.DB, id int64) (*domain.Account, error) {
	var account domain.Account
	result := db.WithContext(ctx).Raw(
		`SELECT `+accountColumns+` FROM accounts WHERE id = ? FOR UPDATE`,
		id,
	).Scan(&account)
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		return nil, nil
	}
	return &account, nil
}

// AdjustBalance applies delta to the pool column and returns the affected row
// count. A decrement that would take the pool below zero affects no row.
func (r *repo) AdjustBalance(ctx context.Context, db *gorm.DB, id int64, pool domain.Pool, delta int64, now time.Time) (int64, error) {
	column, err := pool.Column()
	if err != nil {
		return 0, err
	}
	result := db.WithContext(ctx).Exec(
		`UPDATE accounts SET `+column+` = `+column+` + ?, updated_at = ?
		WHERE id = ? AND `+column+` + ? >= 0`,
		delta,
		now.UTC(),
		id,
		delta,
	)
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}

func (r *repo) UpdateLifecycle(ctx context.Context, db *gorm.DB, account *domain.Account, now time.Time) error {
	if account == nil {
		return nil
	}
	return db.WithContext(ctx).Exec(
		`UPDATE accounts SET status = ?, is_subscribed = ?, is_premium = ?, expired_at = ?, updated_at = ?
		WHERE id = ? AND status <> ?`,
		account.Status,
		account.IsSubscribed,
		account.IsPremium,
		utcPtr(account.ExpiredAt),
		now.UTC(),
		account.ID,
		domain.StatusDeleted,
	).Error
}

func (r *repo) SetLastConsumedPeriod(ctx context.Context, db *gorm.DB, id int64, period time.Time, now time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE accounts SET last_consumed_period = ?, updated_at = ? WHERE id = ?`,
		period.UTC(),
		now.UTC(),
		id,
	).Error
}

func (r *repo) MarkDeleted(ctx context.Context, db *gorm.DB, id int64, now time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE accounts SET status = ?, updated_at = ? WHERE id = ?`,
		domain.StatusDeleted,
		now.UTC(),
		id,
	).Error
}

func (r *repo) ListIDsByStatus(ctx context.Context, db *gorm.DB, status domain.AccountStatus, limit int, afterID int64) ([]int64, error) {
	var ids []int64
	err := db.WithContext(ctx).Raw(
		`SELECT id FROM accounts WHERE status = ? AND id > ? ORDER BY id ASC LIMIT ?`,
		status,
		afterID,
		limit,
	).Scan(&ids).Error
	if err != nil {
		return nil, err
	}
	return ids, nil
}

func (r *repo) ListExpiredBefore(ctx context.Context, db *gorm.DB, cutoff time.Time, limit int, afterID int64) ([]int64, error) {
	var ids []int64
	err := db.WithContext(ctx).Raw(
		`SELECT id FROM accounts
		WHERE status = ? AND expired_at IS NOT NULL AND expired_at <= ? AND id > ?
		ORDER BY id ASC LIMIT ?`,
		domain.StatusExpired,
		cutoff.UTC(),
		afterID,
		limit,
	).Scan(&ids).Error
	if err != nil {
		return nil, err
	}
	return ids, nil
}

func (r *repo) ListReferrals(ctx context.Context, db *gorm.DB, referrerID int64) ([]domain.Account, error) {
	var accounts []domain.Account
	err := db.WithContext(ctx).Raw(
		`SELECT `+accountColumns+` FROM accounts WHERE referrer_id = ? ORDER BY created_at ASC, id ASC`,
		referrerID,
	).Scan(&accounts).Error
	if err != nil {
		return nil, err
	}
	return accounts, nil
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := t.UTC()
	return &v
}
