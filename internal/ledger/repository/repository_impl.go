package repository

import (
	"context"

	"github.com/smallbiznis/botquota/internal/ledger/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, entry *domain.LedgerEntry) error {
	if entry == nil {
		return nil
	}
	return db.WithContext(ctx).Exec(
		`INSERT INTO ledger_entries (id, account_id, kind, pool, delta, period_key, source, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ID,
		entry.AccountID,
		entry.Kind,
		entry.Pool,
		entry.Delta,
		entry.PeriodKey,
		entry.Source,
		entry.CreatedAt,
	).Error
}

func (r *repo) SumByPool(ctx context.Context, db *gorm.DB, accountID int64) ([]domain.PoolSum, error) {
	var sums []domain.PoolSum
	err := db.WithContext(ctx).Raw(
		`SELECT pool, COALESCE(SUM(delta), 0) AS total
		FROM ledger_entries
		WHERE account_id = ?
		GROUP BY pool`,
		accountID,
	).Scan(&sums).Error
	if err != nil {
		return nil, err
	}
	return sums, nil
}

func (r *repo) ListByAccount(ctx context.Context, db *gorm.DB, accountID int64, limit int) ([]domain.LedgerEntry, error) {
	var entries []domain.LedgerEntry
	stmt := db.WithContext(ctx).Model(&domain.LedgerEntry{}).
		Where("account_id = ?", accountID).
		Order("created_at desc, id desc")
	if limit > 0 {
		stmt = stmt.Limit(limit)
	}
	if err := stmt.Find(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}
