package repository

import (
	"context"

	"github.com/smallbiznis/botquota/internal/audit/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, entry *domain.AuditLog) error {
	if entry == nil {
		return nil
	}
	return db.WithContext(ctx).Exec(
		`INSERT INTO audit_logs (id, account_id, event, payload, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		entry.ID,
		entry.AccountID,
		entry.Event,
		entry.Payload,
		entry.CreatedAt,
	).Error
}

func (r *repo) ListByAccount(ctx context.Context, db *gorm.DB, accountID int64, limit int) ([]domain.AuditLog, error) {
	var logs []domain.AuditLog
	stmt := db.WithContext(ctx).Model(&domain.AuditLog{}).
		Where("account_id = ?", accountID).
		Order("created_at desc, id desc")
	if limit > 0 {
		stmt = stmt.Limit(limit)
	}
	if err := stmt.Find(&logs).Error; err != nil {
		return nil, err
	}
	return logs, nil
}
