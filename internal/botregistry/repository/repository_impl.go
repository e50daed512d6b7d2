package repository

import (
	"context"

	"github.com/smallbiznis/botquota/internal/botregistry/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, bot *domain.Bot) error {
	if bot == nil {
		return nil
	}
	return db.WithContext(ctx).Exec(
		`INSERT INTO bots (id, owner_id, token_encrypted, config, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		bot.ID,
		bot.OwnerID,
		bot.TokenEncrypted,
		bot.Config,
		bot.CreatedAt,
	).Error
}

func (r *repo) ListByOwner(ctx context.Context, db *gorm.DB, ownerID int64) ([]domain.Bot, error) {
	var bots []domain.Bot
	err := db.WithContext(ctx).Model(&domain.Bot{}).
		Where("owner_id = ?", ownerID).
		Order("created_at asc, id asc").
		Find(&bots).Error
	if err != nil {
		return nil, err
	}
	return bots, nil
}

func (r *repo) DeleteByOwner(ctx context.Context, db *gorm.DB, ownerID int64) (int64, error) {
	result := db.WithContext(ctx).Exec(`DELETE FROM bots WHERE owner_id = ?`, ownerID)
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}
