package watermark

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Watermark records the last billing period a scheduler job fully applied.
type Watermark struct {
	Job         string    `gorm:"primaryKey;type:varchar(64)" json:"job"`
	PeriodStart time.Time `gorm:"not null" json:"period_start"`
	CompletedAt time.Time `gorm:"not null" json:"completed_at"`
	UpdatedAt   time.Time `gorm:"not null" json:"updated_at"`
}

// TableName sets the database table name.
func (Watermark) TableName() string { return "scheduler_watermarks" }

type Store interface {
	Get(ctx context.Context, db *gorm.DB, job string) (*Watermark, error)
	Save(ctx context.Context, db *gorm.DB, mark Watermark) error
}

type store struct{}

func Provide() Store {
	return &store{}
}

func (s *store) Get(ctx context.Context, db *gorm.DB, job string) (*Watermark, error) {
	var mark Watermark
	result := db.WithContext(ctx).Raw(
		`SELECT job, period_start, completed_at, updated_at FROM scheduler_watermarks WHERE job = ?`,
		job,
	).Scan(&mark)
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		return nil, nil
	}
	return &mark, nil
}

func (s *store) Save(ctx context.Context, db *gorm.DB, mark Watermark) error {
	mark.PeriodStart = mark.PeriodStart.UTC()
	mark.CompletedAt = mark.CompletedAt.UTC()
	mark.UpdatedAt = mark.CompletedAt
	return db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "job"}},
			DoUpdates: clause.AssignmentColumns([]string{"period_start", "completed_at", "updated_at"}),
		}).
		Create(&mark).Error
}
