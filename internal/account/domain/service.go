package domain

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
)

type EnsureAccountRequest struct {
	ID         int64  `json:"id"`
	ReferrerID *int64 `json:"referrer_id,omitempty"`
}

type EnsureAccountResult struct {
	Account Account `json:"account"`
	Created bool    `json:"created"`
}

type Service interface {
	EnsureAccount(ctx context.Context, req EnsureAccountRequest) (EnsureAccountResult, error)
	Get(ctx context.Context, id int64) (*Account, error)
	ListIDsByStatus(ctx context.Context, tx *gorm.DB, status AccountStatus, limit int, afterID int64) ([]int64, error)
	ListReferrals(ctx context.Context, referrerID int64) ([]Account, error)
}

type Repository interface {
	// Insert creates the account unless the id already exists.
	Insert(ctx context.Context, db *gorm.DB, account *Account) (bool, error)
	FindByID(ctx context.Context, db *gorm.DB, id int64) (*Account, error)
	// LockByID reads the account row with SELECT ... FOR UPDATE.
	LockByID(ctx context.Context, db *gorm.DB, id int64) (*Account, error)
	AdjustBalance(ctx context.Context, db *gorm.DB, id int64, pool Pool, delta int64, now time.Time) (int64, error)
	UpdateLifecycle(ctx context.Context, db *gorm.DB, account *Account, now time.Time) error
	SetLastConsumedPeriod(ctx context.Context, db *gorm.DB, id int64, period time.Time, now time.Time) error
	MarkDeleted(ctx context.Context, db *gorm.DB, id int64, now time.Time) error
	ListIDsByStatus(ctx context.Context, db *gorm.DB, status AccountStatus, limit int, afterID int64) ([]int64, error)
	ListExpiredBefore(ctx context.Context, db *gorm.DB, cutoff time.Time, limit int, afterID int64) ([]int64, error)
	ListReferrals(ctx context.Context, db *gorm.DB, referrerID int64) ([]Account, error)
}

var (
	ErrInvalidAccountID = errors.New("invalid_account_id")
	ErrAccountNotFound  = errors.New("account_not_found")
	ErrAccountDeleted   = errors.New("account_deleted")
	ErrInvalidPool      = errors.New("invalid_pool")
	ErrInvalidStatus    = errors.New("invalid_status")
)
