package domain

import (
	"context"
	"errors"
	"time"

	accountdomain "github.com/smallbiznis/botquota/internal/account/domain"
	"gorm.io/gorm"
)

type Service interface {
	Grant(ctx context.Context, req GrantRequest) (*LedgerEntry, error)
	// GrantTx runs inside a caller-owned transaction.
	GrantTx(ctx context.Context, tx *gorm.DB, req GrantRequest) (*LedgerEntry, error)
	Consume(ctx context.Context, accountID int64, pool accountdomain.Pool) (*LedgerEntry, error)
	ConsumeTx(ctx context.Context, tx *gorm.DB, req ConsumeRequest) (*LedgerEntry, error)
	// ConsumeNextTx charges one day from the first non-empty pool of an
	// account already locked by the caller. It returns nil when every pool is empty.
	ConsumeNextTx(ctx context.Context, tx *gorm.DB, account *accountdomain.Account, periodKey time.Time) (*LedgerEntry, error)
	Reconcile(ctx context.Context, accountID int64) (ReconcileResult, error)
	ListEntries(ctx context.Context, accountID int64, limit int) ([]LedgerEntry, error)
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, entry *LedgerEntry) error
	SumByPool(ctx context.Context, db *gorm.DB, accountID int64) ([]PoolSum, error)
	ListByAccount(ctx context.Context, db *gorm.DB, accountID int64, limit int) ([]LedgerEntry, error)
}

var (
	ErrInvalidAmount       = errors.New("invalid_amount")
	ErrInvalidSource       = errors.New("invalid_source")
	ErrInsufficientBalance = errors.New("insufficient_balance")

	// ErrPeriodAlreadyCharged is returned when a consumption for the same
	// account and period key already exists.
	ErrPeriodAlreadyCharged = errors.New("period_already_charged")

	ErrInvalidPool     = accountdomain.ErrInvalidPool
	ErrAccountNotFound = accountdomain.ErrAccountNotFound
	ErrAccountDeleted  = accountdomain.ErrAccountDeleted
)
