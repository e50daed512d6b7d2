package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	accountdomain "github.com/smallbiznis/botquota/internal/account/domain"
)

// EntryKind classifies a ledger entry.
type EntryKind string

const (
	EntryKindGrant       EntryKind = "grant"
	EntryKindConsumption EntryKind = "consumption"
)

// Well-known attribution tags for LedgerEntry.Source.
const (
	SourcePayment   = "payment"
	SourceReferral  = "referral"
	SourceTrialSeed = "trial_seed"
	SourceAdmin     = "admin"
	SourceScheduler = "scheduler"
)

// LedgerEntry is an append-only balance mutation. Account balances are the
// sum of Delta per pool.
type LedgerEntry struct {
	ID        snowflake.ID       `gorm:"primaryKey;autoIncrement:false" json:"id"`
	AccountID int64              `gorm:"not null;index:ix_ledger_entries_account_pool,priority:1;uniqueIndex:ux_ledger_entries_account_period,priority:1" json:"account_id"`
	Kind      EntryKind          `gorm:"type:varchar(16);not null" json:"kind"`
	Pool      accountdomain.Pool `gorm:"type:varchar(16);not null;index:ix_ledger_entries_account_pool,priority:2" json:"pool"`
	Delta     int64              `gorm:"not null" json:"delta"`
	PeriodKey *time.Time         `gorm:"uniqueIndex:ux_ledger_entries_account_period,priority:2" json:"period_key,omitempty"`
	Source    string             `gorm:"type:varchar(32);not null" json:"source"`
	CreatedAt time.Time          `gorm:"not null" json:"created_at"`
}

// TableName sets the database table name.
func (LedgerEntry) TableName() string { return "ledger_entries" }

type GrantRequest struct {
	AccountID int64              `json:"account_id"`
	Pool      accountdomain.Pool `json:"pool"`
	Amount    int64              `json:"amount"`
	Source    string             `json:"source"`
}

type ConsumeRequest struct {
	AccountID int64
	Pool      accountdomain.Pool
	// PeriodKey is the billing period start for scheduled consumption.
	PeriodKey *time.Time
	Source    string
}

// ReconcileResult compares materialized balances against ledger sums.
type ReconcileResult struct {
	AccountID    int64                        `json:"account_id"`
	Materialized map[accountdomain.Pool]int64 `json:"materialized"`
	Ledger       map[accountdomain.Pool]int64 `json:"ledger"`
	Mismatched   []accountdomain.Pool         `json:"mismatched,omitempty"`
}

func (r ReconcileResult) OK() bool {
	return len(r.Mismatched) == 0
}

// PoolSum is one row of SUM(delta) GROUP BY pool.
type PoolSum struct {
	Pool  accountdomain.Pool
	Total int64
}
