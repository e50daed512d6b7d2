package domain

import (
	"time"
)

// AccountStatus is the canonical lifecycle state of an account.
type AccountStatus string

const (
	StatusActive  AccountStatus = "ACTIVE"
	StatusFrozen  AccountStatus = "FROZEN"
	StatusExpired AccountStatus = "EXPIRED"
	StatusDeleted AccountStatus = "DELETED"
)

func (s AccountStatus) Valid() bool {
	switch s {
	case StatusActive, StatusFrozen, StatusExpired, StatusDeleted:
		return true
	default:
		return false
	}
}

// Terminal reports whether no transition may leave s.
func (s AccountStatus) Terminal() bool {
	return s == StatusDeleted
}

// Pool is one of the three day balances an account holds.
type Pool string

const (
	PoolTrial Pool = "trial"
	PoolPaid  Pool = "paid"
	PoolBonus Pool = "bonus"
)

// ConsumptionOrder is the strict order in which pools are drained.
var ConsumptionOrder = []Pool{PoolTrial, PoolPaid, PoolBonus}

func (p Pool) Valid() bool {
	switch p {
	case PoolTrial, PoolPaid, PoolBonus:
		return true
	default:
		return false
	}
}

// Column returns the accounts column materializing the pool balance.
func (p Pool) Column() (string, error) {
	switch p {
	case PoolTrial:
		return "trial_balance", nil
	case PoolPaid:
		return "paid_balance", nil
	case PoolBonus:
		return "bonus_balance", nil
	default:
		return "", ErrInvalidPool
	}
}

// Account is a tenant keyed by its external platform user id.
type Account struct {
	ID                 int64         `gorm:"primaryKey;autoIncrement:false" json:"id"`
	ReferrerID         *int64        `gorm:"index" json:"referrer_id,omitempty"`
	TrialBalance       int64         `gorm:"not null" json:"trial_balance"`
	PaidBalance        int64         `gorm:"not null" json:"paid_balance"`
	BonusBalance       int64         `gorm:"not null" json:"bonus_balance"`
	Status             AccountStatus `gorm:"type:varchar(16);not null;index" json:"status"`
	IsSubscribed       bool          `gorm:"not null" json:"is_subscribed"`
	IsPremium          bool          `gorm:"not null" json:"is_premium"`
	ExpiredAt          *time.Time    `gorm:"index" json:"expired_at,omitempty"`
	LastConsumedPeriod *time.Time    `json:"last_consumed_period,omitempty"`
	CreatedAt          time.Time     `gorm:"not null" json:"created_at"`
	UpdatedAt          time.Time     `gorm:"not null" json:"updated_at"`
}

// TableName sets the database table name.
func (Account) TableName() string { return "accounts" }

// Balance returns the materialized balance of pool.
func (a Account) Balance(pool Pool) int64 {
	switch pool {
	case PoolTrial:
		return a.TrialBalance
	case PoolPaid:
		return a.PaidBalance
	case PoolBonus:
		return a.BonusBalance
	default:
		return 0
	}
}

// AddBalance adjusts the in-memory balance of pool by delta.
func (a *Account) AddBalance(pool Pool, delta int64) {
	switch pool {
	case PoolTrial:
		a.TrialBalance += delta
	case PoolPaid:
		a.PaidBalance += delta
	case PoolBonus:
		a.BonusBalance += delta
	}
}

func (a Account) TotalBalance() int64 {
	return a.TrialBalance + a.PaidBalance + a.BonusBalance
}

// NextPool returns the first non-empty pool in consumption order.
func (a Account) NextPool() (Pool, bool) {
	for _, pool := range ConsumptionOrder {
		if a.Balance(pool) > 0 {
			return pool, true
		}
	}
	return "", false
}

// AppliedPeriod reports whether the billing period starting at period was already charged.
func (a Account) AppliedPeriod(period time.Time) bool {
	return a.LastConsumedPeriod != nil && !a.LastConsumedPeriod.Before(period)
}
