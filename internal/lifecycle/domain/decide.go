package domain

import (
	"time"

	accountdomain "github.com/smallbiznis/botquota/internal/account/domain"
)

// Decision is the outcome of evaluating an account against its subscription
// flag. Only fields flagged as changed need to be written.
type Decision struct {
	From         accountdomain.AccountStatus
	Status       accountdomain.AccountStatus
	IsSubscribed bool
	IsPremium    bool
	ExpiredAt    *time.Time

	StatusChanged       bool
	PremiumChanged      bool
	SubscriptionChanged bool
	ExpiredAtChanged    bool
}

// Changed reports whether the decision requires a write.
func (d Decision) Changed() bool {
	return d.StatusChanged || d.PremiumChanged || d.SubscriptionChanged || d.ExpiredAtChanged
}

// Apply copies the decided state onto account.
func (d Decision) Apply(account *accountdomain.Account) {
	account.Status = d.Status
	account.IsSubscribed = d.IsSubscribed
	account.IsPremium = d.IsPremium
	account.ExpiredAt = d.ExpiredAt
}

// Decide derives the canonical status of account. Rules apply in order:
// DELETED is terminal, an unsubscribed account is FROZEN with balances
// untouched, a positive total is ACTIVE, and otherwise the account is EXPIRED
// with expired_at stamped only on entry into EXPIRED.
func Decide(account accountdomain.Account, isSubscribed bool, now time.Time, premiumThreshold int64) Decision {
	d := Decision{
		From:         account.Status,
		Status:       account.Status,
		IsSubscribed: account.IsSubscribed,
		IsPremium:    account.IsPremium,
		ExpiredAt:    account.ExpiredAt,
	}

	switch account.Status {
	case accountdomain.StatusDeleted:
		return d
	case accountdomain.StatusActive, accountdomain.StatusFrozen, accountdomain.StatusExpired:
	default:
		return d
	}

	if account.IsSubscribed != isSubscribed {
		d.IsSubscribed = isSubscribed
		d.SubscriptionChanged = true
	}

	switch {
	case !isSubscribed:
		d.Status = accountdomain.StatusFrozen
	case account.TotalBalance() > 0:
		d.Status = accountdomain.StatusActive
		premium := account.BonusBalance >= premiumThreshold
		if premium != account.IsPremium {
			d.IsPremium = premium
			d.PremiumChanged = true
		}
		if account.ExpiredAt != nil {
			d.ExpiredAt = nil
			d.ExpiredAtChanged = true
		}
	default:
		d.Status = accountdomain.StatusExpired
		if account.Status != accountdomain.StatusExpired {
			stamped := now.UTC()
			d.ExpiredAt = &stamped
			d.ExpiredAtChanged = true
		}
	}

	d.StatusChanged = d.Status != account.Status
	return d
}
