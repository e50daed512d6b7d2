package domain

import (
	"testing"
	"time"

	accountdomain "github.com/smallbiznis/botquota/internal/account/domain"
	"github.com/stretchr/testify/assert"
)

const threshold = 30

var now = time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)

func TestDecide(t *testing.T) {
	earlier := now.Add(-48 * time.Hour)

	cases := []struct {
		name         string
		account      accountdomain.Account
		subscribed   bool
		wantStatus   accountdomain.AccountStatus
		wantChanged  bool
		wantPremium  bool
		wantExpired  *time.Time
		wantStatusCh bool
	}{
		{
			name:         "freeze takes precedence over balance",
			account:      accountdomain.Account{Status: accountdomain.StatusActive, IsSubscribed: true, PaidBalance: 50},
			subscribed:   false,
			wantStatus:   accountdomain.StatusFrozen,
			wantChanged:  true,
			wantStatusCh: true,
		},
		{
			name:        "frozen stays frozen",
			account:     accountdomain.Account{Status: accountdomain.StatusFrozen, TrialBalance: 3},
			subscribed:  false,
			wantStatus:  accountdomain.StatusFrozen,
			wantChanged: false,
		},
		{
			name:         "frozen with balance activates",
			account:      accountdomain.Account{Status: accountdomain.StatusFrozen, TrialBalance: 3},
			subscribed:   true,
			wantStatus:   accountdomain.StatusActive,
			wantChanged:  true,
			wantStatusCh: true,
		},
		{
			name:         "depleted active expires",
			account:      accountdomain.Account{Status: accountdomain.StatusActive, IsSubscribed: true},
			subscribed:   true,
			wantStatus:   accountdomain.StatusExpired,
			wantChanged:  true,
			wantExpired:  &now,
			wantStatusCh: true,
		},
		{
			name:        "expired keeps first depletion instant",
			account:     accountdomain.Account{Status: accountdomain.StatusExpired, IsSubscribed: true, ExpiredAt: &earlier},
			subscribed:  true,
			wantStatus:  accountdomain.StatusExpired,
			wantChanged: false,
			wantExpired: &earlier,
		},
		{
			name:         "regrant clears expired_at",
			account:      accountdomain.Account{Status: accountdomain.StatusExpired, IsSubscribed: true, PaidBalance: 5, ExpiredAt: &earlier},
			subscribed:   true,
			wantStatus:   accountdomain.StatusActive,
			wantChanged:  true,
			wantStatusCh: true,
		},
		{
			name:        "premium flips at threshold",
			account:     accountdomain.Account{Status: accountdomain.StatusActive, IsSubscribed: true, BonusBalance: threshold},
			subscribed:  true,
			wantStatus:  accountdomain.StatusActive,
			wantChanged: true,
			wantPremium: true,
		},
		{
			name:        "deleted is terminal",
			account:     accountdomain.Account{Status: accountdomain.StatusDeleted, PaidBalance: 10},
			subscribed:  true,
			wantStatus:  accountdomain.StatusDeleted,
			wantChanged: false,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			d := Decide(tc.account, tc.subscribed, now, threshold)
			assert.Equal(t, tc.wantStatus, d.Status)
			assert.Equal(t, tc.wantChanged, d.Changed())
			assert.Equal(t, tc.wantStatusCh, d.StatusChanged)
			assert.Equal(t, tc.wantPremium, d.IsPremium)
			assert.Equal(t, tc.wantExpired, d.ExpiredAt)
		})
	}
}

func TestDecideIsIdempotent(t *testing.T) {
	account := accountdomain.Account{Status: accountdomain.StatusActive, IsSubscribed: true}

	first := Decide(account, true, now, threshold)
	first.Apply(&account)
	second := Decide(account, true, now.Add(time.Hour), threshold)

	assert.True(t, first.StatusChanged)
	assert.False(t, second.Changed())
	assert.Equal(t, now, *second.ExpiredAt)
}

func TestDecideFreezeLeavesBalances(t *testing.T) {
	account := accountdomain.Account{Status: accountdomain.StatusActive, IsSubscribed: true, TrialBalance: 20, PaidBalance: 20, BonusBalance: 10}

	d := Decide(account, false, now, threshold)
	d.Apply(&account)

	assert.Equal(t, accountdomain.StatusFrozen, account.Status)
	assert.Equal(t, int64(50), account.TotalBalance())
	assert.False(t, account.IsSubscribed)
}
