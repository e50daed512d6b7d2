package service_test

import (
	"context"
	"testing"

	accountdomain "github.com/smallbiznis/botquota/internal/account/domain"
	auditdomain "github.com/smallbiznis/botquota/internal/audit/domain"
	"github.com/smallbiznis/botquota/internal/config"
	"github.com/smallbiznis/botquota/internal/testenv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnsureAccountSeedsTrialOnce(t *testing.T) {
	env := testenv.New(t)
	ctx := context.Background()

	first, err := env.Accounts.EnsureAccount(ctx, accountdomain.EnsureAccountRequest{ID: 100})
	require.NoError(t, err)
	assert.True(t, first.Created)
	assert.Equal(t, int64(10), first.Account.TrialBalance)
	assert.Equal(t, accountdomain.StatusFrozen, first.Account.Status)
	assert.False(t, first.Account.IsSubscribed)

	second, err := env.Accounts.EnsureAccount(ctx, accountdomain.EnsureAccountRequest{ID: 100})
	require.NoError(t, err)
	assert.False(t, second.Created)
	assert.Equal(t, int64(10), second.Account.TrialBalance)

	assert.Equal(t, []auditdomain.EventType{auditdomain.EventAccountCreated}, env.AuditEvents(t, 100))

	result, err := env.Ledger.Reconcile(ctx, 100)
	require.NoError(t, err)
	assert.True(t, result.OK())
}

func TestEnsureAccountHonorsInitialStatusPolicy(t *testing.T) {
	env := testenv.New(t, testenv.WithPolicy(func(cfg *config.LifecycleConfig) {
		cfg.InitialStatusActive = true
		cfg.TrialDays = 0
	}))

	result, err := env.Accounts.EnsureAccount(context.Background(), accountdomain.EnsureAccountRequest{ID: 7})
	require.NoError(t, err)
	assert.Equal(t, accountdomain.StatusActive, result.Account.Status)
	assert.True(t, result.Account.IsSubscribed)
	assert.Equal(t, int64(0), result.Account.TotalBalance())
}

func TestEnsureAccountReferrals(t *testing.T) {
	env := testenv.New(t)
	ctx := context.Background()
	referrer := int64(1)
	self := int64(3)

	_, err := env.Accounts.EnsureAccount(ctx, accountdomain.EnsureAccountRequest{ID: 1})
	require.NoError(t, err)
	_, err = env.Accounts.EnsureAccount(ctx, accountdomain.EnsureAccountRequest{ID: 2, ReferrerID: &referrer})
	require.NoError(t, err)
	selfRef, err := env.Accounts.EnsureAccount(ctx, accountdomain.EnsureAccountRequest{ID: 3, ReferrerID: &self})
	require.NoError(t, err)
	assert.Nil(t, selfRef.Account.ReferrerID)

	referrals, err := env.Accounts.ListReferrals(ctx, 1)
	require.NoError(t, err)
	require.Len(t, referrals, 1)
	assert.Equal(t, int64(2), referrals[0].ID)

	none, err := env.Accounts.ListReferrals(ctx, 3)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestAccountLookupErrors(t *testing.T) {
	env := testenv.New(t)
	ctx := context.Background()

	_, err := env.Accounts.EnsureAccount(ctx, accountdomain.EnsureAccountRequest{})
	assert.ErrorIs(t, err, accountdomain.ErrInvalidAccountID)

	_, err = env.Accounts.Get(ctx, 55)
	assert.ErrorIs(t, err, accountdomain.ErrAccountNotFound)

	_, err = env.Accounts.ListIDsByStatus(ctx, nil, "PAUSED", 10, 0)
	assert.ErrorIs(t, err, accountdomain.ErrInvalidStatus)
}

func TestListIDsByStatusPages(t *testing.T) {
	env := testenv.New(t)
	ctx := context.Background()
	for _, id := range []int64{5, 1, 3} {
		env.CreateAccount(t, id, accountdomain.StatusActive, 1, 0, 0)
	}
	env.CreateAccount(t, 2, accountdomain.StatusFrozen, 1, 0, 0)

	page, err := env.Accounts.ListIDsByStatus(ctx, nil, accountdomain.StatusActive, 2, 0)
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 3}, page)

	page, err = env.Accounts.ListIDsByStatus(ctx, nil, accountdomain.StatusActive, 2, 3)
	require.NoError(t, err)
	assert.Equal(t, []int64{5}, page)
}
