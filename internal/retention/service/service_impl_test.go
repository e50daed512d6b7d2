package service_test

import (
	"context"
	"errors"
	"testing"
	"time"

	accountdomain "github.com/smallbiznis/botquota/internal/account/domain"
	auditdomain "github.com/smallbiznis/botquota/internal/audit/domain"
	botdomain "github.com/smallbiznis/botquota/internal/botregistry/domain"
	ledgerdomain "github.com/smallbiznis/botquota/internal/ledger/domain"
	retentiondomain "github.com/smallbiznis/botquota/internal/retention/domain"
	"github.com/smallbiznis/botquota/internal/testenv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const day = 24 * time.Hour

func registerBot(t *testing.T, env *testenv.Env, owner int64) {
	t.Helper()
	_, err := env.Bots.Register(context.Background(), botdomain.RegisterBotRequest{
		OwnerID:        owner,
		TokenEncrypted: "enc:token",
	})
	require.NoError(t, err)
}

func TestReapDeletesOnlyAccountsPastGrace(t *testing.T) {
	env := testenv.New(t)
	ctx := context.Background()
	now := env.Clock.Now()

	env.CreateAccount(t, 1, accountdomain.StatusActive, 1, 0, 0)
	env.CreateAccount(t, 2, accountdomain.StatusActive, 1, 0, 0)
	env.CreateAccount(t, 3, accountdomain.StatusActive, 4, 0, 0)
	registerBot(t, env, 1)
	registerBot(t, env, 1)
	env.SetExpired(t, 1, now.Add(-8*day))
	env.SetExpired(t, 2, now.Add(-6*day))

	result, err := env.Retention.Reap(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Candidates)
	assert.Equal(t, 1, result.Deleted)
	assert.Zero(t, result.Failed())

	assert.Equal(t, accountdomain.StatusDeleted, env.MustAccount(t, 1).Status)
	assert.Equal(t, accountdomain.StatusExpired, env.MustAccount(t, 2).Status)
	assert.Equal(t, accountdomain.StatusActive, env.MustAccount(t, 3).Status)

	bots, err := env.Bots.ListByOwner(ctx, 1)
	require.NoError(t, err)
	assert.Empty(t, bots)

	logs, err := env.Audit.List(ctx, 1, 1)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, auditdomain.EventUserDeleted, logs[0].Event)
	assert.EqualValues(t, 2, logs[0].Payload["bots_deleted"])
	assert.Equal(t, false, logs[0].Payload["forced"])
}

func TestDeleteCascadeFailureKeepsAccount(t *testing.T) {
	env := testenv.New(t)
	ctx := context.Background()
	env.CreateAccount(t, 10, accountdomain.StatusActive, 1, 0, 0)
	env.SetExpired(t, 10, env.Clock.Now().Add(-8*day))
	env.Registry.Fail(10, errors.New("registry unavailable"))

	_, err := env.Retention.Delete(ctx, 10, retentiondomain.DeleteOptions{})
	assert.ErrorIs(t, err, retentiondomain.ErrCascadeFailed)
	assert.Equal(t, accountdomain.StatusExpired, env.MustAccount(t, 10).Status)

	result, err := env.Retention.Reap(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Failed())
	assert.Zero(t, result.Deleted)

	env.Registry.Fail(10, nil)
	result, err = env.Retention.Reap(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Deleted)
	assert.Equal(t, accountdomain.StatusDeleted, env.MustAccount(t, 10).Status)
}

func TestForcedDeleteIgnoresEligibilityAndCascadeFailure(t *testing.T) {
	env := testenv.New(t)
	ctx := context.Background()
	env.CreateAccount(t, 11, accountdomain.StatusActive, 5, 0, 0)
	env.Registry.Fail(11, errors.New("registry unavailable"))

	result, err := env.Retention.Delete(ctx, 11, retentiondomain.DeleteOptions{Force: true})
	require.NoError(t, err)
	assert.True(t, result.Deleted)
	assert.True(t, result.Forced)
	assert.Equal(t, accountdomain.StatusDeleted, env.MustAccount(t, 11).Status)
}

func TestDeleteNotEligibleAndIdempotent(t *testing.T) {
	env := testenv.New(t)
	ctx := context.Background()
	env.CreateAccount(t, 12, accountdomain.StatusActive, 5, 0, 0)

	_, err := env.Retention.Delete(ctx, 12, retentiondomain.DeleteOptions{})
	assert.ErrorIs(t, err, retentiondomain.ErrNotEligible)

	_, err = env.Retention.Delete(ctx, 12, retentiondomain.DeleteOptions{Force: true})
	require.NoError(t, err)

	result, err := env.Retention.Delete(ctx, 12, retentiondomain.DeleteOptions{})
	require.NoError(t, err)
	assert.True(t, result.AlreadyDeleted)
	assert.False(t, result.Deleted)

	_, err = env.Retention.Delete(ctx, 404, retentiondomain.DeleteOptions{})
	assert.ErrorIs(t, err, retentiondomain.ErrAccountNotFound)
}

func TestDeleteReportsCascadeOrphanedByConcurrentGrant(t *testing.T) {
	env := testenv.New(t)
	ctx := context.Background()
	env.CreateAccount(t, 13, accountdomain.StatusActive, 1, 0, 0)
	registerBot(t, env, 13)
	env.SetExpired(t, 13, env.Clock.Now().Add(-8*day))
	env.Registry.AfterDelete(func(ownerID int64) {
		_, err := env.Lifecycle.ApplyGrant(ctx, ledgerdomain.GrantRequest{
			AccountID: ownerID, Pool: accountdomain.PoolPaid, Amount: 3, Source: ledgerdomain.SourcePayment,
		})
		require.NoError(t, err)
	})

	result, err := env.Retention.Delete(ctx, 13, retentiondomain.DeleteOptions{})
	assert.ErrorIs(t, err, retentiondomain.ErrNotEligible)
	assert.True(t, result.Orphaned)
	assert.False(t, result.Deleted)
	assert.EqualValues(t, 1, result.BotsDeleted)
	assert.Equal(t, accountdomain.StatusActive, env.MustAccount(t, 13).Status)
	assert.NotContains(t, env.AuditEvents(t, 13), auditdomain.EventUserDeleted)
}
