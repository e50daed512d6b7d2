package service_test

import (
	"context"
	"testing"

	accountdomain "github.com/smallbiznis/botquota/internal/account/domain"
	botdomain "github.com/smallbiznis/botquota/internal/botregistry/domain"
	"github.com/smallbiznis/botquota/internal/testenv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterRequiresLiveOwner(t *testing.T) {
	env := testenv.New(t)
	ctx := context.Background()

	_, err := env.Bots.Register(ctx, botdomain.RegisterBotRequest{OwnerID: 1, TokenEncrypted: "c"})
	assert.ErrorIs(t, err, botdomain.ErrOwnerNotFound)

	env.CreateAccount(t, 1, accountdomain.StatusActive, 1, 0, 0)
	require.NoError(t, env.AccountRepo.MarkDeleted(ctx, env.DB, 1, testenv.Epoch))
	_, err = env.Bots.Register(ctx, botdomain.RegisterBotRequest{OwnerID: 1, TokenEncrypted: "c"})
	assert.ErrorIs(t, err, botdomain.ErrOwnerDeleted)

	_, err = env.Bots.Register(ctx, botdomain.RegisterBotRequest{OwnerID: 0, TokenEncrypted: "c"})
	assert.ErrorIs(t, err, botdomain.ErrInvalidOwner)
	_, err = env.Bots.Register(ctx, botdomain.RegisterBotRequest{OwnerID: 1, TokenEncrypted: " "})
	assert.ErrorIs(t, err, botdomain.ErrInvalidToken)
}

func TestDeleteAllOwnedByRemovesOnlyOwnersBots(t *testing.T) {
	env := testenv.New(t)
	ctx := context.Background()
	env.CreateAccount(t, 1, accountdomain.StatusActive, 1, 0, 0)
	env.CreateAccount(t, 2, accountdomain.StatusActive, 1, 0, 0)

	for _, owner := range []int64{1, 1, 2} {
		_, err := env.Bots.Register(ctx, botdomain.RegisterBotRequest{OwnerID: owner, TokenEncrypted: "cipher", Config: map[string]any{"lang": "en"}})
		require.NoError(t, err)
	}

	deleted, err := env.Bots.DeleteAllOwnedBy(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(2), deleted)

	again, err := env.Bots.DeleteAllOwnedBy(ctx, 1)
	require.NoError(t, err)
	assert.Zero(t, again)

	remaining, err := env.Bots.ListByOwner(ctx, 2)
	require.NoError(t, err)
	require.Len(t, remaining, 1)
	assert.Equal(t, "en", remaining[0].Config["lang"])
}
