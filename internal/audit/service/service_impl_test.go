package service_test

import (
	"context"
	"testing"
	"time"

	auditdomain "github.com/smallbiznis/botquota/internal/audit/domain"
	"github.com/smallbiznis/botquota/internal/testenv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppendValidatesEvent(t *testing.T) {
	env := testenv.New(t)
	ctx := context.Background()

	err := env.Audit.Append(ctx, auditdomain.Event{AccountID: 1, Type: "SOMETHING"})
	assert.ErrorIs(t, err, auditdomain.ErrInvalidEvent)

	err = env.Audit.Append(ctx, auditdomain.Event{Type: auditdomain.EventUserDeleted})
	assert.ErrorIs(t, err, auditdomain.ErrInvalidAccount)

	_, err = env.Audit.List(ctx, 0, 10)
	assert.ErrorIs(t, err, auditdomain.ErrInvalidAccount)
}

func TestEmitPersistsNewestFirst(t *testing.T) {
	env := testenv.New(t)
	ctx := context.Background()

	env.Audit.Emit(ctx,
		auditdomain.Event{AccountID: 9, Type: auditdomain.EventStatusChanged, Payload: map[string]any{"from": "ACTIVE", "to": "FROZEN"}},
		auditdomain.Event{AccountID: 9, Type: "BOGUS"},
	)
	env.Clock.Advance(time.Second)
	env.Audit.Emit(ctx, auditdomain.Event{AccountID: 9, Type: auditdomain.EventPremiumChanged, Payload: map[string]any{"is_premium": true}})

	logs, err := env.Audit.List(ctx, 9, 10)
	require.NoError(t, err)
	require.Len(t, logs, 2)
	assert.Equal(t, auditdomain.EventPremiumChanged, logs[0].Event)
	assert.Equal(t, auditdomain.EventStatusChanged, logs[1].Event)
	assert.Equal(t, "FROZEN", logs[1].Payload["to"])

	limited, err := env.Audit.List(ctx, 9, 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}
