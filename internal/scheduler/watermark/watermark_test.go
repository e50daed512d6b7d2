package watermark_test

import (
	"context"
	"testing"
	"time"

	"github.com/smallbiznis/botquota/internal/dbtest"
	"github.com/smallbiznis/botquota/internal/scheduler/watermark"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSaveUpsertsPerJob(t *testing.T) {
	db := dbtest.Open(t)
	store := watermark.Provide()
	ctx := context.Background()
	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	mark, err := store.Get(ctx, db, "consume_days")
	require.NoError(t, err)
	assert.Nil(t, mark)

	require.NoError(t, store.Save(ctx, db, watermark.Watermark{Job: "consume_days", PeriodStart: start, CompletedAt: start.Add(time.Minute)}))
	require.NoError(t, store.Save(ctx, db, watermark.Watermark{Job: "consume_days", PeriodStart: start.Add(24 * time.Hour), CompletedAt: start.Add(25 * time.Hour)}))

	mark, err = store.Get(ctx, db, "consume_days")
	require.NoError(t, err)
	require.NotNil(t, mark)
	assert.True(t, mark.PeriodStart.Equal(start.Add(24*time.Hour)))

	other, err := store.Get(ctx, db, "reap_expired")
	require.NoError(t, err)
	assert.Nil(t, other)
}
