package logger

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	gormlogger "gorm.io/gorm/logger"
)

func TestOperationFromSQL(t *testing.T) {
	assert.Equal(t, "SELECT", operationFromSQL("select id from accounts"))
	assert.Equal(t, "UPDATE", operationFromSQL("WITH due AS (SELECT 1) UPDATE accounts SET status = 'FROZEN'"))
	assert.Equal(t, "INSERT", operationFromSQL("(INSERT INTO ledger_entries VALUES (1))"))
	assert.Equal(t, "UNKNOWN", operationFromSQL("PRAGMA journal_mode"))
}

func TestGormLoggerTrace(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	restore := zap.ReplaceGlobals(zap.New(core))
	defer restore()

	l := NewGormLogger(DefaultGormLoggerConfig())
	stmt := func() (string, int64) { return "UPDATE accounts SET trial_balance = 1", 1 }
	ctx := context.Background()

	l.Trace(ctx, time.Now(), stmt, nil)
	assert.Equal(t, 0, logs.Len(), "fast statements stay quiet at warn")

	l.Trace(ctx, time.Now(), stmt, gormlogger.ErrRecordNotFound)
	assert.Equal(t, 0, logs.Len(), "not found is ignored")

	l.Trace(ctx, time.Now(), stmt, errors.New("boom"))
	l.Trace(ctx, time.Now().Add(-time.Second), stmt, nil)
	require.Equal(t, 2, logs.Len())
	assert.Equal(t, zapcore.ErrorLevel, logs.All()[0].Level)
	assert.Equal(t, "UPDATE", logs.All()[0].ContextMap()["operation"])
	assert.Equal(t, zapcore.WarnLevel, logs.All()[1].Level)

	l.LogMode(gormlogger.Silent).Trace(ctx, time.Now(), stmt, errors.New("boom"))
	assert.Equal(t, 2, logs.Len())
}
