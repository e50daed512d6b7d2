package scheduler

import (
	"context"
	"testing"
	"time"

	accountdomain "github.com/smallbiznis/botquota/internal/account/domain"
	"github.com/smallbiznis/botquota/internal/scheduler/watermark"
	"github.com/smallbiznis/botquota/internal/testenv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/fx/fxtest"
	"go.uber.org/zap"
)

// gatedChecker blocks every call until release is closed.
type gatedChecker struct {
	entered chan struct{}
	release chan struct{}
}

func (c *gatedChecker) IsSubscribed(context.Context, int64) (bool, error) {
	select {
	case c.entered <- struct{}{}:
	default:
	}
	<-c.release
	return true, nil
}

func TestStartSchedulerStopWaitsForInFlightUnit(t *testing.T) {
	env := testenv.New(t)
	env.CreateAccount(t, 1, accountdomain.StatusActive, 3, 0, 0)
	checker := &gatedChecker{entered: make(chan struct{}, 1), release: make(chan struct{})}
	s, err := New(Params{
		DB:           env.DB,
		Log:          zap.NewNop(),
		GenID:        env.GenID,
		Clock:        env.Clock,
		Policy:       env.Policy,
		AccountRepo:  env.AccountRepo,
		LedgerSvc:    env.Ledger,
		LifecycleSvc: env.Lifecycle,
		RetentionSvc: env.Retention,
		Checker:      checker,
		Watermarks:   watermark.Provide(),
		Config:       Config{Concurrency: 1, BatchSize: 10, RunInterval: time.Hour},
	})
	require.NoError(t, err)

	lc := fxtest.NewLifecycle(t)
	StartScheduler(lc, s)
	lc.RequireStart()

	select {
	case <-checker.entered:
	case <-time.After(5 * time.Second):
		t.Fatal("account unit never started")
	}

	stopped := make(chan error, 1)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		stopped <- lc.Stop(ctx)
	}()

	select {
	case <-stopped:
		t.Fatal("stop returned while the account unit was still running")
	case <-time.After(50 * time.Millisecond):
	}

	close(checker.release)
	select {
	case err := <-stopped:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("stop did not return after the unit finished")
	}
	assert.Equal(t, int64(2), env.MustAccount(t, 1).TrialBalance)
}
