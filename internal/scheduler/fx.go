package scheduler

import (
	"context"

	"github.com/smallbiznis/botquota/internal/scheduler/watermark"
	"go.uber.org/fx"
)

// Module provides the scheduler without starting its loop.
var Module = fx.Module("scheduler",
	fx.Provide(ProvideConfig),
	fx.Provide(watermark.Provide),
	fx.Provide(New),
)

// Runner starts RunForever with the application and stops it on shutdown.
var Runner = fx.Invoke(StartScheduler)

// StartScheduler ties RunForever to lc. OnStop waits for the in-flight
// account unit to finish, or for the stop context to expire.
func StartScheduler(lc fx.Lifecycle, sched *Scheduler) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				defer close(done)
				sched.RunForever(ctx)
			}()
			return nil
		},
		OnStop: func(stopCtx context.Context) error {
			cancel()
			select {
			case <-done:
				return nil
			case <-stopCtx.Done():
				sched.log.Warn("scheduler.stop.timeout")
				return stopCtx.Err()
			}
		},
	})
}
