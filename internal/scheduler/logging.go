package scheduler

import (
	"context"
	"strconv"
	"time"

	obscontext "github.com/smallbiznis/botquota/internal/observability/context"
	obslogger "github.com/smallbiznis/botquota/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/botquota/internal/observability/metrics"
	"go.uber.org/zap"
)

// runStats is the per-run tally written on scheduler.job.finish. A run is
// owned by the outermost job call; nested calls share the owner's tally.
type runStats struct {
	id        string
	job       string
	batchSize int
	started   time.Time
	processed int
	failed    int
}

type runStatsKey struct{}

func (r *runStats) record(processed, failed int) {
	if r == nil {
		return
	}
	r.processed += max(processed, 0)
	r.failed += max(failed, 0)
}

func (r *runStats) fields() []zap.Field {
	return []zap.Field{
		zap.Duration("elapsed", time.Since(r.started)),
		zap.Int("processed_count", r.processed),
		zap.Int("failed_count", r.failed),
	}
}

// beginRun attaches a run to ctx unless one is already there. owner reports
// whether this call created it and so must log its finish.
func (s *Scheduler) beginRun(ctx context.Context, job string, batchSize int) (_ context.Context, run *runStats, owner bool) {
	if run, ok := ctx.Value(runStatsKey{}).(*runStats); ok {
		return ctx, run, false
	}
	run = &runStats{
		id:        s.genID.Generate().String(),
		job:       job,
		batchSize: batchSize,
		started:   time.Now(),
	}
	ctx = context.WithValue(ctx, runStatsKey{}, run)
	ctx = obscontext.WithRun(ctx, job, run.id)
	ctx = obscontext.WithActor(ctx, "system", "scheduler")
	s.logger(ctx).Info("scheduler.job.start", zap.Int("batch_size", batchSize))
	return ctx, run, true
}

func (s *Scheduler) endRun(ctx context.Context, run *runStats, err error) {
	if err != nil && run.failed == 0 {
		run.failed = 1
	}
	if run.failed > 0 {
		s.logger(ctx).Warn("scheduler.job.finish", run.fields()...)
		return
	}
	s.logger(ctx).Info("scheduler.job.finish", run.fields()...)
}

func accountContext(ctx context.Context, accountID int64) context.Context {
	if accountID == 0 {
		return ctx
	}
	return obscontext.WithAccountID(ctx, strconv.FormatInt(accountID, 10))
}

func (s *Scheduler) logger(ctx context.Context) *zap.Logger {
	return obslogger.WithContext(ctx, s.log)
}

// logFailure counts err against run (when given) and logs it with its
// classification so retryable failures are easy to tell apart.
func (s *Scheduler) logFailure(ctx context.Context, run *runStats, msg string, accountID int64, err error, fields ...zap.Field) {
	if err == nil {
		return
	}
	run.record(0, 1)
	fields = append(fields,
		zap.Error(err),
		zap.String("error_type", obsmetrics.ClassifySchedulerErrorType(err)),
		zap.String("reason", obsmetrics.ClassifySchedulerJobReason(err)),
		zap.Bool("retryable", obsmetrics.IsSchedulerErrorRetryable(err)),
	)
	s.logger(accountContext(ctx, accountID)).Error(msg, fields...)
}
