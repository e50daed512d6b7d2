package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/cenkalti/backoff/v5"
	accountdomain "github.com/smallbiznis/botquota/internal/account/domain"
	"github.com/smallbiznis/botquota/internal/clock"
	"github.com/smallbiznis/botquota/internal/config"
	ledgerdomain "github.com/smallbiznis/botquota/internal/ledger/domain"
	lifecycledomain "github.com/smallbiznis/botquota/internal/lifecycle/domain"
	obsmetrics "github.com/smallbiznis/botquota/internal/observability/metrics"
	"github.com/smallbiznis/botquota/internal/observability/tracing"
	"github.com/smallbiznis/botquota/internal/ratelimit"
	retentiondomain "github.com/smallbiznis/botquota/internal/retention/domain"
	"github.com/smallbiznis/botquota/internal/scheduler/guard"
	"github.com/smallbiznis/botquota/internal/scheduler/watermark"
	"github.com/smallbiznis/botquota/internal/subscription"
	"github.com/smallbiznis/botquota/pkg/db"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

var (
	ErrInvalidConfig = errors.New("invalid_scheduler_config")
	ErrUnknownJob    = errors.New("unknown_scheduler_job")
	ErrBusy          = errors.New("scheduler_busy")
)

type Params struct {
	fx.In

	DB           *gorm.DB
	Log          *zap.Logger
	GenID        *snowflake.Node
	Clock        clock.Clock
	Policy       *config.LifecycleConfigHolder
	AccountRepo  accountdomain.Repository
	LedgerSvc    ledgerdomain.Service
	LifecycleSvc lifecycledomain.Service
	RetentionSvc retentiondomain.Service
	Checker      subscription.Checker
	Watermarks   watermark.Store
	Locker       *ratelimit.Locker `optional:"true"`
	Config       Config            `optional:"true"`
}

type Scheduler struct {
	db           *gorm.DB
	log          *zap.Logger
	cfg          Config
	genID        *snowflake.Node
	clock        clock.Clock
	policy       *config.LifecycleConfigHolder
	accountRepo  accountdomain.Repository
	ledgerSvc    ledgerdomain.Service
	lifecycleSvc lifecycledomain.Service
	retentionSvc retentiondomain.Service
	checker      subscription.Checker
	watermarks   watermark.Store
	locker       *ratelimit.Locker

	runMu    sync.Mutex
	lastReap time.Time
}

func New(p Params) (*Scheduler, error) {
	if p.DB == nil || p.Log == nil || p.GenID == nil || p.Clock == nil || p.Policy == nil ||
		p.AccountRepo == nil || p.LedgerSvc == nil || p.LifecycleSvc == nil ||
		p.RetentionSvc == nil || p.Checker == nil || p.Watermarks == nil {
		return nil, ErrInvalidConfig
	}
	return &Scheduler{
		db:           p.DB,
		log:          p.Log.Named("scheduler").With(zap.String("component", "scheduler")),
		cfg:          p.Config.withDefaults(),
		genID:        p.GenID,
		clock:        p.Clock,
		policy:       p.Policy,
		accountRepo:  p.AccountRepo,
		ledgerSvc:    p.LedgerSvc,
		lifecycleSvc: p.LifecycleSvc,
		retentionSvc: p.RetentionSvc,
		checker:      p.Checker,
		watermarks:   p.Watermarks,
		locker:       p.Locker,
	}, nil
}

func (s *Scheduler) runJob(
	parent context.Context,
	name string,
	batchSize int,
	timeout time.Duration,
	fn func(ctx context.Context) error,
) error {
	start := s.clock.Now()
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	ctx, run, owner := s.beginRun(ctx, name, batchSize)
	schedMetrics := obsmetrics.Scheduler()
	schedMetrics.IncJobRun(name)

	err := fn(ctx)
	schedMetrics.ObserveJobDuration(name, time.Since(start))
	if owner {
		s.endRun(ctx, run, err)
	}
	if err == nil {
		return nil
	}

	isTimeout := errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)
	if isTimeout {
		schedMetrics.IncJobTimeout(name)
	}
	schedMetrics.IncJobError(name, err)
	if isTimeout {
		s.logger(ctx).Warn("scheduler.job.timeout",
			zap.Duration("timeout", timeout),
			zap.Error(err),
		)
		return nil
	}

	return fmt.Errorf("%s: %w", name, err)
}

// RunOnce runs every enabled job that is due. A run already in progress, in
// this process or in another instance sharing Redis, makes it a no-op.
func (s *Scheduler) RunOnce(parent context.Context) error {
	release, ok, err := s.acquire(parent)
	if err != nil || !ok {
		return err
	}
	defer release()

	var jobErr error
	if s.isJobEnabled(JobConsumeDays) {
		jobErr = errors.Join(jobErr, s.runJob(parent, JobConsumeDays, s.cfg.BatchSize, s.cfg.ConsumeTimeout, s.ConsumeDaysJob))
	}
	if s.isJobEnabled(JobReapExpired) && s.reapDue() {
		jobErr = errors.Join(jobErr, s.runJob(parent, JobReapExpired, s.cfg.BatchSize, s.cfg.ReapTimeout, s.ReapExpiredJob))
	}
	return jobErr
}

// Trigger runs a single job now, ignoring the reap interval.
func (s *Scheduler) Trigger(parent context.Context, job string) error {
	var fn func(context.Context) error
	timeout := s.cfg.ConsumeTimeout
	switch job {
	case JobConsumeDays:
		fn = s.ConsumeDaysJob
	case JobReapExpired:
		fn = s.ReapExpiredJob
		timeout = s.cfg.ReapTimeout
	default:
		return fmt.Errorf("%w: %s", ErrUnknownJob, job)
	}

	release, ok, err := s.acquire(parent)
	if err != nil {
		return err
	}
	if !ok {
		return ErrBusy
	}
	defer release()
	return s.runJob(parent, job, s.cfg.BatchSize, timeout, fn)
}

func (s *Scheduler) RunForever(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.RunInterval)
	defer ticker.Stop()
	nextRun := s.clock.Now().Add(s.cfg.RunInterval)
	schedMetrics := obsmetrics.Scheduler()

	for {
		runLag := time.Since(nextRun)
		if runLag > 0 {
			schedMetrics.ObserveRunLoopLag(runLag)
		}
		if err := s.RunOnce(ctx); err != nil {
			s.log.Warn("scheduler.run.failed", zap.Error(err))
		}
		nextRun = nextRun.Add(s.cfg.RunInterval)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (s *Scheduler) acquire(ctx context.Context) (func(), bool, error) {
	schedMetrics := obsmetrics.Scheduler()
	if !s.runMu.TryLock() {
		schedMetrics.IncLockSkip(obsmetrics.LockGuardLocal)
		s.log.Debug("scheduler.run.skipped", zap.String("guard", obsmetrics.LockGuardLocal))
		return nil, false, nil
	}
	if s.locker == nil {
		return s.runMu.Unlock, true, nil
	}

	token, ok, err := s.locker.TryLock(ctx, runLockKey, s.cfg.LockTTL)
	if err != nil {
		s.runMu.Unlock()
		return nil, false, fmt.Errorf("acquire run lock: %w", err)
	}
	if !ok {
		s.runMu.Unlock()
		schedMetrics.IncLockSkip(obsmetrics.LockGuardRedis)
		s.log.Debug("scheduler.run.skipped", zap.String("guard", obsmetrics.LockGuardRedis))
		return nil, false, nil
	}
	return func() {
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := s.locker.Release(releaseCtx, runLockKey, token); err != nil {
			s.log.Warn("scheduler.lock.release.failed", zap.Error(err))
		}
		s.runMu.Unlock()
	}, true, nil
}

// reapDue and markReaped must be called with runMu held. Only a pass with no
// failures is marked, so a failed pass is retried on the next tick.
func (s *Scheduler) reapDue() bool {
	return s.lastReap.IsZero() || s.clock.Now().Sub(s.lastReap) >= s.cfg.ReapInterval
}

func (s *Scheduler) markReaped(at time.Time) {
	s.lastReap = at
}

func (s *Scheduler) isJobEnabled(jobName string) bool {
	if len(s.cfg.EnabledJobs) == 0 {
		return true
	}
	for _, enabled := range s.cfg.EnabledJobs {
		if strings.EqualFold(enabled, jobName) {
			return true
		}
	}
	return false
}

// ConsumeDaysJob applies every due billing period that the watermark has not
// covered yet, oldest first.
func (s *Scheduler) ConsumeDaysJob(ctx context.Context) (err error) {
	ctx, run, owner := s.beginRun(ctx, JobConsumeDays, s.cfg.BatchSize)
	if owner {
		defer func() { s.endRun(ctx, run, err) }()
	}

	length := s.policy.Get().BillingPeriod
	current := s.clock.Now().UTC().Truncate(length)
	periods, err := s.duePeriods(ctx, current, length)
	if err != nil {
		s.logFailure(ctx, run, "scheduler.watermark.read.failed", 0, err)
		return err
	}

	applied := 0
	defer func() {
		obsmetrics.Scheduler().AddPeriodsApplied(JobConsumeDays, applied)
	}()
	for _, period := range periods {
		if err := ctx.Err(); err != nil {
			return err
		}
		processed, failed, err := s.applyPeriod(ctx, run, period)
		if err != nil {
			s.logFailure(ctx, run, "scheduler.period.failed", 0, err, zap.Time("period_start", period))
			return err
		}
		s.logger(ctx).Info("scheduler.period.applied",
			zap.Time("period_start", period),
			zap.Int("processed_count", processed),
			zap.Int("failed_count", failed),
		)
		if failed > 0 {
			// Later periods wait until the failed accounts have been charged for this one.
			s.logger(ctx).Warn("scheduler.watermark.held",
				zap.Time("period_start", period),
				zap.Int("failed_count", failed),
			)
			return nil
		}
		if err := s.watermarks.Save(ctx, s.db, watermark.Watermark{
			Job:         JobConsumeDays,
			PeriodStart: period,
			CompletedAt: s.clock.Now(),
		}); err != nil {
			s.logFailure(ctx, run, "scheduler.watermark.save.failed", 0, err, zap.Time("period_start", period))
			return err
		}
		applied++
	}
	return nil
}

func (s *Scheduler) duePeriods(ctx context.Context, current time.Time, length time.Duration) ([]time.Time, error) {
	mark, err := s.watermarks.Get(ctx, s.db, JobConsumeDays)
	if err != nil {
		return nil, err
	}
	if mark == nil {
		return []time.Time{current}, nil
	}

	last := mark.PeriodStart.UTC()
	if !last.Before(current) {
		return nil, nil
	}
	first := last.Add(length)
	missed := int(current.Sub(last) / length)
	if missed > s.cfg.MaxCatchUpPeriods {
		first = current.Add(-time.Duration(s.cfg.MaxCatchUpPeriods-1) * length)
		s.logger(ctx).Warn("scheduler.catchup.capped",
			zap.Int("missed_periods", missed),
			zap.Int("max_catch_up", s.cfg.MaxCatchUpPeriods),
			zap.Time("first_period", first),
		)
	}

	var periods []time.Time
	for p := first; !p.After(current); p = p.Add(length) {
		periods = append(periods, p)
	}
	return periods, nil
}

// applyPeriod charges every account that was ACTIVE when the pass began once
// for period. Ids are snapshotted up front, then handled in batches with
// bounded parallelism; a failed account never stops the pass.
func (s *Scheduler) applyPeriod(ctx context.Context, run *runStats, period time.Time) (int, int, error) {
	if err := guard.EnsurePeriodDue(period, s.clock.Now()); err != nil {
		return 0, 0, err
	}
	ids, err := s.activeSnapshot(ctx)
	if err != nil {
		return 0, 0, err
	}

	schedMetrics := obsmetrics.Scheduler()
	var (
		processed atomic.Int64
		failed    atomic.Int64
	)
	for start := 0; start < len(ids) && ctx.Err() == nil; start += s.cfg.BatchSize {
		batch := ids[start:min(start+s.cfg.BatchSize, len(ids))]

		var g errgroup.Group
		g.SetLimit(s.cfg.Concurrency)
		for _, id := range batch {
			if ctx.Err() != nil {
				break
			}
			g.Go(func() error {
				outcome, err := s.consumeAccount(ctx, period, id)
				if err != nil {
					failed.Add(1)
					schedMetrics.IncAccountFailed(JobConsumeDays, err)
					s.logFailure(ctx, nil, "scheduler.account.process.failed", id, err,
						zap.Time("period_start", period),
					)
					return nil
				}
				processed.Add(1)
				schedMetrics.AddAccountsProcessed(JobConsumeDays, outcome, 1)
				return nil
			})
		}
		_ = g.Wait()
	}

	run.record(int(processed.Load()), int(failed.Load()))
	if err := ctx.Err(); err != nil {
		return int(processed.Load()), int(failed.Load()), err
	}
	return int(processed.Load()), int(failed.Load()), nil
}

// activeSnapshot pages through every ACTIVE account id in ascending order.
func (s *Scheduler) activeSnapshot(ctx context.Context) ([]int64, error) {
	var (
		ids     []int64
		afterID int64
	)
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		page, err := s.accountRepo.ListIDsByStatus(ctx, s.db, accountdomain.StatusActive, s.cfg.BatchSize, afterID)
		if err != nil {
			return nil, err
		}
		ids = append(ids, page...)
		if len(page) < s.cfg.BatchSize {
			return ids, nil
		}
		afterID = page[len(page)-1]
	}
}

// consumeAccount runs one account's unit of work for period in its own
// transaction. It is detached from the caller's cancellation.
func (s *Scheduler) consumeAccount(parent context.Context, period time.Time, accountID int64) (outcome string, err error) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(parent), s.cfg.UnitTimeout)
	defer cancel()
	ctx = accountContext(ctx, accountID)
	ctx, span := tracing.Start(ctx, "scheduler.consume_account",
		tracing.AccountID(accountID),
		attribute.String("botquota.period_start", period.Format(time.RFC3339)),
	)
	defer func() { tracing.End(span, err) }()

	snapshot, err := s.accountRepo.FindByID(ctx, s.db, accountID)
	if err != nil {
		return "", err
	}
	if snapshot == nil || guard.EnsureAccountCanBeCharged(*snapshot, period) != nil {
		return obsmetrics.AccountOutcomeSkipped, nil
	}

	var isSubscribed *bool
	if !s.cfg.UseStoredSubscription {
		v := subscription.FailClosed(ctx, s.checker, s.logger(ctx), accountID)
		isSubscribed = &v
	}

	var resolution lifecycledomain.Resolution
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = unitRetryDelay
	outcome, err = backoff.Retry(ctx, func() (string, error) {
		var (
			result string
			txErr  error
		)
		result, resolution, txErr = s.chargeAccount(ctx, period, accountID, isSubscribed)
		if txErr != nil && !db.IsRetryableTxErr(txErr) {
			return "", backoff.Permanent(txErr)
		}
		return result, txErr
	}, backoff.WithBackOff(policy), backoff.WithMaxTries(unitMaxTries))
	if errors.Is(err, ledgerdomain.ErrPeriodAlreadyCharged) {
		return obsmetrics.AccountOutcomeSkipped, nil
	}
	if err != nil {
		return "", err
	}
	s.lifecycleSvc.Publish(ctx, resolution)
	return outcome, nil
}

// chargeAccount locks the account, charges one day for period and resolves
// its status in a single transaction.
func (s *Scheduler) chargeAccount(ctx context.Context, period time.Time, accountID int64, isSubscribed *bool) (string, lifecycledomain.Resolution, error) {
	outcome := obsmetrics.AccountOutcomeSkipped
	var resolution lifecycledomain.Resolution
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		account, err := s.accountRepo.LockByID(ctx, tx, accountID)
		if err != nil {
			return err
		}
		if account == nil {
			return nil
		}
		if err := guard.EnsureAccountCanBeCharged(*account, period); err != nil {
			return nil
		}

		entry, err := s.ledgerSvc.ConsumeNextTx(ctx, tx, account, period)
		if err != nil {
			return err
		}
		if err := s.accountRepo.SetLastConsumedPeriod(ctx, tx, accountID, period, s.clock.Now().UTC()); err != nil {
			return err
		}
		applied := period
		account.LastConsumedPeriod = &applied

		subscribed := account.IsSubscribed
		if isSubscribed != nil {
			subscribed = *isSubscribed
		}
		resolution, err = s.lifecycleSvc.ResolveTx(ctx, tx, account, subscribed)
		if err != nil {
			return err
		}

		outcome = obsmetrics.AccountOutcomeDrained
		if entry != nil {
			outcome = obsmetrics.AccountOutcomeCharged
		}
		return nil
	})
	if err != nil {
		return "", lifecycledomain.Resolution{}, err
	}
	return outcome, resolution, nil
}

// ReapExpiredJob deletes accounts whose post-expiry grace period has run out.
func (s *Scheduler) ReapExpiredJob(ctx context.Context) (err error) {
	ctx, run, owner := s.beginRun(ctx, JobReapExpired, s.cfg.BatchSize)
	if owner {
		defer func() { s.endRun(ctx, run, err) }()
	}
	schedMetrics := obsmetrics.Scheduler()
	started := s.clock.Now()

	result, err := s.retentionSvc.Reap(ctx)
	schedMetrics.AddAccountsProcessed(JobReapExpired, obsmetrics.AccountOutcomeDeleted, result.Deleted)
	schedMetrics.AddAccountsProcessed(JobReapExpired, obsmetrics.AccountOutcomeRetained, result.Skipped)
	run.record(result.Deleted, 0)
	for _, failure := range result.Failures {
		schedMetrics.IncAccountFailed(JobReapExpired, failure.Err)
		s.logFailure(ctx, run, "scheduler.account.reap.failed", failure.AccountID, failure.Err)
	}
	if err == nil && result.Failed() == 0 {
		s.markReaped(started)
	}
	return err
}
