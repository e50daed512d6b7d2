package metrics

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus"
	"gorm.io/gorm"
)

const (
	SchedulerErrorTypeDeadlineExceeded = "deadline_exceeded"
	SchedulerErrorTypeBusinessRule     = "business_rule"
	SchedulerErrorTypeDB               = "db"
	SchedulerErrorTypeUnknown          = "unknown"
)

const (
	SchedulerJobReasonDeadlineExceeded     = "deadline_exceeded"
	SchedulerJobReasonDBLockTimeout        = "db_lock_timeout"
	SchedulerJobReasonSerializationFailure = "serialization_failure"
	SchedulerJobReasonDeadlock             = "deadlock"
	SchedulerJobReasonDatabaseLocked       = "database_locked"
	SchedulerJobReasonUniqueViolation      = "unique_violation"
	SchedulerJobReasonUnknown              = "unknown"
)

const (
	AccountOutcomeCharged  = "charged"
	AccountOutcomeSkipped  = "skipped"
	AccountOutcomeDrained  = "drained"
	AccountOutcomeDeleted  = "deleted"
	AccountOutcomeRetained = "retained"
)

const (
	LockGuardLocal = "local"
	LockGuardRedis = "redis"
)

// SchedulerMetrics captures consumption and retention health signals.
type SchedulerMetrics struct {
	jobRuns           *prometheus.CounterVec
	jobDuration       *prometheus.HistogramVec
	jobTimeouts       *prometheus.CounterVec
	jobErrors         *prometheus.CounterVec
	accountsProcessed *prometheus.CounterVec
	accountsFailed    *prometheus.CounterVec
	statusTransitions *prometheus.CounterVec
	premiumChanges    *prometheus.CounterVec
	catchUpPeriods    *prometheus.CounterVec
	lockSkips         *prometheus.CounterVec
	runLoopLag        prometheus.Observer
	cascadeOrphans    prometheus.Counter
}

var (
	schedulerMetricsOnce sync.Once
	schedulerMetrics     *SchedulerMetrics
)

// Scheduler returns the singleton scheduler metrics registry.
func Scheduler() *SchedulerMetrics {
	return SchedulerWithConfig(Config{})
}

// SchedulerWithConfig returns the singleton scheduler metrics registry using config labels.
func SchedulerWithConfig(cfg Config) *SchedulerMetrics {
	schedulerMetricsOnce.Do(func() {
		schedulerMetrics = newSchedulerMetrics(prometheus.DefaultRegisterer, cfg)
	})
	return schedulerMetrics
}

// ResetSchedulerMetricsForTest resets the scheduler metrics singleton for tests.
func ResetSchedulerMetricsForTest() {
	schedulerMetricsOnce = sync.Once{}
	schedulerMetrics = nil
}

func newSchedulerMetrics(registerer prometheus.Registerer, cfg Config) *SchedulerMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	serviceName := strings.TrimSpace(cfg.ServiceName)
	if serviceName == "" {
		serviceName = "botquota"
	}
	environment := strings.TrimSpace(cfg.Environment)
	if environment == "" {
		environment = "unknown"
	}
	constLabels := prometheus.Labels{
		"service": serviceName,
		"env":     environment,
	}

	jobRuns := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "botquota_scheduler_job_runs_total",
		Help:        "Scheduler job runs by name.",
		ConstLabels: constLabels,
	}, []string{"job"})
	jobDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:        "botquota_scheduler_job_duration_seconds",
		Help:        "Scheduler job latency.",
		Buckets:     []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20, 30, 60, 120, 300, 600},
		ConstLabels: constLabels,
	}, []string{"job"})
	jobTimeouts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "botquota_scheduler_job_timeouts_total",
		Help:        "Scheduler jobs that ran past their timeout.",
		ConstLabels: constLabels,
	}, []string{"job"})
	jobErrors := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "botquota_scheduler_job_errors_total",
		Help:        "Scheduler job errors by low-cardinality reason.",
		ConstLabels: constLabels,
	}, []string{"job", "reason"})
	accountsProcessed := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "botquota_scheduler_accounts_processed_total",
		Help:        "Accounts handled by a scheduler job, by outcome.",
		ConstLabels: constLabels,
	}, []string{"job", "outcome"})
	accountsFailed := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "botquota_scheduler_accounts_failed_total",
		Help:        "Per-account units that failed and will be retried next pass.",
		ConstLabels: constLabels,
	}, []string{"job", "error_type"})
	statusTransitions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "botquota_account_status_transitions_total",
		Help:        "Account status transitions written by the lifecycle resolver.",
		ConstLabels: constLabels,
	}, []string{"from", "to"})
	premiumChanges := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "botquota_account_premium_changes_total",
		Help:        "Premium flag flips.",
		ConstLabels: constLabels,
	}, []string{"premium"})
	catchUpPeriods := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "botquota_scheduler_periods_applied_total",
		Help:        "Billing periods applied by the consumption job, including catch-up.",
		ConstLabels: constLabels,
	}, []string{"job"})
	lockSkips := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "botquota_scheduler_lock_skips_total",
		Help:        "Scheduler runs skipped because another run held the guard.",
		ConstLabels: constLabels,
	}, []string{"guard"})
	runLoopLag := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:        "botquota_scheduler_runloop_lag_seconds",
		Help:        "Scheduler run loop lag beyond the configured interval.",
		Buckets:     []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		ConstLabels: constLabels,
	})
	cascadeOrphans := prometheus.NewCounter(prometheus.CounterOpts{
		Name:        "botquota_retention_cascade_orphaned_total",
		Help:        "Deletions whose bot cascade ran but whose account became ineligible before the lock.",
		ConstLabels: constLabels,
	})

	registerer.MustRegister(
		jobRuns,
		jobDuration,
		jobTimeouts,
		jobErrors,
		accountsProcessed,
		accountsFailed,
		statusTransitions,
		premiumChanges,
		catchUpPeriods,
		lockSkips,
		runLoopLag,
		cascadeOrphans,
	)

	return &SchedulerMetrics{
		jobRuns:           jobRuns,
		jobDuration:       jobDuration,
		jobTimeouts:       jobTimeouts,
		jobErrors:         jobErrors,
		accountsProcessed: accountsProcessed,
		accountsFailed:    accountsFailed,
		statusTransitions: statusTransitions,
		premiumChanges:    premiumChanges,
		catchUpPeriods:    catchUpPeriods,
		lockSkips:         lockSkips,
		runLoopLag:        runLoopLag,
		cascadeOrphans:    cascadeOrphans,
	}
}

// IncJobRun increments the run counter for a scheduler job.
func (m *SchedulerMetrics) IncJobRun(job string) {
	if m == nil {
		return
	}
	m.jobRuns.WithLabelValues(job).Inc()
}

// ObserveJobDuration records scheduler job latency in seconds.
func (m *SchedulerMetrics) ObserveJobDuration(job string, duration time.Duration) {
	if m == nil {
		return
	}
	m.jobDuration.WithLabelValues(job).Observe(duration.Seconds())
}

func (m *SchedulerMetrics) IncJobTimeout(job string) {
	if m == nil {
		return
	}
	m.jobTimeouts.WithLabelValues(job).Inc()
}

// IncJobError increments the scheduler job error counter with classification.
func (m *SchedulerMetrics) IncJobError(job string, err error) {
	if m == nil || err == nil {
		return
	}
	m.jobErrors.WithLabelValues(job, ClassifySchedulerJobReason(err)).Inc()
}

// AddAccountsProcessed adds count accounts with the given outcome.
func (m *SchedulerMetrics) AddAccountsProcessed(job, outcome string, count int) {
	if m == nil || count <= 0 {
		return
	}
	m.accountsProcessed.WithLabelValues(job, outcome).Add(float64(count))
}

func (m *SchedulerMetrics) IncAccountFailed(job string, err error) {
	if m == nil || err == nil {
		return
	}
	m.accountsFailed.WithLabelValues(job, ClassifySchedulerErrorType(err)).Inc()
}

// IncStatusTransition counts a persisted status change.
func (m *SchedulerMetrics) IncStatusTransition(from, to string) {
	if m == nil || from == to {
		return
	}
	m.statusTransitions.WithLabelValues(from, to).Inc()
}

func (m *SchedulerMetrics) IncPremiumChange(premium bool) {
	if m == nil {
		return
	}
	label := "false"
	if premium {
		label = "true"
	}
	m.premiumChanges.WithLabelValues(label).Inc()
}

func (m *SchedulerMetrics) AddPeriodsApplied(job string, count int) {
	if m == nil || count <= 0 {
		return
	}
	m.catchUpPeriods.WithLabelValues(job).Add(float64(count))
}

// IncLockSkip counts a run skipped by the local mutex or the Redis lock.
func (m *SchedulerMetrics) IncLockSkip(guard string) {
	if m == nil {
		return
	}
	m.lockSkips.WithLabelValues(guard).Inc()
}

func (m *SchedulerMetrics) IncCascadeOrphaned() {
	if m == nil {
		return
	}
	m.cascadeOrphans.Inc()
}

// ObserveRunLoopLag records lag between the scheduled tick and actual run start.
func (m *SchedulerMetrics) ObserveRunLoopLag(duration time.Duration) {
	if m == nil {
		return
	}
	lag := duration
	if lag < 0 {
		lag = 0
	}
	m.runLoopLag.Observe(lag.Seconds())
}

// ClassifySchedulerErrorType returns a low-cardinality error type for logging.
func ClassifySchedulerErrorType(err error) string {
	if err == nil {
		return SchedulerErrorTypeUnknown
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return SchedulerErrorTypeDeadlineExceeded
	}
	if isDBError(err) {
		return SchedulerErrorTypeDB
	}
	return SchedulerErrorTypeBusinessRule
}

// IsSchedulerErrorRetryable reports whether the scheduler error should be retried.
func IsSchedulerErrorRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return true
	}
	return isDBError(err)
}

// ClassifySchedulerJobReason maps scheduler job errors to low-cardinality reasons.
func ClassifySchedulerJobReason(err error) string {
	switch {
	case err == nil:
		return SchedulerJobReasonUnknown
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return SchedulerJobReasonDeadlineExceeded
	case hasPGCode(err, "55P03"):
		return SchedulerJobReasonDBLockTimeout
	case hasPGCode(err, "40001"):
		return SchedulerJobReasonSerializationFailure
	case hasPGCode(err, "40P01"):
		return SchedulerJobReasonDeadlock
	case isSQLiteBusy(err):
		return SchedulerJobReasonDatabaseLocked
	case errors.Is(err, gorm.ErrDuplicatedKey), hasPGCode(err, "23505"):
		return SchedulerJobReasonUniqueViolation
	default:
		return SchedulerJobReasonUnknown
	}
}

func hasPGCode(err error, code string) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == code
	}
	return false
}

func isSQLiteBusy(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "database is locked") || strings.Contains(msg, "sqlite_busy")
}

func isDBError(err error) bool {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false
	}
	if errors.Is(err, gorm.ErrInvalidDB) ||
		errors.Is(err, gorm.ErrInvalidTransaction) ||
		errors.Is(err, gorm.ErrInvalidField) ||
		errors.Is(err, gorm.ErrInvalidData) ||
		errors.Is(err, gorm.ErrMissingWhereClause) ||
		errors.Is(err, gorm.ErrUnsupportedDriver) ||
		errors.Is(err, gorm.ErrInvalidValue) ||
		errors.Is(err, gorm.ErrNotImplemented) ||
		errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	if isSQLiteBusy(err) {
		return true
	}
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr)
}
