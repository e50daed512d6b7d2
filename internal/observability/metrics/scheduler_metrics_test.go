package metrics

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"gorm.io/gorm"
)

func TestClassifySchedulerJobReason(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want string
	}{
		{
			name: "deadline",
			err:  context.DeadlineExceeded,
			want: SchedulerJobReasonDeadlineExceeded,
		},
		{
			name: "db_lock_timeout",
			err:  &pgconn.PgError{Code: "55P03"},
			want: SchedulerJobReasonDBLockTimeout,
		},
		{
			name: "serialization_failure",
			err:  fmt.Errorf("consume: %w", &pgconn.PgError{Code: "40001"}),
			want: SchedulerJobReasonSerializationFailure,
		},
		{
			name: "deadlock",
			err:  &pgconn.PgError{Code: "40P01"},
			want: SchedulerJobReasonDeadlock,
		},
		{
			name: "sqlite_busy",
			err:  errors.New("database is locked (5) (SQLITE_BUSY)"),
			want: SchedulerJobReasonDatabaseLocked,
		},
		{
			name: "unique_violation",
			err:  gorm.ErrDuplicatedKey,
			want: SchedulerJobReasonUniqueViolation,
		},
		{
			name: "unknown",
			err:  errors.New("boom"),
			want: SchedulerJobReasonUnknown,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := ClassifySchedulerJobReason(tc.err); got != tc.want {
				t.Fatalf("expected reason %q, got %q", tc.want, got)
			}
		})
	}
}

func TestClassifySchedulerErrorType(t *testing.T) {
	if got := ClassifySchedulerErrorType(&pgconn.PgError{Code: "23505"}); got != SchedulerErrorTypeDB {
		t.Fatalf("expected db error type, got %q", got)
	}
	if got := ClassifySchedulerErrorType(gorm.ErrRecordNotFound); got != SchedulerErrorTypeBusinessRule {
		t.Fatalf("expected business rule error type, got %q", got)
	}
	if got := ClassifySchedulerErrorType(context.Canceled); got != SchedulerErrorTypeDeadlineExceeded {
		t.Fatalf("expected deadline error type, got %q", got)
	}
	if IsSchedulerErrorRetryable(errors.New("insufficient_balance")) {
		t.Fatalf("business errors must not be retryable")
	}
}

func TestAddAccountsProcessed(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := newSchedulerMetrics(registry, Config{
		ServiceName: "botquota",
		Environment: "test",
	})

	metrics.AddAccountsProcessed("consume_days", AccountOutcomeCharged, 3)
	metrics.AddAccountsProcessed("consume_days", AccountOutcomeCharged, 0)

	got := testutil.ToFloat64(metrics.accountsProcessed.WithLabelValues("consume_days", AccountOutcomeCharged))
	if got != 3 {
		t.Fatalf("expected processed count 3, got %v", got)
	}
}

func TestIncStatusTransitionIgnoresNoop(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := newSchedulerMetrics(registry, Config{})

	metrics.IncStatusTransition("ACTIVE", "ACTIVE")
	metrics.IncStatusTransition("ACTIVE", "EXPIRED")

	if got := testutil.CollectAndCount(metrics.statusTransitions); got != 1 {
		t.Fatalf("expected one transition series, got %d", got)
	}
	if got := testutil.ToFloat64(metrics.statusTransitions.WithLabelValues("ACTIVE", "EXPIRED")); got != 1 {
		t.Fatalf("expected 1 transition, got %v", got)
	}
}

func TestNilSchedulerMetricsIsSafe(t *testing.T) {
	var metrics *SchedulerMetrics
	metrics.IncJobRun("consume_days")
	metrics.IncLockSkip(LockGuardRedis)
	metrics.ObserveRunLoopLag(-1)
	metrics.IncCascadeOrphaned()
}

func TestIncCascadeOrphaned(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := newSchedulerMetrics(registry, Config{})

	metrics.IncCascadeOrphaned()

	if got := testutil.ToFloat64(metrics.cascadeOrphans); got != 1 {
		t.Fatalf("expected 1 orphaned cascade, got %v", got)
	}
}
