package service

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/cenkalti/backoff/v5"
	auditdomain "github.com/smallbiznis/botquota/internal/audit/domain"
	"github.com/smallbiznis/botquota/internal/clock"
	obsmetrics "github.com/smallbiznis/botquota/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	defaultListLimit = 50
	maxListLimit     = 500

	emitMaxTries   = 3
	emitTimeout    = 5 * time.Second
	emitBaseDelay  = 50 * time.Millisecond
	emitMaxBackoff = time.Second
)

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Repo       auditdomain.Repository
	Clock      clock.Clock
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	repo       auditdomain.Repository
	clock      clock.Clock
	obsMetrics *obsmetrics.Metrics
}

func NewService(p Params) auditdomain.Service {
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("audit.service"),
		genID:      p.GenID,
		repo:       p.Repo,
		clock:      p.Clock,
		obsMetrics: p.ObsMetrics,
	}
}

func (s *Service) Append(ctx context.Context, event auditdomain.Event) error {
	if !event.Type.Valid() {
		return auditdomain.ErrInvalidEvent
	}
	if event.AccountID == 0 {
		return auditdomain.ErrInvalidAccount
	}

	payload := datatypes.JSONMap{}
	for key, value := range event.Payload {
		if key == "" {
			continue
		}
		payload[key] = value
	}

	entry := auditdomain.AuditLog{
		ID:        s.genID.Generate(),
		AccountID: event.AccountID,
		Event:     event.Type,
		Payload:   payload,
		CreatedAt: s.clock.Now().UTC(),
	}
	return s.repo.Insert(ctx, s.db, &entry)
}

// Emit runs detached from the caller's cancellation so a shutdown after commit
// still records the events, bounded by emitTimeout.
func (s *Service) Emit(ctx context.Context, events ...auditdomain.Event) {
	if len(events) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), emitTimeout)
	defer cancel()

	for _, event := range events {
		policy := backoff.NewExponentialBackOff()
		policy.InitialInterval = emitBaseDelay
		policy.MaxInterval = emitMaxBackoff

		_, err := backoff.Retry(ctx, func() (struct{}, error) {
			if err := s.Append(ctx, event); err != nil {
				if errors.Is(err, auditdomain.ErrInvalidEvent) || errors.Is(err, auditdomain.ErrInvalidAccount) {
					return struct{}{}, backoff.Permanent(err)
				}
				return struct{}{}, err
			}
			return struct{}{}, nil
		}, backoff.WithBackOff(policy), backoff.WithMaxTries(emitMaxTries))
		if err != nil {
			s.log.Warn("audit.emit.failed",
				zap.Int64("account_id", event.AccountID),
				zap.String("event", string(event.Type)),
				zap.Error(err),
			)
			s.obsMetrics.RecordAuditFailure(ctx, string(event.Type))
		}
	}
}

func (s *Service) List(ctx context.Context, accountID int64, limit int) ([]auditdomain.AuditLog, error) {
	if accountID == 0 {
		return nil, auditdomain.ErrInvalidAccount
	}
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	return s.repo.ListByAccount(ctx, s.db, accountID, limit)
}
