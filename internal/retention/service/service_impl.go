package service

import (
	"context"
	"errors"
	"fmt"

	accountdomain "github.com/smallbiznis/botquota/internal/account/domain"
	auditdomain "github.com/smallbiznis/botquota/internal/audit/domain"
	botdomain "github.com/smallbiznis/botquota/internal/botregistry/domain"
	"github.com/smallbiznis/botquota/internal/clock"
	"github.com/smallbiznis/botquota/internal/config"
	obsmetrics "github.com/smallbiznis/botquota/internal/observability/metrics"
	"github.com/smallbiznis/botquota/internal/observability/tracing"
	retentiondomain "github.com/smallbiznis/botquota/internal/retention/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const defaultBatchSize = 200

type Params struct {
	fx.In

	DB          *gorm.DB
	Log         *zap.Logger
	Clock       clock.Clock
	Policy      *config.LifecycleConfigHolder
	AccountRepo accountdomain.Repository
	Registry    botdomain.Registry
	AuditSvc    auditdomain.Service
}

type Service struct {
	db          *gorm.DB
	log         *zap.Logger
	clock       clock.Clock
	policy      *config.LifecycleConfigHolder
	accountRepo accountdomain.Repository
	registry    botdomain.Registry
	auditSvc    auditdomain.Service
	batchSize   int
}

func NewService(p Params) retentiondomain.Service {
	return &Service{
		db:          p.DB,
		log:         p.Log.Named("retention.service"),
		clock:       p.Clock,
		policy:      p.Policy,
		accountRepo: p.AccountRepo,
		registry:    p.Registry,
		auditSvc:    p.AuditSvc,
		batchSize:   defaultBatchSize,
	}
}

// Delete removes the account's bots, then marks the account DELETED. Without
// Force the account must still be past its grace period when the row is locked.
func (s *Service) Delete(ctx context.Context, accountID int64, opts retentiondomain.DeleteOptions) (retentiondomain.DeleteResult, error) {
	result := retentiondomain.DeleteResult{AccountID: accountID, Forced: opts.Force}
	if accountID == 0 {
		return result, retentiondomain.ErrInvalidAccountID
	}
	ctx, span := tracing.Start(ctx, "retention.delete", tracing.AccountID(accountID))
	var err error
	defer func() { tracing.End(span, err) }()

	grace := s.policy.Get().GracePeriod

	account, err := s.accountRepo.FindByID(ctx, s.db, accountID)
	if err != nil {
		return result, err
	}
	if account == nil {
		err = retentiondomain.ErrAccountNotFound
		return result, err
	}
	if account.Status == accountdomain.StatusDeleted {
		result.AlreadyDeleted = true
		return result, nil
	}
	if !opts.Force && !retentiondomain.ShouldDelete(*account, s.clock.Now().UTC(), grace) {
		err = retentiondomain.ErrNotEligible
		return result, err
	}

	botsDeleted, cascadeErr := s.registry.DeleteAllOwnedBy(ctx, accountID)
	if cascadeErr != nil {
		if !opts.Force {
			err = fmt.Errorf("%w: %w", retentiondomain.ErrCascadeFailed, cascadeErr)
			return result, err
		}
		s.log.Warn("retention.cascade.failed.forced",
			zap.Int64("account_id", accountID),
			zap.Error(cascadeErr),
		)
	}
	result.BotsDeleted = botsDeleted

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		locked, err := s.accountRepo.LockByID(ctx, tx, accountID)
		if err != nil {
			return err
		}
		if locked == nil {
			return retentiondomain.ErrAccountNotFound
		}
		if locked.Status == accountdomain.StatusDeleted {
			result.AlreadyDeleted = true
			return nil
		}
		now := s.clock.Now().UTC()
		if !opts.Force && !retentiondomain.ShouldDelete(*locked, now, grace) {
			return retentiondomain.ErrNotEligible
		}
		if err := s.accountRepo.MarkDeleted(ctx, tx, accountID, now); err != nil {
			return err
		}
		result.Deleted = true
		return nil
	})
	if errors.Is(err, retentiondomain.ErrNotEligible) && result.BotsDeleted > 0 {
		result.Orphaned = true
		obsmetrics.Scheduler().IncCascadeOrphaned()
		s.log.Warn("retention.cascade.orphaned",
			zap.Int64("account_id", accountID),
			zap.Int64("bots_deleted", result.BotsDeleted),
		)
	}
	if err != nil {
		return result, err
	}
	if !result.Deleted {
		return result, nil
	}

	s.auditSvc.Emit(ctx, auditdomain.Event{
		AccountID: accountID,
		Type:      auditdomain.EventUserDeleted,
		Payload: map[string]any{
			"bots_deleted": result.BotsDeleted,
			"forced":       opts.Force,
		},
	})
	s.log.Info("retention.account.deleted",
		zap.Int64("account_id", accountID),
		zap.Int64("bots_deleted", result.BotsDeleted),
		zap.Bool("forced", opts.Force),
	)
	return result, nil
}

// Reap deletes every account whose grace period has run out. Each candidate
// is handled on its own; one failure does not stop the pass.
func (s *Service) Reap(ctx context.Context) (retentiondomain.ReapResult, error) {
	var result retentiondomain.ReapResult
	cutoff := s.clock.Now().UTC().Add(-s.policy.Get().GracePeriod)

	var afterID int64
	for {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		ids, err := s.accountRepo.ListExpiredBefore(ctx, s.db, cutoff, s.batchSize, afterID)
		if err != nil {
			return result, err
		}
		for _, id := range ids {
			result.Candidates++
			deleted, err := s.Delete(ctx, id, retentiondomain.DeleteOptions{})
			switch {
			case err == nil && deleted.Deleted:
				result.Deleted++
			case err == nil, errors.Is(err, retentiondomain.ErrNotEligible):
				result.Skipped++
			default:
				result.Failures = append(result.Failures, retentiondomain.ReapFailure{AccountID: id, Err: err})
				s.log.Warn("retention.account.delete.failed",
					zap.Int64("account_id", id),
					zap.Error(err),
				)
			}
		}
		if len(ids) < s.batchSize {
			return result, nil
		}
		afterID = ids[len(ids)-1]
	}
}
