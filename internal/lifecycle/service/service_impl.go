package service

import (
	"context"

	accountdomain "github.com/smallbiznis/botquota/internal/account/domain"
	auditdomain "github.com/smallbiznis/botquota/internal/audit/domain"
	"github.com/smallbiznis/botquota/internal/clock"
	"github.com/smallbiznis/botquota/internal/config"
	ledgerdomain "github.com/smallbiznis/botquota/internal/ledger/domain"
	lifecycledomain "github.com/smallbiznis/botquota/internal/lifecycle/domain"
	obsmetrics "github.com/smallbiznis/botquota/internal/observability/metrics"
	"github.com/smallbiznis/botquota/internal/observability/tracing"
	"github.com/smallbiznis/botquota/internal/subscription"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB          *gorm.DB
	Log         *zap.Logger
	Clock       clock.Clock
	Policy      *config.LifecycleConfigHolder
	AccountRepo accountdomain.Repository
	LedgerSvc   ledgerdomain.Service
	AuditSvc    auditdomain.Service
	Checker     subscription.Checker
	ObsMetrics  *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db          *gorm.DB
	log         *zap.Logger
	clock       clock.Clock
	policy      *config.LifecycleConfigHolder
	accountRepo accountdomain.Repository
	ledgerSvc   ledgerdomain.Service
	auditSvc    auditdomain.Service
	checker     subscription.Checker
	obsMetrics  *obsmetrics.Metrics
	metrics     *obsmetrics.SchedulerMetrics
}

func NewService(p Params) lifecycledomain.Service {
	return &Service{
		db:          p.DB,
		log:         p.Log.Named("lifecycle.service"),
		clock:       p.Clock,
		policy:      p.Policy,
		accountRepo: p.AccountRepo,
		ledgerSvc:   p.LedgerSvc,
		auditSvc:    p.AuditSvc,
		checker:     p.Checker,
		obsMetrics:  p.ObsMetrics,
		metrics:     obsmetrics.Scheduler(),
	}
}

func (s *Service) ResolveTx(ctx context.Context, tx *gorm.DB, account *accountdomain.Account, isSubscribed bool) (lifecycledomain.Resolution, error) {
	if account == nil || account.ID == 0 {
		return lifecycledomain.Resolution{}, lifecycledomain.ErrInvalidAccountID
	}
	if !account.Status.Valid() {
		return lifecycledomain.Resolution{}, lifecycledomain.ErrInvalidStatus
	}

	now := s.clock.Now().UTC()
	decision := lifecycledomain.Decide(*account, isSubscribed, now, s.policy.Get().PremiumThreshold)
	resolution := lifecycledomain.Resolution{
		AccountID: account.ID,
		Status:    decision.Status,
		Decision:  decision,
	}
	if !decision.Changed() {
		return resolution, nil
	}

	decision.Apply(account)
	if err := s.accountRepo.UpdateLifecycle(ctx, tx, account, now); err != nil {
		return lifecycledomain.Resolution{}, err
	}

	if decision.StatusChanged {
		resolution.Events = append(resolution.Events, auditdomain.Event{
			AccountID: account.ID,
			Type:      auditdomain.EventStatusChanged,
			Payload: map[string]any{
				"from": string(decision.From),
				"to":   string(decision.Status),
			},
		})
	}
	if decision.PremiumChanged {
		resolution.Events = append(resolution.Events, auditdomain.Event{
			AccountID: account.ID,
			Type:      auditdomain.EventPremiumChanged,
			Payload:   map[string]any{"is_premium": decision.IsPremium},
		})
	}
	return resolution, nil
}

// Resolve reports DELETED for any id with no stored account, zero included.
func (s *Service) Resolve(ctx context.Context, accountID int64, isSubscribed bool) (accountdomain.AccountStatus, error) {
	if accountID == 0 {
		return accountdomain.StatusDeleted, nil
	}
	ctx, span := tracing.Start(ctx, "lifecycle.resolve", tracing.AccountID(accountID))
	var (
		resolution lifecycledomain.Resolution
		found      bool
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		account, err := s.accountRepo.LockByID(ctx, tx, accountID)
		if err != nil {
			return err
		}
		if account == nil {
			return nil
		}
		found = true
		resolution, err = s.ResolveTx(ctx, tx, account, isSubscribed)
		return err
	})
	tracing.End(span, err)
	if err != nil {
		return "", err
	}
	if !found {
		return accountdomain.StatusDeleted, nil
	}
	s.Publish(ctx, resolution)
	return resolution.Status, nil
}

func (s *Service) CheckStatus(ctx context.Context, accountID int64) (accountdomain.AccountStatus, error) {
	if accountID == 0 {
		return accountdomain.StatusDeleted, nil
	}
	account, err := s.accountRepo.FindByID(ctx, s.db, accountID)
	if err != nil {
		return "", err
	}
	if account == nil || account.Status == accountdomain.StatusDeleted {
		return accountdomain.StatusDeleted, nil
	}
	isSubscribed := subscription.FailClosed(ctx, s.checker, s.log, accountID)
	return s.Resolve(ctx, accountID, isSubscribed)
}

// ApplyGrant resolves with the stored subscription flag so a payment never
// waits on the Bot API.
func (s *Service) ApplyGrant(ctx context.Context, req ledgerdomain.GrantRequest) (lifecycledomain.GrantResult, error) {
	ctx, span := tracing.Start(ctx, "lifecycle.apply_grant", tracing.AccountID(req.AccountID))
	var (
		result     lifecycledomain.GrantResult
		resolution lifecycledomain.Resolution
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		entry, err := s.ledgerSvc.GrantTx(ctx, tx, req)
		if err != nil {
			return err
		}
		account, err := s.accountRepo.LockByID(ctx, tx, req.AccountID)
		if err != nil {
			return err
		}
		if account == nil {
			return ledgerdomain.ErrAccountNotFound
		}
		resolution, err = s.ResolveTx(ctx, tx, account, account.IsSubscribed)
		if err != nil {
			return err
		}
		result = lifecycledomain.GrantResult{
			Entry:   *entry,
			Status:  resolution.Status,
			Account: *account,
		}
		return nil
	})
	tracing.End(span, err)
	if err != nil {
		return lifecycledomain.GrantResult{}, err
	}

	s.obsMetrics.RecordLedgerEntry(ctx, string(result.Entry.Kind), string(result.Entry.Pool), result.Entry.Source)
	s.log.Info("lifecycle.grant.applied",
		zap.Int64("account_id", req.AccountID),
		zap.String("pool", string(req.Pool)),
		zap.Int64("amount", req.Amount),
		zap.String("source", req.Source),
		zap.String("status", string(result.Status)),
	)
	s.Publish(ctx, resolution)
	return result, nil
}

func (s *Service) Publish(ctx context.Context, resolutions ...lifecycledomain.Resolution) {
	var events []auditdomain.Event
	for _, resolution := range resolutions {
		d := resolution.Decision
		if d.StatusChanged {
			s.metrics.IncStatusTransition(string(d.From), string(d.Status))
			s.log.Info("lifecycle.status.changed",
				zap.Int64("account_id", resolution.AccountID),
				zap.String("from", string(d.From)),
				zap.String("to", string(d.Status)),
			)
		}
		if d.PremiumChanged {
			s.metrics.IncPremiumChange(d.IsPremium)
		}
		events = append(events, resolution.Events...)
	}
	s.auditSvc.Emit(ctx, events...)
}
