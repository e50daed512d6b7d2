package service

import (
	"context"

	accountdomain "github.com/smallbiznis/botquota/internal/account/domain"
	auditdomain "github.com/smallbiznis/botquota/internal/audit/domain"
	"github.com/smallbiznis/botquota/internal/clock"
	"github.com/smallbiznis/botquota/internal/config"
	ledgerdomain "github.com/smallbiznis/botquota/internal/ledger/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	defaultListLimit = 500
)

type Params struct {
	fx.In

	DB        *gorm.DB
	Log       *zap.Logger
	Clock     clock.Clock
	Repo      accountdomain.Repository
	LedgerSvc ledgerdomain.Service
	AuditSvc  auditdomain.Service
	Policy    *config.LifecycleConfigHolder
}

type Service struct {
	db        *gorm.DB
	log       *zap.Logger
	clock     clock.Clock
	repo      accountdomain.Repository
	ledgerSvc ledgerdomain.Service
	auditSvc  auditdomain.Service
	policy    *config.LifecycleConfigHolder
}

func NewService(p Params) accountdomain.Service {
	return &Service{
		db:        p.DB,
		log:       p.Log.Named("account.service"),
		clock:     p.Clock,
		repo:      p.Repo,
		ledgerSvc: p.LedgerSvc,
		auditSvc:  p.AuditSvc,
		policy:    p.Policy,
	}
}

// EnsureAccount creates the account on first contact and is a no-op afterwards.
// The trial seed goes through the ledger so balances reconcile from creation.
func (s *Service) EnsureAccount(ctx context.Context, req accountdomain.EnsureAccountRequest) (accountdomain.EnsureAccountResult, error) {
	if req.ID == 0 {
		return accountdomain.EnsureAccountResult{}, accountdomain.ErrInvalidAccountID
	}
	referrerID := req.ReferrerID
	if referrerID != nil && (*referrerID == req.ID || *referrerID == 0) {
		referrerID = nil
	}

	policy := s.policy.Get()
	now := s.clock.Now().UTC()
	status := accountdomain.StatusFrozen
	if policy.InitialStatusActive {
		status = accountdomain.StatusActive
	}

	var (
		result accountdomain.EnsureAccountResult
		events []auditdomain.Event
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		account := &accountdomain.Account{
			ID:           req.ID,
			ReferrerID:   referrerID,
			Status:       status,
			IsSubscribed: policy.InitialStatusActive,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		created, err := s.repo.Insert(ctx, tx, account)
		if err != nil {
			return err
		}

		if created && policy.TrialDays > 0 {
			if _, err := s.ledgerSvc.GrantTx(ctx, tx, ledgerdomain.GrantRequest{
				AccountID: req.ID,
				Pool:      accountdomain.PoolTrial,
				Amount:    policy.TrialDays,
				Source:    ledgerdomain.SourceTrialSeed,
			}); err != nil {
				return err
			}
		}

		stored, err := s.repo.FindByID(ctx, tx, req.ID)
		if err != nil {
			return err
		}
		if stored == nil {
			return accountdomain.ErrAccountNotFound
		}
		result = accountdomain.EnsureAccountResult{Account: *stored, Created: created}

		if created {
			payload := map[string]any{
				"status":     string(stored.Status),
				"trial_days": policy.TrialDays,
			}
			if referrerID != nil {
				payload["referrer_id"] = *referrerID
			}
			events = append(events, auditdomain.Event{
				AccountID: req.ID,
				Type:      auditdomain.EventAccountCreated,
				Payload:   payload,
			})
		}
		return nil
	})
	if err != nil {
		return accountdomain.EnsureAccountResult{}, err
	}

	s.auditSvc.Emit(ctx, events...)
	if result.Created {
		s.log.Info("account.created",
			zap.Int64("account_id", req.ID),
			zap.String("status", string(result.Account.Status)),
		)
	}
	return result, nil
}

func (s *Service) Get(ctx context.Context, id int64) (*accountdomain.Account, error) {
	if id == 0 {
		return nil, accountdomain.ErrInvalidAccountID
	}
	account, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if account == nil {
		return nil, accountdomain.ErrAccountNotFound
	}
	return account, nil
}

// ListIDsByStatus pages account ids in id order. A nil tx reads outside any transaction.
func (s *Service) ListIDsByStatus(ctx context.Context, tx *gorm.DB, status accountdomain.AccountStatus, limit int, afterID int64) ([]int64, error) {
	if !status.Valid() {
		return nil, accountdomain.ErrInvalidStatus
	}
	if limit <= 0 {
		limit = defaultListLimit
	}
	if tx == nil {
		tx = s.db
	}
	return s.repo.ListIDsByStatus(ctx, tx, status, limit, afterID)
}

func (s *Service) ListReferrals(ctx context.Context, referrerID int64) ([]accountdomain.Account, error) {
	if referrerID == 0 {
		return nil, accountdomain.ErrInvalidAccountID
	}
	return s.repo.ListReferrals(ctx, s.db, referrerID)
}
