package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	accountdomain "github.com/smallbiznis/botquota/internal/account/domain"
	"github.com/smallbiznis/botquota/internal/clock"
	ledgerdomain "github.com/smallbiznis/botquota/internal/ledger/domain"
	obsmetrics "github.com/smallbiznis/botquota/internal/observability/metrics"
	"github.com/smallbiznis/botquota/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	defaultListLimit = 100
	maxListLimit     = 1000
)

type Params struct {
	fx.In

	DB          *gorm.DB
	Log         *zap.Logger
	GenID       *snowflake.Node
	Clock       clock.Clock
	Repo        ledgerdomain.Repository
	AccountRepo accountdomain.Repository
	ObsMetrics  *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db          *gorm.DB
	log         *zap.Logger
	genID       *snowflake.Node
	clock       clock.Clock
	repo        ledgerdomain.Repository
	accountRepo accountdomain.Repository
	obsMetrics  *obsmetrics.Metrics
}

func NewService(p Params) ledgerdomain.Service {
	return &Service{
		db:          p.DB,
		log:         p.Log.Named("ledger.service"),
		genID:       p.GenID,
		clock:       p.Clock,
		repo:        p.Repo,
		accountRepo: p.AccountRepo,
		obsMetrics:  p.ObsMetrics,
	}
}

func (s *Service) Grant(ctx context.Context, req ledgerdomain.GrantRequest) (*ledgerdomain.LedgerEntry, error) {
	var entry *ledgerdomain.LedgerEntry
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		entry, err = s.GrantTx(ctx, tx, req)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.recordEntry(ctx, entry)
	return entry, nil
}

func (s *Service) GrantTx(ctx context.Context, tx *gorm.DB, req ledgerdomain.GrantRequest) (*ledgerdomain.LedgerEntry, error) {
	if req.Amount <= 0 {
		return nil, ledgerdomain.ErrInvalidAmount
	}
	if !req.Pool.Valid() {
		return nil, ledgerdomain.ErrInvalidPool
	}
	source := strings.TrimSpace(req.Source)
	if source == "" {
		return nil, ledgerdomain.ErrInvalidSource
	}

	if _, err := s.lockLiveAccount(ctx, tx, req.AccountID); err != nil {
		return nil, err
	}

	now := s.clock.Now().UTC()
	affected, err := s.accountRepo.AdjustBalance(ctx, tx, req.AccountID, req.Pool, req.Amount, now)
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, ledgerdomain.ErrAccountNotFound
	}

	entry := &ledgerdomain.LedgerEntry{
		ID:        s.genID.Generate(),
		AccountID: req.AccountID,
		Kind:      ledgerdomain.EntryKindGrant,
		Pool:      req.Pool,
		Delta:     req.Amount,
		Source:    source,
		CreatedAt: now,
	}
	if err := s.repo.Insert(ctx, tx, entry); err != nil {
		return nil, err
	}
	return entry, nil
}

func (s *Service) Consume(ctx context.Context, accountID int64, pool accountdomain.Pool) (*ledgerdomain.LedgerEntry, error) {
	var entry *ledgerdomain.LedgerEntry
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		entry, err = s.ConsumeTx(ctx, tx, ledgerdomain.ConsumeRequest{
			AccountID: accountID,
			Pool:      pool,
			Source:    ledgerdomain.SourceAdmin,
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	s.recordEntry(ctx, entry)
	return entry, nil
}

func (s *Service) ConsumeTx(ctx context.Context, tx *gorm.DB, req ledgerdomain.ConsumeRequest) (*ledgerdomain.LedgerEntry, error) {
	if !req.Pool.Valid() {
		return nil, ledgerdomain.ErrInvalidPool
	}
	account, err := s.lockLiveAccount(ctx, tx, req.AccountID)
	if err != nil {
		return nil, err
	}
	if account.Balance(req.Pool) <= 0 {
		return nil, ledgerdomain.ErrInsufficientBalance
	}
	return s.consumeLocked(ctx, tx, account, req.Pool, req.PeriodKey, req.Source)
}

func (s *Service) ConsumeNextTx(ctx context.Context, tx *gorm.DB, account *accountdomain.Account, periodKey time.Time) (*ledgerdomain.LedgerEntry, error) {
	if account == nil {
		return nil, ledgerdomain.ErrAccountNotFound
	}
	if account.Status == accountdomain.StatusDeleted {
		return nil, ledgerdomain.ErrAccountDeleted
	}
	pool, ok := account.NextPool()
	if !ok {
		return nil, nil
	}
	period := periodKey.UTC()
	return s.consumeLocked(ctx, tx, account, pool, &period, ledgerdomain.SourceScheduler)
}

// consumeLocked decrements pool by one. The balance guard in the UPDATE makes a
// stale in-memory balance fail with ErrInsufficientBalance instead of going negative.
func (s *Service) consumeLocked(ctx context.Context, tx *gorm.DB, account *accountdomain.Account, pool accountdomain.Pool, periodKey *time.Time, source string) (*ledgerdomain.LedgerEntry, error) {
	source = strings.TrimSpace(source)
	if source == "" {
		source = ledgerdomain.SourceAdmin
	}

	now := s.clock.Now().UTC()
	affected, err := s.accountRepo.AdjustBalance(ctx, tx, account.ID, pool, -1, now)
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, ledgerdomain.ErrInsufficientBalance
	}

	entry := &ledgerdomain.LedgerEntry{
		ID:        s.genID.Generate(),
		AccountID: account.ID,
		Kind:      ledgerdomain.EntryKindConsumption,
		Pool:      pool,
		Delta:     -1,
		PeriodKey: periodKey,
		Source:    source,
		CreatedAt: now,
	}
	if err := s.repo.Insert(ctx, tx, entry); err != nil {
		if periodKey != nil && db.IsDuplicateKeyErr(err) {
			return nil, ledgerdomain.ErrPeriodAlreadyCharged
		}
		return nil, err
	}
	account.AddBalance(pool, -1)
	return entry, nil
}

func (s *Service) Reconcile(ctx context.Context, accountID int64) (ledgerdomain.ReconcileResult, error) {
	result := ledgerdomain.ReconcileResult{
		AccountID:    accountID,
		Materialized: map[accountdomain.Pool]int64{},
		Ledger:       map[accountdomain.Pool]int64{},
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		account, err := s.accountRepo.FindByID(ctx, tx, accountID)
		if err != nil {
			return err
		}
		if account == nil {
			return ledgerdomain.ErrAccountNotFound
		}
		sums, err := s.repo.SumByPool(ctx, tx, accountID)
		if err != nil {
			return err
		}
		for _, sum := range sums {
			result.Ledger[sum.Pool] = sum.Total
		}
		for _, pool := range accountdomain.ConsumptionOrder {
			result.Materialized[pool] = account.Balance(pool)
			if _, ok := result.Ledger[pool]; !ok {
				result.Ledger[pool] = 0
			}
			if result.Materialized[pool] != result.Ledger[pool] {
				result.Mismatched = append(result.Mismatched, pool)
			}
		}
		return nil
	})
	if err != nil {
		return ledgerdomain.ReconcileResult{}, err
	}

	if !result.OK() {
		s.log.Warn("ledger.reconcile.mismatch",
			zap.Int64("account_id", accountID),
			zap.Any("materialized", result.Materialized),
			zap.Any("ledger", result.Ledger),
		)
	}
	return result, nil
}

func (s *Service) ListEntries(ctx context.Context, accountID int64, limit int) ([]ledgerdomain.LedgerEntry, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	return s.repo.ListByAccount(ctx, s.db, accountID, limit)
}

func (s *Service) lockLiveAccount(ctx context.Context, tx *gorm.DB, accountID int64) (*accountdomain.Account, error) {
	if accountID == 0 {
		return nil, accountdomain.ErrInvalidAccountID
	}
	account, err := s.accountRepo.LockByID(ctx, tx, accountID)
	if err != nil {
		return nil, err
	}
	if account == nil {
		return nil, ledgerdomain.ErrAccountNotFound
	}
	if account.Status == accountdomain.StatusDeleted {
		return nil, ledgerdomain.ErrAccountDeleted
	}
	return account, nil
}

func (s *Service) recordEntry(ctx context.Context, entry *ledgerdomain.LedgerEntry) {
	if entry == nil {
		return
	}
	s.obsMetrics.RecordLedgerEntry(ctx, string(entry.Kind), string(entry.Pool), entry.Source)
}
