// Package testenv wires the domain services over an in-memory database for tests.
package testenv

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	accountdomain "github.com/smallbiznis/botquota/internal/account/domain"
	accountrepo "github.com/smallbiznis/botquota/internal/account/repository"
	accountsvc "github.com/smallbiznis/botquota/internal/account/service"
	auditdomain "github.com/smallbiznis/botquota/internal/audit/domain"
	auditrepo "github.com/smallbiznis/botquota/internal/audit/repository"
	auditsvc "github.com/smallbiznis/botquota/internal/audit/service"
	botdomain "github.com/smallbiznis/botquota/internal/botregistry/domain"
	botrepo "github.com/smallbiznis/botquota/internal/botregistry/repository"
	botsvc "github.com/smallbiznis/botquota/internal/botregistry/service"
	"github.com/smallbiznis/botquota/internal/clock"
	"github.com/smallbiznis/botquota/internal/config"
	"github.com/smallbiznis/botquota/internal/dbtest"
	ledgerdomain "github.com/smallbiznis/botquota/internal/ledger/domain"
	ledgerrepo "github.com/smallbiznis/botquota/internal/ledger/repository"
	ledgersvc "github.com/smallbiznis/botquota/internal/ledger/service"
	lifecycledomain "github.com/smallbiznis/botquota/internal/lifecycle/domain"
	lifecyclesvc "github.com/smallbiznis/botquota/internal/lifecycle/service"
	retentiondomain "github.com/smallbiznis/botquota/internal/retention/domain"
	retentionsvc "github.com/smallbiznis/botquota/internal/retention/service"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Epoch is the default fake clock start. It sits on a period boundary and
// carries whole seconds, which keeps SQLite time comparisons exact.
var Epoch = time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

type Env struct {
	DB     *gorm.DB
	Log    *zap.Logger
	Clock  *clock.FakeClock
	Policy *config.LifecycleConfigHolder
	GenID  *snowflake.Node

	Subscriptions *StubChecker
	Registry      *FlakyRegistry

	AccountRepo accountdomain.Repository
	Accounts    accountdomain.Service
	Ledger      ledgerdomain.Service
	Audit       auditdomain.Service
	Bots        botdomain.Service
	Lifecycle   lifecycledomain.Service
	Retention   retentiondomain.Service
}

type Option func(*config.LifecycleConfig)

func WithPolicy(fn func(*config.LifecycleConfig)) Option {
	return Option(fn)
}

func New(t testing.TB, opts ...Option) *Env {
	t.Helper()

	policy := config.DefaultLifecycleConfig()
	for _, opt := range opts {
		opt(&policy)
	}

	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatalf("snowflake: %v", err)
	}

	env := &Env{
		DB:            dbtest.Open(t),
		Log:           zap.NewNop(),
		Clock:         clock.NewFakeClock(Epoch),
		Policy:        config.NewStaticLifecycleConfigHolder(policy),
		GenID:         node,
		Subscriptions: NewStubChecker(true),
		AccountRepo:   accountrepo.Provide(),
	}

	env.Audit = auditsvc.NewService(auditsvc.Params{
		DB:    env.DB,
		Log:   env.Log,
		GenID: env.GenID,
		Repo:  auditrepo.Provide(),
		Clock: env.Clock,
	})
	env.Ledger = ledgersvc.NewService(ledgersvc.Params{
		DB:          env.DB,
		Log:         env.Log,
		GenID:       env.GenID,
		Clock:       env.Clock,
		Repo:        ledgerrepo.Provide(),
		AccountRepo: env.AccountRepo,
	})
	env.Accounts = accountsvc.NewService(accountsvc.Params{
		DB:        env.DB,
		Log:       env.Log,
		Clock:     env.Clock,
		Repo:      env.AccountRepo,
		LedgerSvc: env.Ledger,
		AuditSvc:  env.Audit,
		Policy:    env.Policy,
	})
	env.Bots = botsvc.NewService(botsvc.Params{
		DB:          env.DB,
		Log:         env.Log,
		GenID:       env.GenID,
		Clock:       env.Clock,
		Repo:        botrepo.Provide(),
		AccountRepo: env.AccountRepo,
	})
	env.Registry = &FlakyRegistry{next: env.Bots}
	env.Lifecycle = lifecyclesvc.NewService(lifecyclesvc.Params{
		DB:          env.DB,
		Log:         env.Log,
		Clock:       env.Clock,
		Policy:      env.Policy,
		AccountRepo: env.AccountRepo,
		LedgerSvc:   env.Ledger,
		AuditSvc:    env.Audit,
		Checker:     env.Subscriptions,
	})
	env.Retention = retentionsvc.NewService(retentionsvc.Params{
		DB:          env.DB,
		Log:         env.Log,
		Clock:       env.Clock,
		Policy:      env.Policy,
		AccountRepo: env.AccountRepo,
		Registry:    env.Registry,
		AuditSvc:    env.Audit,
	})
	return env
}

// CreateAccount ensures an account and forces it to status with the given
// balances, bypassing the ledger. Use SeedBalances for reconcilable state.
func (e *Env) CreateAccount(t testing.TB, id int64, status accountdomain.AccountStatus, trial, paid, bonus int64) *accountdomain.Account {
	t.Helper()
	ctx := context.Background()
	if _, err := e.Accounts.EnsureAccount(ctx, accountdomain.EnsureAccountRequest{ID: id}); err != nil {
		t.Fatalf("ensure account %d: %v", id, err)
	}
	err := e.DB.Exec(
		`UPDATE accounts SET status = ?, is_subscribed = ?, trial_balance = ?, paid_balance = ?, bonus_balance = ? WHERE id = ?`,
		status, status != accountdomain.StatusFrozen, trial, paid, bonus, id,
	).Error
	if err != nil {
		t.Fatalf("seed account %d: %v", id, err)
	}
	return e.MustAccount(t, id)
}

func (e *Env) MustAccount(t testing.TB, id int64) *accountdomain.Account {
	t.Helper()
	account, err := e.AccountRepo.FindByID(context.Background(), e.DB, id)
	if err != nil {
		t.Fatalf("find account %d: %v", id, err)
	}
	if account == nil {
		t.Fatalf("account %d not found", id)
	}
	return account
}

// SetExpired moves an account to EXPIRED with expired_at set to at.
func (e *Env) SetExpired(t testing.TB, id int64, at time.Time) {
	t.Helper()
	err := e.DB.Exec(
		`UPDATE accounts SET status = ?, expired_at = ?, trial_balance = 0, paid_balance = 0, bonus_balance = 0 WHERE id = ?`,
		accountdomain.StatusExpired, at.UTC(), id,
	).Error
	if err != nil {
		t.Fatalf("expire account %d: %v", id, err)
	}
}

func (e *Env) AuditEvents(t testing.TB, id int64) []auditdomain.EventType {
	t.Helper()
	logs, err := e.Audit.List(context.Background(), id, 100)
	if err != nil {
		t.Fatalf("list audit %d: %v", id, err)
	}
	events := make([]auditdomain.EventType, 0, len(logs))
	for i := len(logs) - 1; i >= 0; i-- {
		events = append(events, logs[i].Event)
	}
	return events
}

// StubChecker answers subscription checks from a table with a default.
type StubChecker struct {
	mu       sync.Mutex
	fallback bool
	answers  map[int64]bool
	errs     map[int64]error
	calls    int
}

func NewStubChecker(fallback bool) *StubChecker {
	return &StubChecker{fallback: fallback, answers: map[int64]bool{}, errs: map[int64]error{}}
}

func (c *StubChecker) Set(id int64, subscribed bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.answers[id] = subscribed
}

func (c *StubChecker) SetErr(id int64, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.errs[id] = err
}

func (c *StubChecker) Calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

func (c *StubChecker) IsSubscribed(_ context.Context, id int64) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	if err := c.errs[id]; err != nil {
		return false, err
	}
	if answer, ok := c.answers[id]; ok {
		return answer, nil
	}
	return c.fallback, nil
}

// FlakyRegistry forwards to the bot registry unless a failure is set for the owner.
type FlakyRegistry struct {
	mu    sync.Mutex
	next  botdomain.Registry
	fails map[int64]error
	after func(ownerID int64)
}

// AfterDelete runs fn once a cascade for any owner has completed.
func (r *FlakyRegistry) AfterDelete(fn func(ownerID int64)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.after = fn
}

func (r *FlakyRegistry) Fail(ownerID int64, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fails == nil {
		r.fails = map[int64]error{}
	}
	if err == nil {
		delete(r.fails, ownerID)
		return
	}
	r.fails[ownerID] = err
}

func (r *FlakyRegistry) DeleteAllOwnedBy(ctx context.Context, ownerID int64) (int64, error) {
	r.mu.Lock()
	err, after := r.fails[ownerID], r.after
	r.mu.Unlock()
	if err != nil {
		return 0, err
	}
	deleted, err := r.next.DeleteAllOwnedBy(ctx, ownerID)
	if err == nil && after != nil {
		after(ownerID)
	}
	return deleted, err
}
