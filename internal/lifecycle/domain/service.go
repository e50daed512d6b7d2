package domain

import (
	"context"
	"errors"

	accountdomain "github.com/smallbiznis/botquota/internal/account/domain"
	auditdomain "github.com/smallbiznis/botquota/internal/audit/domain"
	ledgerdomain "github.com/smallbiznis/botquota/internal/ledger/domain"
	"gorm.io/gorm"
)

// Resolution is the result of resolving an account inside a transaction.
// Events must be published once the transaction commits.
type Resolution struct {
	AccountID int64
	Status    accountdomain.AccountStatus
	Decision  Decision
	Events    []auditdomain.Event
}

type GrantResult struct {
	Entry   ledgerdomain.LedgerEntry    `json:"entry"`
	Status  accountdomain.AccountStatus `json:"status"`
	Account accountdomain.Account       `json:"account"`
}

type Service interface {
	// ResolveTx decides and persists the status of an account the caller has
	// already locked within tx. account is updated in place.
	ResolveTx(ctx context.Context, tx *gorm.DB, account *accountdomain.Account, isSubscribed bool) (Resolution, error)
	// Resolve locks, resolves and commits. An unknown id resolves to DELETED.
	Resolve(ctx context.Context, accountID int64, isSubscribed bool) (accountdomain.AccountStatus, error)
	// CheckStatus asks the subscription checker, failing closed, then resolves.
	CheckStatus(ctx context.Context, accountID int64) (accountdomain.AccountStatus, error)
	// ApplyGrant credits a pool and re-resolves with the stored subscription flag.
	ApplyGrant(ctx context.Context, req ledgerdomain.GrantRequest) (GrantResult, error)
	// Publish records metrics and emits the audit events of committed resolutions.
	Publish(ctx context.Context, resolutions ...Resolution)
}

var (
	ErrInvalidAccountID = accountdomain.ErrInvalidAccountID
	ErrInvalidStatus    = errors.New("invalid_account_status")
)
