package domain

import (
	"context"
	"errors"

	"gorm.io/gorm"
)

type Service interface {
	// Append writes a single event.
	Append(ctx context.Context, event Event) error
	// Emit appends events with bounded retry. Failures are logged and dropped.
	Emit(ctx context.Context, events ...Event)
	List(ctx context.Context, accountID int64, limit int) ([]AuditLog, error)
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, entry *AuditLog) error
	ListByAccount(ctx context.Context, db *gorm.DB, accountID int64, limit int) ([]AuditLog, error)
}

var (
	ErrInvalidEvent   = errors.New("invalid_event")
	ErrInvalidAccount = errors.New("invalid_account")
)
