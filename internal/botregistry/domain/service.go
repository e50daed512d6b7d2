package domain

import (
	"context"
	"errors"

	"gorm.io/gorm"
)

// Registry is the cascade contract used when an account is purged.
type Registry interface {
	DeleteAllOwnedBy(ctx context.Context, ownerID int64) (int64, error)
}

type Service interface {
	Registry
	Register(ctx context.Context, req RegisterBotRequest) (*Bot, error)
	ListByOwner(ctx context.Context, ownerID int64) ([]Bot, error)
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, bot *Bot) error
	ListByOwner(ctx context.Context, db *gorm.DB, ownerID int64) ([]Bot, error)
	DeleteByOwner(ctx context.Context, db *gorm.DB, ownerID int64) (int64, error)
}

var (
	ErrInvalidOwner  = errors.New("invalid_owner")
	ErrInvalidToken  = errors.New("invalid_token")
	ErrOwnerNotFound = errors.New("owner_not_found")
	ErrOwnerDeleted  = errors.New("owner_deleted")
)
