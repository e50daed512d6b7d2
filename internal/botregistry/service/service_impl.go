package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	accountdomain "github.com/smallbiznis/botquota/internal/account/domain"
	botdomain "github.com/smallbiznis/botquota/internal/botregistry/domain"
	"github.com/smallbiznis/botquota/internal/clock"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB          *gorm.DB
	Log         *zap.Logger
	GenID       *snowflake.Node
	Clock       clock.Clock
	Repo        botdomain.Repository
	AccountRepo accountdomain.Repository
}

type Service struct {
	db          *gorm.DB
	log         *zap.Logger
	genID       *snowflake.Node
	clock       clock.Clock
	repo        botdomain.Repository
	accountRepo accountdomain.Repository
}

func NewService(p Params) botdomain.Service {
	return &Service{
		db:          p.DB,
		log:         p.Log.Named("botregistry.service"),
		genID:       p.GenID,
		clock:       p.Clock,
		repo:        p.Repo,
		accountRepo: p.AccountRepo,
	}
}

// ProvideRegistry exposes the cascade contract to the retention reaper.
func ProvideRegistry(svc botdomain.Service) botdomain.Registry {
	return svc
}

func (s *Service) Register(ctx context.Context, req botdomain.RegisterBotRequest) (*botdomain.Bot, error) {
	if req.OwnerID == 0 {
		return nil, botdomain.ErrInvalidOwner
	}
	token := strings.TrimSpace(req.TokenEncrypted)
	if token == "" {
		return nil, botdomain.ErrInvalidToken
	}

	bot := &botdomain.Bot{
		ID:             s.genID.Generate(),
		OwnerID:        req.OwnerID,
		TokenEncrypted: token,
		Config:         datatypes.JSONMap(req.Config),
		CreatedAt:      s.clock.Now().UTC(),
	}
	if bot.Config == nil {
		bot.Config = datatypes.JSONMap{}
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		owner, err := s.accountRepo.LockByID(ctx, tx, req.OwnerID)
		if err != nil {
			return err
		}
		if owner == nil {
			return botdomain.ErrOwnerNotFound
		}
		if owner.Status == accountdomain.StatusDeleted {
			return botdomain.ErrOwnerDeleted
		}
		return s.repo.Insert(ctx, tx, bot)
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("bot.registered",
		zap.Int64("owner_id", bot.OwnerID),
		zap.String("bot_id", bot.ID.String()),
	)
	return bot, nil
}

func (s *Service) ListByOwner(ctx context.Context, ownerID int64) ([]botdomain.Bot, error) {
	if ownerID == 0 {
		return nil, botdomain.ErrInvalidOwner
	}
	return s.repo.ListByOwner(ctx, s.db, ownerID)
}

func (s *Service) DeleteAllOwnedBy(ctx context.Context, ownerID int64) (int64, error) {
	if ownerID == 0 {
		return 0, botdomain.ErrInvalidOwner
	}
	deleted, err := s.repo.DeleteByOwner(ctx, s.db, ownerID)
	if err != nil {
		return 0, err
	}
	if deleted > 0 {
		s.log.Info("bots.deleted", zap.Int64("owner_id", ownerID), zap.Int64("count", deleted))
	}
	return deleted, nil
}
