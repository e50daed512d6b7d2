package botregistry

import (
	"github.com/smallbiznis/botquota/internal/botregistry/repository"
	"github.com/smallbiznis/botquota/internal/botregistry/service"
	"go.uber.org/fx"
)

var Module = fx.Module("botregistry.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
	fx.Provide(service.ProvideRegistry),
)
