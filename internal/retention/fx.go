package retention

import (
	"github.com/smallbiznis/botquota/internal/retention/service"
	"go.uber.org/fx"
)

var Module = fx.Module("retention.service",
	fx.Provide(service.NewService),
)
