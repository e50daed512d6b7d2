package subscription

import (
	"errors"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/botquota/internal/config"
	obsmetrics "github.com/smallbiznis/botquota/internal/observability/metrics"
	"github.com/smallbiznis/botquota/internal/ratelimit"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Params struct {
	fx.In

	Config     config.Config
	Log        *zap.Logger
	Redis      *redis.Client       `optional:"true"`
	Limiter    ratelimit.Limiter   `optional:"true"`
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

var errTelegramNotConfigured = errors.New("telegram_not_configured")

var Module = fx.Module("subscription",
	fx.Provide(NewChecker),
)

// NewChecker picks the Telegram checker when a bot token and channel are
// configured, otherwise the local "everyone is subscribed" mode.
func NewChecker(p Params) (Checker, error) {
	log := p.Log.Named("subscription")
	tg := p.Config.Telegram

	missing := tg.BotToken == "" || tg.ChannelID == ""
	if missing && !tg.AssumeAllOK && p.Config.IsProduction() {
		return nil, errTelegramNotConfigured
	}
	if tg.AssumeAllOK || missing {
		log.Info("subscription checks disabled; every account counts as subscribed")
		return Instrument("static", StaticChecker{Subscribed: true}, p.ObsMetrics), nil
	}

	telegram, err := NewTelegramChecker(TelegramOptions{
		BaseURL:   tg.APIBaseURL,
		BotToken:  tg.BotToken,
		ChannelID: tg.ChannelID,
		Timeout:   tg.Timeout,
		Limiter:   p.Limiter,
	})
	if err != nil {
		return nil, err
	}
	checker := Instrument("telegram", telegram, p.ObsMetrics)
	return NewCachedChecker(checker, p.Redis, tg.CacheTTL, log), nil
}
