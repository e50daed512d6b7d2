// Package bootstrap groups the fx modules shared by the botquota binaries.
package bootstrap

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/botquota/internal/account"
	"github.com/smallbiznis/botquota/internal/audit"
	"github.com/smallbiznis/botquota/internal/botregistry"
	"github.com/smallbiznis/botquota/internal/clock"
	"github.com/smallbiznis/botquota/internal/config"
	"github.com/smallbiznis/botquota/internal/ledger"
	"github.com/smallbiznis/botquota/internal/lifecycle"
	"github.com/smallbiznis/botquota/internal/migration"
	"github.com/smallbiznis/botquota/internal/observability"
	"github.com/smallbiznis/botquota/internal/ratelimit"
	"github.com/smallbiznis/botquota/internal/retention"
	"github.com/smallbiznis/botquota/internal/subscription"
	"github.com/smallbiznis/botquota/pkg/db"
	"go.uber.org/fx"
)

// Infra provides configuration, observability, storage and ids.
var Infra = fx.Options(
	config.Module,
	observability.Module,
	fx.Provide(RegisterSnowflake),
	db.Module,
	migration.Module,
	clock.Module,
	ratelimit.Module,
)

// Domain provides the quota services on top of Infra.
var Domain = fx.Options(
	subscription.Module,
	account.Module,
	ledger.Module,
	audit.Module,
	botregistry.Module,
	lifecycle.Module,
	retention.Module,
)

func RegisterSnowflake(cfg config.Config) (*snowflake.Node, error) {
	return snowflake.NewNode(cfg.NodeID)
}
