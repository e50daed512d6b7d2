package main

import (
	"github.com/smallbiznis/botquota/internal/bootstrap"
	"github.com/smallbiznis/botquota/internal/scheduler"
	"github.com/smallbiznis/botquota/internal/server"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		bootstrap.Infra,
		bootstrap.Domain,

		scheduler.Module,
		scheduler.Runner,

		server.Module,
	)
	app.Run()
}
