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

		// Provided for manual job triggers only; the loop runs in apps/scheduler.
		scheduler.Module,

		server.Module,
	)
	app.Run()
}
