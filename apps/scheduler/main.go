package main

import (
	"github.com/smallbiznis/botquota/internal/bootstrap"
	"github.com/smallbiznis/botquota/internal/scheduler"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		bootstrap.Infra,
		bootstrap.Domain,

		// No server module!
		scheduler.Module,
		scheduler.Runner,
	)
	app.Run()
}
