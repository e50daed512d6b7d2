// Package cli implements botquotactl, the operator command line.
package cli

import (
	"context"
	"encoding/json"
	"time"

	accountdomain "github.com/smallbiznis/botquota/internal/account/domain"
	"github.com/smallbiznis/botquota/internal/bootstrap"
	ledgerdomain "github.com/smallbiznis/botquota/internal/ledger/domain"
	lifecycledomain "github.com/smallbiznis/botquota/internal/lifecycle/domain"
	retentiondomain "github.com/smallbiznis/botquota/internal/retention/domain"
	"github.com/smallbiznis/botquota/internal/scheduler"
	"github.com/spf13/cobra"
	"go.uber.org/fx"
)

const startTimeout = 30 * time.Second

func Execute() error {
	return NewRootCmd(DefaultOpener).Execute()
}

// App is the set of services a command may use.
type App struct {
	Accounts  accountdomain.Service
	Ledger    ledgerdomain.Service
	Lifecycle lifecycledomain.Service
	Retention retentiondomain.Service
	Scheduler *scheduler.Scheduler
}

// Opener builds an App and returns a func that releases it.
type Opener func(ctx context.Context) (*App, func(), error)

// DefaultOpener boots the same modules as the worker, without the run loop.
func DefaultOpener(ctx context.Context) (*App, func(), error) {
	var app App
	fxApp := fx.New(
		bootstrap.Infra,
		bootstrap.Domain,
		scheduler.Module,
		fx.NopLogger,
		fx.Populate(&app.Accounts, &app.Ledger, &app.Lifecycle, &app.Retention, &app.Scheduler),
	)

	startCtx, cancel := context.WithTimeout(ctx, startTimeout)
	defer cancel()
	if err := fxApp.Start(startCtx); err != nil {
		return nil, nil, err
	}
	stop := func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), startTimeout)
		defer cancel()
		_ = fxApp.Stop(stopCtx)
	}
	return &app, stop, nil
}

func NewRootCmd(open Opener) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "botquotactl",
		Short:         "Operate the botquota day-quota engine",
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	rootCmd.AddCommand(
		newTickCmd(open),
		newReapCmd(open),
		newStatusCmd(open),
		newReconcileCmd(open),
		newGrantCmd(open),
	)
	return rootCmd
}

// withApp opens the app for the duration of fn.
func withApp(cmd *cobra.Command, open Opener, fn func(app *App) error) error {
	app, closeApp, err := open(cmd.Context())
	if err != nil {
		return err
	}
	defer closeApp()
	return fn(app)
}

func writeJSON(cmd *cobra.Command, value any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(value)
}
