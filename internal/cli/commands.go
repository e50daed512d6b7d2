package cli

import (
	"errors"
	"fmt"
	"strconv"

	accountdomain "github.com/smallbiznis/botquota/internal/account/domain"
	ledgerdomain "github.com/smallbiznis/botquota/internal/ledger/domain"
	retentiondomain "github.com/smallbiznis/botquota/internal/retention/domain"
	"github.com/smallbiznis/botquota/internal/scheduler"
	"github.com/spf13/cobra"
)

var errReconcileMismatch = errors.New("ledger and balances disagree")

func newTickCmd(open Opener) *cobra.Command {
	return &cobra.Command{
		Use:   "tick",
		Short: "Run one consumption pass now",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, open, func(app *App) error {
				if err := app.Scheduler.Trigger(cmd.Context(), scheduler.JobConsumeDays); err != nil {
					return err
				}
				_, err := fmt.Fprintln(cmd.OutOrStdout(), "consume_days completed")
				return err
			})
		},
	}
}

func newReapCmd(open Opener) *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "reap [account-id...]",
		Short: "Delete accounts past the expiry grace period",
		Long:  "Without ids, reaps every eligible account. With ids, deletes only those accounts; --force skips the eligibility check.",
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := parseIDs(args)
			if err != nil {
				return err
			}
			if force && len(ids) == 0 {
				return errors.New("--force requires explicit account ids")
			}
			return withApp(cmd, open, func(app *App) error {
				if len(ids) == 0 {
					result, err := app.Retention.Reap(cmd.Context())
					if err != nil {
						return err
					}
					return writeJSON(cmd, result)
				}

				results := make([]retentiondomain.DeleteResult, 0, len(ids))
				var errs []error
				for _, id := range ids {
					result, err := app.Retention.Delete(cmd.Context(), id, retentiondomain.DeleteOptions{Force: force})
					if err != nil {
						errs = append(errs, fmt.Errorf("account %d: %w", id, err))
						continue
					}
					results = append(results, result)
				}
				if err := writeJSON(cmd, results); err != nil {
					return err
				}
				return errors.Join(errs...)
			})
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "delete regardless of eligibility and bot cascade failures")
	return cmd
}

func newStatusCmd(open Opener) *cobra.Command {
	return &cobra.Command{
		Use:   "status <account-id>",
		Short: "Check the subscription and resolve the account status",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withApp(cmd, open, func(app *App) error {
				status, err := app.Lifecycle.CheckStatus(cmd.Context(), id)
				if err != nil {
					return err
				}
				return writeJSON(cmd, map[string]any{"account_id": id, "status": status})
			})
		},
	}
}

func newReconcileCmd(open Opener) *cobra.Command {
	return &cobra.Command{
		Use:   "reconcile <account-id>",
		Short: "Compare materialized balances with the ledger",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withApp(cmd, open, func(app *App) error {
				result, err := app.Ledger.Reconcile(cmd.Context(), id)
				if err != nil {
					return err
				}
				if err := writeJSON(cmd, result); err != nil {
					return err
				}
				if !result.OK() {
					return errReconcileMismatch
				}
				return nil
			})
		},
	}
}

func newGrantCmd(open Opener) *cobra.Command {
	var (
		pool   string
		amount int64
		source string
	)
	cmd := &cobra.Command{
		Use:   "grant <account-id>",
		Short: "Credit days to a pool and re-resolve the account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withApp(cmd, open, func(app *App) error {
				result, err := app.Lifecycle.ApplyGrant(cmd.Context(), ledgerdomain.GrantRequest{
					AccountID: id,
					Pool:      accountdomain.Pool(pool),
					Amount:    amount,
					Source:    source,
				})
				if err != nil {
					return err
				}
				return writeJSON(cmd, result)
			})
		},
	}
	cmd.Flags().StringVar(&pool, "pool", string(accountdomain.PoolPaid), "pool to credit: trial, paid or bonus")
	cmd.Flags().Int64Var(&amount, "amount", 0, "days to credit")
	cmd.Flags().StringVar(&source, "source", ledgerdomain.SourceAdmin, "grant source recorded in the ledger")
	return cmd
}

func parseIDs(args []string) ([]int64, error) {
	ids := make([]int64, 0, len(args))
	for _, arg := range args {
		id, err := parseID(arg)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func parseID(value string) (int64, error) {
	id, err := strconv.ParseInt(value, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: %q", accountdomain.ErrInvalidAccountID, value)
	}
	return id, nil
}
