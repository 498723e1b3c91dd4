package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"hiring-data-sync/internal/application"
	"hiring-data-sync/internal/confirmation"
	"hiring-data-sync/internal/display"
	"hiring-data-sync/internal/restore"
	"hiring-data-sync/internal/snapshot"
)

func createRestoreCommand() *cobra.Command {
	var (
		table      string
		ref        string
		policy     string
		keys       []string
		yes        bool
		revalidate bool
		checkLive  bool
	)

	cmd := &cobra.Command{
		Use:   "restore",
		Short: "Restore a table from a snapshot",
		Long: `Restore loads a snapshot back into its table in one transaction.

Policies:
  replace  delete every row of the table, then load the snapshot
  merge    upsert snapshot records by primary key and keep every other row

A replace restore asks for confirmation unless --yes is given. If anything
fails the table is left as it was.`,
		Example: `  hiring-data-sync restore --table jobs --snapshot latest --policy replace
  hiring-data-sync restore --table jobs --snapshot jobs/jobs-20240506T070809.000000000Z.snap --policy merge --keys id
  hiring-data-sync restore --table hired_employees --policy replace --yes --revalidate`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := restore.ParsePolicy(policy)
			if err != nil {
				return err
			}

			return withApplication(cmd, func(ctx context.Context, app *application.Application, printer *display.Printer) error {
				if p == restore.PolicyMerge && len(keys) == 0 {
					if ts, err := app.Schemas().Lookup(table); err == nil {
						keys = ts.KeyColumns()
					}
				}

				key, header, err := app.SnapshotHeader(ctx, table, ref)
				if err != nil {
					return err
				}

				confirmer := confirmation.NewConfirmationService(printer, cmd.InOrStdin())
				ok, err := confirmer.ConfirmRestore(ctx, confirmation.Summary{
					Table:      table,
					Ref:        key,
					Policy:     p,
					KeyColumns: keys,
					Header:     header,
				}, yes)
				if err != nil || !ok {
					return err
				}

				res, err := app.Restore(ctx, restore.Plan{
					Table:       table,
					SnapshotRef: key,
					Policy:      p,
					KeyColumns:  keys,
					Revalidate:  revalidate,
					CheckLive:   checkLive,
				})
				if res != nil {
					if perr := printer.RestoreResult(res); perr != nil && err == nil {
						err = perr
					}
				}
				return err
			})
		},
	}

	cmd.Flags().StringVarP(&table, "table", "t", "", "table to restore")
	cmd.Flags().StringVarP(&ref, "snapshot", "s", snapshot.LatestRef, "snapshot reference or latest")
	cmd.Flags().StringVarP(&policy, "policy", "p", string(restore.PolicyReplace), "restore policy (replace, merge)")
	cmd.Flags().StringSliceVar(&keys, "keys", nil, "merge key columns (default is the primary key)")
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "skip the replace confirmation")
	cmd.Flags().BoolVar(&revalidate, "revalidate", false, "validate every snapshot record before writing it")
	cmd.Flags().BoolVar(&checkLive, "check-live", false, "compare the live table definition with the expected schema first")
	cmd.MarkFlagRequired("table")
	return cmd
}
