package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"hiring-data-sync/internal/application"
	"hiring-data-sync/internal/display"
	"hiring-data-sync/internal/snapshot"
)

func createSnapshotCommand() *cobra.Command {
	snapshotCmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Create and list table snapshots",
		Long: `Snapshots are self-describing binary copies of one table. They carry the
table schema, so a restore can reject a snapshot that no longer matches.`,
	}

	snapshotCmd.AddCommand(createSnapshotCreateCommand())
	snapshotCmd.AddCommand(createSnapshotListCommand())
	snapshotCmd.AddCommand(createSnapshotInspectCommand())
	return snapshotCmd
}

func createSnapshotCreateCommand() *cobra.Command {
	var (
		table string
		all   bool
	)

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Write a snapshot of a table",
		Example: `  hiring-data-sync snapshot create --table jobs
  hiring-data-sync snapshot create --all`,
		Args: cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			if !all && table == "" {
				return fmt.Errorf("either --table or --all is required")
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApplication(cmd, func(ctx context.Context, app *application.Application, printer *display.Printer) error {
				if !all {
					snap, err := app.Snapshot(ctx, table)
					if err != nil {
						return err
					}
					return printer.SnapshotCreated(snap)
				}

				snaps, err := app.SnapshotAll(ctx)
				for _, snap := range snaps {
					if perr := printer.SnapshotCreated(snap); perr != nil && err == nil {
						err = perr
					}
				}
				return err
			})
		},
	}

	cmd.Flags().StringVarP(&table, "table", "t", "", "table to snapshot")
	cmd.Flags().BoolVar(&all, "all", false, "snapshot every table")
	cmd.MarkFlagsMutuallyExclusive("table", "all")
	return cmd
}

func createSnapshotListCommand() *cobra.Command {
	var table string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List snapshots, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApplication(cmd, func(ctx context.Context, app *application.Application, printer *display.Printer) error {
				entries, err := app.ListSnapshots(ctx, table)
				if err != nil {
					return err
				}
				return printer.Snapshots(entries)
			})
		},
	}

	cmd.Flags().StringVarP(&table, "table", "t", "", "only list snapshots of this table")
	return cmd
}

func createSnapshotInspectCommand() *cobra.Command {
	var (
		table string
		ref   string
	)

	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "Show the header of a snapshot",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApplication(cmd, func(ctx context.Context, app *application.Application, printer *display.Printer) error {
				key, header, err := app.SnapshotHeader(ctx, table, ref)
				if err != nil {
					return err
				}
				return printHeader(printer, key, header)
			})
		},
	}

	cmd.Flags().StringVarP(&table, "table", "t", "", "table of the snapshot")
	cmd.Flags().StringVarP(&ref, "snapshot", "s", snapshot.LatestRef, "snapshot reference or latest")
	cmd.MarkFlagRequired("table")
	return cmd
}

func printHeader(printer *display.Printer, key string, h *snapshot.Header) error {
	switch printer.Config().OutputFormat {
	case display.FormatJSON, display.FormatYAML:
		return printer.Data(h)
	}

	printer.Header(key)
	t := printer.NewTable("Column", "Type", "Nullable", "Key")
	for _, c := range h.Columns {
		t.AddRow(c.Name, string(c.Type), fmt.Sprint(c.Nullable), fmt.Sprint(c.Key))
	}
	if err := t.RenderTo(printer.Out()); err != nil {
		return err
	}
	printer.Info("Fingerprint: " + h.Fingerprint)
	printer.Info(fmt.Sprintf("Created: %s, compression: %s", h.CreatedAt.UTC().Format("2006-01-02T15:04:05Z"), h.Compression))
	if h.Encryption != nil {
		printer.Info("Encryption: " + h.Encryption.Algorithm)
	}
	return nil
}
